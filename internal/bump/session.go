package bump

import (
	"context"
	"fmt"
	"listingbump/internal/assert"
	"listingbump/internal/components/telemetry"
	"listingbump/lib/restyutil"
	libtelemetry "listingbump/lib/telemetry"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Cookies maps cookie name to value, as captured from a logged in browser.
type Cookies map[string]string

// DefaultUserAgents is the pool a User-Agent is drawn from for every request.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

type SessionOptions struct {
	// CookieDomain is set on every cookie, ex. ".example.com". Empty makes them host-only
	// cookies of the bump url's host.
	CookieDomain string
	// CloudflareBypass wraps the transport with cloudflare-bp-go.
	CloudflareBypass bool
	// RequestsPerSecond paces requests, 0 disables pacing.
	RequestsPerSecond float64
	// UserAgents defaults to DefaultUserAgents.
	UserAgents []string
	// Rand is the source for user agents and retry jitter, defaults to a randomly seeded one.
	Rand *rand.Rand
	// Transcripts receives a transcript of every response, nil disables them.
	Transcripts restyutil.TranscriptOutput
	// TranscriptPrefix names transcript files of this session.
	TranscriptPrefix string
}

// Session is the single HTTP client context of a run, it carries the cookie jar and
// connection reuse across every step.
type Session struct {
	Site *url.URL
	Http *resty.Client

	rand       *rand.Rand
	userAgents []string
}

const maxRedirects = 10

func NewSession(target Target, cookies Cookies, opts SessionOptions, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(target.SiteUrl, "target site url")

	site, err := url.Parse(target.SiteUrl)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(site, httpCookies(cookies, opts.CookieDomain))

	client := resty.New()
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(maxRedirects),
		resty.DomainCheckRedirectPolicy(allowedHosts(site, opts.CookieDomain)...),
	)
	// per call timeouts are set with contexts, this is only an upper bound
	client.SetTimeout(time.Minute)

	if opts.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("session", tel))
	libtelemetry.InstrumentResty(client, "listingbump/http")
	restyutil.RecordTranscripts(client, opts.TranscriptPrefix, opts.Transcripts)

	userAgents := opts.UserAgents
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Session{
		Site:       site,
		Http:       client,
		rand:       rng,
		userAgents: userAgents,
	}, nil
}

func httpCookies(cookies Cookies, domain string) []*http.Cookie {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{
			Name:   name,
			Value:  cookies[name],
			Domain: domain,
			Path:   "/",
		})
	}
	return out
}

// allowedHosts is every host redirects may lead to: the site itself, and when a cookie
// domain is given, its bare and www forms.
func allowedHosts(site *url.URL, cookieDomain string) []string {
	hosts := []string{site.Hostname()}
	bare := strings.TrimPrefix(cookieDomain, ".")
	if bare != "" {
		hosts = append(hosts, bare, "www."+bare)
	}
	return hosts
}

// UserAgent picks a User-Agent from the pool.
func (s *Session) UserAgent() string {
	return s.userAgents[s.rand.IntN(len(s.userAgents))]
}

// Uniform draws a duration uniformly from [min, max].
func (s *Session) Uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rand.Int64N(int64(max-min)+1))
}

// Request starts a request bound to ctx with a fresh User-Agent.
func (s *Session) Request(ctx context.Context) *resty.Request {
	return s.Http.R().
		SetContext(ctx).
		SetHeader("User-Agent", s.UserAgent())
}

// Cookie returns the value the jar would send to the site for name.
func (s *Session) Cookie(name string) (string, bool) {
	for _, c := range s.Http.GetClient().Jar.Cookies(s.Site) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

type response struct {
	status   int
	body     string
	finalUrl string
}

func (r response) String() string {
	return fmt.Sprintf("%d %s", r.status, r.finalUrl)
}

func toResponse(res *resty.Response) response {
	finalUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}
	return response{
		status:   res.StatusCode(),
		body:     res.String(),
		finalUrl: finalUrl,
	}
}
