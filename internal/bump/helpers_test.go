package bump

import (
	"context"
	"listingbump/internal/components/telemetry"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testNodeId      = "46590548"
	testDestination = "/jobseeker/alice/job-title"
	testToken       = "form-2Yp8Xk4bQn1c7Lw0sTzVfR9hJmE6aUdG"
)

var testCookies = Cookies{
	"qatarliving-sso-token": "sso-value",
	"qat":                   "qat-value",
}

// fakeSite is a listing site served from an httptest server, every handler is optional and
// an unset handler answers 404.
type fakeSite struct {
	server *httptest.Server

	mutex    sync.Mutex
	requests []*http.Request

	account http.HandlerFunc
	listing http.HandlerFunc
	bump    http.HandlerFunc
	// pages serves any other path.
	pages map[string]http.HandlerFunc
}

func newFakeSite(t *testing.T) *fakeSite {
	site := &fakeSite{}
	site.server = httptest.NewServer(http.HandlerFunc(site.serve))
	t.Cleanup(site.server.Close)
	return site
}

func (s *fakeSite) serve(w http.ResponseWriter, req *http.Request) {
	s.mutex.Lock()
	s.requests = append(s.requests, req.Clone(context.Background()))
	s.mutex.Unlock()

	var handler http.HandlerFunc
	switch req.URL.Path {
	case "/user":
		handler = s.account
	case testDestination:
		handler = s.listing
	case "/bump/node/" + testNodeId:
		handler = s.bump
	default:
		handler = s.pages[req.URL.Path]
	}
	if handler == nil {
		http.NotFound(w, req)
		return
	}
	handler(w, req)
}

// count returns how many requests with the given method were made to path.
func (s *fakeSite) count(method, path string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.Method == method && req.URL.Path == path {
			n++
		}
	}
	return n
}

func (s *fakeSite) bumpUrl() string {
	return s.server.URL + "/bump/node/" + testNodeId + "?destination=" + testDestination
}

func (s *fakeSite) target(t *testing.T) Target {
	target, err := ParseTarget(s.bumpUrl())
	require.NoError(t, err)
	return target
}

func testSessionOptions() SessionOptions {
	return SessionOptions{
		Rand: rand.New(rand.NewPCG(1, 2)),
	}
}

func (s *fakeSite) session(t *testing.T, tel telemetry.API) *Session {
	session, err := NewSession(s.target(t), testCookies, testSessionOptions(), tel)
	require.NoError(t, err)
	return session
}

func writeHtml(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// dropConnection closes the connection without a response.
func dropConnection(w http.ResponseWriter, _ *http.Request) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err != nil {
		panic(err)
	}
	conn.Close()
}

const listingPage = `<html><body>
<form id="classified-bump-form" method="post">
	<input type="hidden" name="form_id" value="classified_bump_form">
	<input type="hidden" name="form_token" value="` + testToken + `">
	<input type="submit" name="op" value="Bump to top">
</form>
</body></html>`

const accountPage = `<html><body><nav><a href="/user/logout">Log out</a></nav></body></html>`

type fakeSleeper struct {
	mutex sync.Mutex
	waits []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.waits = append(s.waits, d)
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func (s *fakeSleeper) Waits() []time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]time.Duration(nil), s.waits...)
}
