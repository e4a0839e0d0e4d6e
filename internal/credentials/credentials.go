// Package credentials finds the session cookies and the bump url a run is given, looking at
// the environment first and local files after.
package credentials

import (
	"errors"
	"fmt"
	"listingbump/internal/bump"
	"listingbump/internal/components/telemetry"
	"os"
	"strings"

	"github.com/titanous/json5"
)

const (
	report_credentials_cookies  = "cookies"
	report_credentials_bump_url = "bump-url"
)

const (
	EnvCookies           = "BUMP_COOKIES"
	EnvCookiesSecretFile = "BUMP_COOKIES_SECRET_FILE"
	EnvBumpUrl           = "BUMP_URL"

	DefaultSecretFile  = "/run/secrets/bump_cookies"
	DefaultCookiesFile = "cookies.json"
	DefaultBumpUrlFile = "bump_url.txt"
)

// Source names where a credential was found.
type Source string

const (
	SourceNone       Source = "none"
	SourceEnv        Source = "env"
	SourceSecretFile Source = "secret file"
	SourceLocalFile  Source = "local file"
	SourceConfig     Source = "config"
)

// Sources are the non-environment places credentials are looked up in.
type Sources struct {
	// CookiesFile is a json object of cookie name to value, defaults to DefaultCookiesFile.
	CookiesFile string
	// BumpUrlFile holds the bump url as plain text, defaults to DefaultBumpUrlFile.
	BumpUrlFile string
	// ConfigBumpUrl is the bump url given in the config file, it is tried last.
	ConfigBumpUrl string
}

type Loader struct {
	sources Sources
	tel     telemetry.API
}

func NewLoader(sources Sources, tel telemetry.API) Loader {
	if sources.CookiesFile == "" {
		sources.CookiesFile = DefaultCookiesFile
	}
	if sources.BumpUrlFile == "" {
		sources.BumpUrlFile = DefaultBumpUrlFile
	}
	return Loader{
		sources: sources,
		tel:     telemetry.NewScopedAPI("credentials", tel),
	}
}

func secretFile() string {
	path := os.Getenv(EnvCookiesSecretFile)
	if path == "" {
		return DefaultSecretFile
	}
	return path
}

// Cookies tries, in order, the BUMP_COOKIES environment variable, the secret file and the
// local cookies file. A source that exists but does not hold a non-empty json object is
// reported and skipped.
func (l Loader) Cookies() (bump.Cookies, Source, error) {
	env := os.Getenv(EnvCookies)
	if strings.TrimSpace(env) != "" {
		cookies, err := parseCookies([]byte(env))
		if err == nil {
			l.tel.ReportInfo(fmt.Sprintf("loaded %d cookies", len(cookies)), "source", SourceEnv)
			return cookies, SourceEnv, nil
		}
		l.tel.ReportWarning(report_credentials_cookies, fmt.Errorf("%s: %w", EnvCookies, err))
	}

	files := []struct {
		path   string
		source Source
	}{
		{path: secretFile(), source: SourceSecretFile},
		{path: l.sources.CookiesFile, source: SourceLocalFile},
	}
	for _, file := range files {
		contents, err := os.ReadFile(file.path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			l.tel.ReportWarning(report_credentials_cookies, fmt.Errorf("read: %w", err), file.path)
			continue
		}
		cookies, err := parseCookies(contents)
		if err != nil {
			l.tel.ReportWarning(report_credentials_cookies, fmt.Errorf("%s: %w", file.path, err))
			continue
		}
		l.tel.ReportInfo(fmt.Sprintf("loaded %d cookies", len(cookies)), "source", file.source, "path", file.path)
		return cookies, file.source, nil
	}

	return nil, SourceNone, &bump.ConfigurationError{Missing: "cookies"}
}

// parseCookies accepts a json5 object, non-string values are kept in their printed form.
func parseCookies(contents []byte) (bump.Cookies, error) {
	var raw map[string]any
	err := json5.Unmarshal(contents, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("no cookies in object")
	}

	cookies := make(bump.Cookies, len(raw))
	for name, value := range raw {
		switch value := value.(type) {
		case string:
			cookies[name] = value
		case nil:
			cookies[name] = ""
		default:
			cookies[name] = fmt.Sprint(value)
		}
	}
	return cookies, nil
}

// BumpUrl tries, in order, the BUMP_URL environment variable, the bump url file and the url
// from the config file.
func (l Loader) BumpUrl() (string, Source, error) {
	env := strings.TrimSpace(os.Getenv(EnvBumpUrl))
	if env != "" {
		l.tel.ReportInfo("loaded bump url", "source", SourceEnv)
		return env, SourceEnv, nil
	}

	contents, err := os.ReadFile(l.sources.BumpUrlFile)
	if err != nil && !os.IsNotExist(err) {
		l.tel.ReportWarning(report_credentials_bump_url, fmt.Errorf("read: %w", err), l.sources.BumpUrlFile)
	}
	if err == nil {
		bumpUrl := strings.TrimSpace(string(contents))
		if bumpUrl != "" {
			l.tel.ReportInfo("loaded bump url", "source", SourceLocalFile, "path", l.sources.BumpUrlFile)
			return bumpUrl, SourceLocalFile, nil
		}
	}

	configured := strings.TrimSpace(l.sources.ConfigBumpUrl)
	if configured != "" {
		l.tel.ReportInfo("loaded bump url", "source", SourceConfig)
		return configured, SourceConfig, nil
	}

	return "", SourceNone, &bump.ConfigurationError{Missing: "bump url"}
}

// Job loads both credentials into a bump.Job.
func (l Loader) Job() (bump.Job, error) {
	cookies, _, err := l.Cookies()
	if err != nil {
		return bump.Job{}, err
	}
	bumpUrl, _, err := l.BumpUrl()
	if err != nil {
		return bump.Job{}, err
	}
	return bump.Job{Cookies: cookies, BumpUrl: bumpUrl}, nil
}
