package commands

import (
	"fmt"
	"listingbump/internal/bump"
	"listingbump/internal/components/notify"
	"listingbump/internal/components/telemetry"
	"listingbump/internal/credentials"
	"listingbump/lib/configutil"
	"listingbump/lib/restyutil"
	"time"
)

// Config is config.json5, every field is optional.
type Config struct {
	BumpUrl     string `json:"bump_url"`
	BumpUrlFile string `json:"bump_url_file"`
	CookiesFile string `json:"cookies_file"`

	// CookieDomain is the domain cookies are set for, ex. ".example.com", empty means the
	// host of the bump url only.
	CookieDomain     string   `json:"cookie_domain"`
	AuthPath         string   `json:"auth_path"`
	ListingIndexPath string   `json:"listing_index_path"`
	EssentialCookies []string `json:"essential_cookies"`
	RequireAuth      *bool    `json:"require_auth"`

	MaxAttempts    int     `json:"max_attempts"`
	MinWaitSeconds float64 `json:"min_wait_seconds"`
	MaxWaitSeconds float64 `json:"max_wait_seconds"`
	DirectGet      *bool   `json:"direct_get"`
	FinalProbe     *bool   `json:"final_probe"`

	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	RequestsPerSecond float64 `json:"requests_per_second"`

	// Schedule is the cron spec used by watch when --cron is not given.
	Schedule string `json:"schedule"`
	// Timezone is the IANA name the schedule is read in, empty means the local timezone.
	Timezone string            `json:"timezone"`
	Notify   notify.SmtpConfig `json:"notify"`
}

func readConfig() (Config, error) {
	cfg, err := configutil.ReadOptional[Config](*configPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Options maps the config onto bump.DefaultOptions, unset fields keep their defaults.
func (c Config) Options() (bump.Options, error) {
	opts := bump.DefaultOptions()

	opts.Session.CookieDomain = c.CookieDomain
	opts.Session.CloudflareBypass = c.CloudflareBypass
	opts.Session.RequestsPerSecond = c.RequestsPerSecond

	if c.AuthPath != "" {
		opts.AuthPath = c.AuthPath
	}
	if c.ListingIndexPath != "" {
		opts.ListingIndexPath = c.ListingIndexPath
	}
	if c.RequireAuth != nil {
		opts.RequireAuth = *c.RequireAuth
	}

	if c.MaxAttempts < 0 {
		return bump.Options{}, fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.MaxAttempts > 0 {
		opts.Executor.MaxAttempts = c.MaxAttempts
	}
	if c.MinWaitSeconds > 0 {
		opts.Executor.MinWait = seconds(c.MinWaitSeconds)
	}
	if c.MaxWaitSeconds > 0 {
		opts.Executor.MaxWait = seconds(c.MaxWaitSeconds)
	}
	if opts.Executor.MinWait > opts.Executor.MaxWait {
		return bump.Options{}, fmt.Errorf(
			"min_wait_seconds (%s) is larger than max_wait_seconds (%s)",
			opts.Executor.MinWait, opts.Executor.MaxWait,
		)
	}
	if c.DirectGet != nil {
		opts.Executor.DirectGet = *c.DirectGet
	}
	if c.FinalProbe != nil {
		opts.Executor.FinalProbe = *c.FinalProbe
	}
	return opts, nil
}

func (c Config) Loader(tel telemetry.API) credentials.Loader {
	return credentials.NewLoader(credentials.Sources{
		CookiesFile:   c.CookiesFile,
		BumpUrlFile:   c.BumpUrlFile,
		ConfigBumpUrl: c.BumpUrl,
	}, tel)
}

// withTranscripts makes the session of opts write transcripts to --dump-dir when it is set.
func withTranscripts(opts bump.Options, prefix string) (bump.Options, error) {
	if *dumpDir == "" {
		return opts, nil
	}
	output, err := restyutil.NewFilesystemOutput(*dumpDir)
	if err != nil {
		return opts, fmt.Errorf("open dump dir: %w", err)
	}
	opts.Session.Transcripts = output
	opts.Session.TranscriptPrefix = prefix
	return opts, nil
}
