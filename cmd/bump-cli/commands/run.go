package commands

import (
	"context"
	"errors"
	"fmt"
	"listingbump/internal/bump"
	"listingbump/internal/components/chrono"
	"listingbump/internal/components/telemetry"
	"listingbump/internal/credentials"
	"log/slog"
	"time"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

const (
	report_run_cookies = "run.cookies"
)

// clock times runs.
var clock chrono.TimeAPI = chrono.NewStandardTime()

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--config <config.json5>] [--dump-dir <dir>]",
	Short: "Bumps the listing once, exits with 0 only if the bump was confirmed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		ok, err := runOnce(cmd.Context(), cfg, telemetry.SlogAPI{})
		code := exitCode(ok, err)
		if code != 0 {
			return exitError{code: code}
		}
		return nil
	},
}

func newRunId() string {
	id, err := random.String(8)
	if err != nil {
		return clock.Now().Format("20060102-150405")
	}
	return id
}

// runOnce loads credentials and bumps the listing, outcomes are logged with a hint on what
// to do about a failure.
func runOnce(ctx context.Context, cfg Config, tel telemetry.API) (bool, error) {
	runId := newRunId()
	start := clock.Now()
	slog.Info("starting bump run", "run_id", runId)

	ok, err := bumpWithConfig(ctx, cfg, runId, tel)
	elapsed := clock.Now().Sub(start).Round(time.Millisecond)

	switch {
	case err != nil:
		slog.Error("bump run failed", "run_id", runId, "elapsed", elapsed, "err", err)
		slog.Info(hint(ok, err))
	case !ok:
		slog.Error("bump was not confirmed", "run_id", runId, "elapsed", elapsed)
		slog.Info(hint(ok, err))
	default:
		slog.Info("listing bumped", "run_id", runId, "elapsed", elapsed)
	}
	return ok, err
}

func bumpWithConfig(ctx context.Context, cfg Config, runId string, tel telemetry.API) (bool, error) {
	opts, err := cfg.Options()
	if err != nil {
		return false, err
	}
	opts, err = withTranscripts(opts, runId)
	if err != nil {
		return false, err
	}
	job, err := cfg.Loader(tel).Job()
	if err != nil {
		return false, err
	}
	status := credentials.CheckCookies(job.Cookies, cfg.EssentialCookies)
	if !status.Ready {
		tel.ReportWarning(report_run_cookies, fmt.Errorf("missing essential cookies %v, the site will likely not recognize the session", status.Missing()))
	}
	return bump.Run(ctx, job, opts, tel)
}

// exitCode is 0 only for a confirmed bump.
func exitCode(ok bool, err error) int {
	if ok && err == nil {
		return 0
	}
	return 1
}

// hint tells the operator what is most likely to fix a failed run.
func hint(ok bool, err error) string {
	var configErr *bump.ConfigurationError
	var parseErr *bump.ParseError
	var tokenErr *bump.TokenFetchError

	switch {
	case errors.As(err, &configErr) && configErr.Missing == "cookies":
		return "no cookies found: set BUMP_COOKIES, or run `bump-cli cookies --script` in a logged in browser and save the output to the cookies file"
	case errors.As(err, &configErr):
		return fmt.Sprintf("no %s found: set BUMP_URL, write it to bump_url.txt, or set bump_url in the config", configErr.Missing)
	case errors.As(err, &parseErr):
		return "the bump url should look like https://<site>/bump/node/<id>?destination=/<listing path>, copy it from the bump button of the listing"
	case errors.Is(err, bump.ErrNotAuthenticated):
		return "the session is not logged in, the cookies are likely expired: log in again in the browser and export fresh cookies"
	case errors.As(err, &tokenErr):
		return "the listing page could not be used, check that the destination is your listing and that the cookies are fresh"
	case err != nil:
		return "the run failed before the bump was attempted"
	case !ok:
		return "every bump attempt failed: the listing may not be bumpable yet, or the cookies are stale. rerun with --dump-dir to inspect the responses"
	}
	return ""
}
