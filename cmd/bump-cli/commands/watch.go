package commands

import (
	"context"
	"fmt"
	"listingbump/internal/components/chrono"
	"listingbump/internal/components/notify"
	"listingbump/internal/components/telemetry"
	libtelemetry "listingbump/lib/telemetry"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

const defaultSchedule = "0 */6 * * *"

var cronSpec *string

func init() {
	cronSpec = watchCmd.Flags().String("cron", "", fmt.Sprintf("The cron schedule to bump on, defaults to the config's schedule or %q.", defaultSchedule))
	rootCmd.AddCommand(watchCmd)
}

// watcher runs one bump per tick and notifies on failures.
type watcher struct {
	ctx      context.Context
	cfg      Config
	tel      telemetry.API
	notifier notify.API
}

func (w watcher) tick() {
	ok, err := runOnce(w.ctx, w.cfg, w.tel)
	if exitCode(ok, err) == 0 {
		return
	}
	if w.ctx.Err() != nil {
		return
	}

	body := hint(ok, err)
	if err != nil {
		body = fmt.Sprintf("%s\n\n%s", err.Error(), body)
	}
	notifyErr := w.notifier.Notify("listing bump failed", body)
	if notifyErr != nil {
		w.tel.ReportWarning("watch.notify", fmt.Errorf("send: %w", notifyErr))
	}
}

func schedule(cfg Config) string {
	if *cronSpec != "" {
		return *cronSpec
	}
	if cfg.Schedule != "" {
		return cfg.Schedule
	}
	return defaultSchedule
}

var watchCmd = &cobra.Command{
	Use:   "watch [--cron <spec>]",
	Short: "Bumps the listing on a schedule until interrupted, runs never overlap.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		_, err = cfg.Options()
		if err != nil {
			return err
		}

		tel := telemetry.SlogAPI{}
		w := watcher{
			ctx:      ctx,
			cfg:      cfg,
			tel:      tel,
			notifier: notify.FromConfig(cfg.Notify),
		}

		libtelemetry.InstrumentPerfStats(ctx, time.Minute)

		loc, err := chrono.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone: %w", err)
		}
		cron := chrono.NewStandardCron(loc, tel)
		spec := schedule(cfg)
		err = cron.Cron(spec, w.tick)
		if err != nil {
			cron.Stop()
			return fmt.Errorf("schedule %q: %w", spec, err)
		}
		slog.Info("watching", "schedule", spec, "timezone", loc.String())

		<-ctx.Done()
		slog.Info("stopping, waiting for a running bump to finish")
		<-cron.Stop().Done()
		return nil
	},
}
