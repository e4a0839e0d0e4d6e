package main

import (
	"context"
	"listingbump/cmd/bump-cli/commands"
	"listingbump/lib/telemetry"
	"listingbump/lib/util/serviceutil"
	"log/slog"
	"os"
	"time"
)

func main() {
	ctx, stop := serviceutil.SignalContext()

	telemetry.InitSlog(false)
	otel, err := telemetry.SetupFromEnv(ctx, "bump-cli")
	if err != nil {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err)
	}

	code := commands.ExecuteContext(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = otel.Shutdown(shutdownCtx)
	cancel()
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	os.Exit(code)
}
