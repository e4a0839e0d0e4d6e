package bump

import (
	"context"
	"fmt"
	"listingbump/internal/assert"
	"listingbump/internal/components/chrono"
	"listingbump/internal/components/telemetry"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_executor_direct_get   = "executor.direct-get"
	report_executor_post         = "executor.post"
	report_executor_get_fallback = "executor.get-fallback"
	report_executor_final_probe  = "executor.final-probe"
	report_executor_attempts     = "executor.attempts"
)

const (
	bumpFormId     = "classified_bump_form"
	bumpActionName = "op"
	bumpActionText = "Bump to top"
	bumpTimeout    = 30 * time.Second
)

type Strategy string

const (
	StrategyNone        Strategy = "none"
	StrategyDirectGet   Strategy = "direct-get"
	StrategyPost        Strategy = "post"
	StrategyGetFallback Strategy = "get-fallback"
	StrategyFinalProbe  Strategy = "final-probe"
)

// Result is the outcome of a bump, Success is the only thing callers need to act on.
type Result struct {
	Success bool
	// Attempts is the number of POST attempts made.
	Attempts int
	// Strategy is the path that succeeded, StrategyNone if nothing did.
	Strategy Strategy
}

type ExecutorOptions struct {
	// MaxAttempts is how many times the POST is tried.
	MaxAttempts int
	// MinWait and MaxWait bound the random wait between attempts.
	MinWait time.Duration
	MaxWait time.Duration
	// DirectGet tries a GET of the bump url before any POST.
	DirectGet bool
	// FinalProbe makes one last GET after every attempt failed, it only counts if it
	// lands on the listing.
	FinalProbe bool
}

func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		MaxAttempts: 3,
		MinWait:     5 * time.Second,
		MaxWait:     15 * time.Second,
		DirectGet:   true,
		FinalProbe:  true,
	}
}

var meter = otel.Meter("listingbump/internal/bump")

// Executor submits the bump, falling back and retrying until one path is classified as
// successful or every attempt is used up.
type Executor struct {
	session *Session
	opts    ExecutorOptions
	sleeper chrono.SleepAPI
	tel     telemetry.API

	attemptCounter metric.Int64Counter
	resultCounter  metric.Int64Counter
}

func NewExecutor(session *Session, opts ExecutorOptions, sleeper chrono.SleepAPI, tel telemetry.API) Executor {
	assert.NotNil(session, "session")
	assert.NotNil(sleeper, "sleeper")
	assert.True(opts.MaxAttempts > 0, "executor needs at least one attempt")

	attemptCounter, _ := meter.Int64Counter("bump.attempts")
	resultCounter, _ := meter.Int64Counter("bump.results")

	return Executor{
		session:        session,
		opts:           opts,
		sleeper:        sleeper,
		tel:            telemetry.NewScopedAPI("bump", tel),
		attemptCounter: attemptCounter,
		resultCounter:  resultCounter,
	}
}

func (e Executor) finish(ctx context.Context, result Result) Result {
	e.resultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", result.Success),
		attribute.String("strategy", string(result.Strategy)),
	))
	e.tel.ReportCount(report_executor_attempts, int64(result.Attempts))
	return result
}

// Bump runs the bump state machine for target with token.
func (e Executor) Bump(ctx context.Context, target Target, token FormToken) Result {
	if e.opts.DirectGet {
		e.tel.ReportInfo("trying direct GET bump", target.DirectUrl())
		if e.tryGet(ctx, report_executor_direct_get, target.DirectUrl(), target) {
			return e.finish(ctx, Result{Success: true, Strategy: StrategyDirectGet})
		}
	}

	attempts := 0
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		attempts = attempt
		e.attemptCounter.Add(ctx, 1)
		e.tel.ReportInfo(fmt.Sprintf("attempt %d/%d (POST bump)", attempt, e.opts.MaxAttempts))

		res, err := e.post(ctx, target, token)
		switch {
		case err != nil:
			e.tel.ReportWarning(report_executor_post, fmt.Errorf("attempt %d: %w", attempt, err))
		case ClassifiesAsSuccess(res.status, res.body, res.finalUrl, target.Destination):
			e.tel.ReportInfo("bumped via POST", res.String())
			return e.finish(ctx, Result{Success: true, Attempts: attempt, Strategy: StrategyPost})
		default:
			e.tel.ReportWarning(report_executor_post, fmt.Errorf("attempt %d not successful", attempt), res.String())
			if res.status == http.StatusForbidden && e.getFallbacks(ctx, target, token) {
				return e.finish(ctx, Result{Success: true, Attempts: attempt, Strategy: StrategyGetFallback})
			}
		}

		if attempt == e.opts.MaxAttempts {
			break
		}
		wait := e.session.Uniform(e.opts.MinWait, e.opts.MaxWait)
		e.tel.ReportInfo(fmt.Sprintf("waiting %.1fs before retry", wait.Seconds()))
		err = e.sleeper.Sleep(ctx, wait)
		if err != nil {
			e.tel.ReportWarning(report_executor_attempts, fmt.Errorf("retry wait interrupted: %w", err))
			return e.finish(ctx, Result{Attempts: attempts, Strategy: StrategyNone})
		}
	}

	if e.opts.FinalProbe && e.finalProbe(ctx, target) {
		return e.finish(ctx, Result{Success: true, Attempts: attempts, Strategy: StrategyFinalProbe})
	}

	e.tel.ReportInfo("all attempts failed")
	return e.finish(ctx, Result{Attempts: attempts, Strategy: StrategyNone})
}

func (e Executor) headers(target Target) map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml",
		"Accept-Language":           "en-US,en;q=0.9",
		"Referer":                   target.PageUrl(target.Destination),
		"Origin":                    target.SiteUrl,
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "same-origin",
	}
}

func (e Executor) post(ctx context.Context, target Target, token FormToken) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, bumpTimeout)
	defer cancel()

	res, err := e.session.Request(ctx).
		SetHeaders(e.headers(target)).
		SetFormData(map[string]string{
			"form_id":       bumpFormId,
			"form_token":    string(token),
			"form_build_id": string(token),
			bumpActionName:  bumpActionText,
			"destination":   target.Destination,
		}).
		Post(target.BumpUrl)
	if err != nil {
		return response{}, err
	}
	return toResponse(res), nil
}

func (e Executor) get(ctx context.Context, endpoint string, target Target) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, bumpTimeout)
	defer cancel()

	res, err := e.session.Request(ctx).
		SetHeaders(e.headers(target)).
		Get(endpoint)
	if err != nil {
		return response{}, err
	}
	return toResponse(res), nil
}

// tryGet makes one GET and classifies it, failures are reported under id.
func (e Executor) tryGet(ctx context.Context, id, endpoint string, target Target) bool {
	res, err := e.get(ctx, endpoint, target)
	if err != nil {
		e.tel.ReportWarning(id, fmt.Errorf("fetch: %w", err), endpoint)
		return false
	}
	if ClassifiesAsSuccess(res.status, res.body, res.finalUrl, target.Destination) {
		e.tel.ReportInfo("bumped via GET", res.String())
		return true
	}
	e.tel.ReportDebug(id, "not successful", res.String())
	return false
}

// FallbackUrls are the GET submissions tried when the POST is forbidden, the action is
// passed as a query parameter instead of a form field.
func FallbackUrls(target Target, token FormToken) []string {
	action := target.DirectUrl() + "&" + bumpActionName + "=" + url.QueryEscape(bumpActionText)
	return []string{
		action + "&form_token=" + url.QueryEscape(string(token)),
		action,
	}
}

func (e Executor) getFallbacks(ctx context.Context, target Target, token FormToken) bool {
	for _, endpoint := range FallbackUrls(target, token) {
		e.tel.ReportInfo("POST forbidden, trying GET fallback")
		if e.tryGet(ctx, report_executor_get_fallback, endpoint, target) {
			return true
		}
	}
	return false
}

func (e Executor) finalProbe(ctx context.Context, target Target) bool {
	e.tel.ReportInfo("trying final GET probe")
	res, err := e.get(ctx, target.DirectUrl(), target)
	if err != nil {
		e.tel.ReportWarning(report_executor_final_probe, fmt.Errorf("fetch: %w", err))
		return false
	}
	if landedOnDestination(res.finalUrl, target.Destination) {
		e.tel.ReportInfo("final probe landed on the listing", res.String())
		return true
	}
	return false
}
