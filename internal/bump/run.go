package bump

import (
	"context"
	"errors"
	"listingbump/internal/components/chrono"
	"listingbump/internal/components/telemetry"
	libtelemetry "listingbump/lib/telemetry"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_bumper_authenticate = "bumper.authenticate"
)

var tracer = libtelemetry.Tracer("listingbump/internal/bump")

// Job is everything that identifies a single bump: whose session and which listing.
type Job struct {
	Cookies Cookies
	BumpUrl string
}

type Options struct {
	Session  SessionOptions
	Executor ExecutorOptions
	// AuthPath is the account page used to check the session, ex. /user.
	AuthPath string
	// ListingIndexPath is sent as the Referer of the listing page, ex. /classifieds.
	ListingIndexPath string
	// RequireAuth aborts the run when the session does not look logged in, otherwise the run
	// only warns and lets the bump decide.
	RequireAuth bool
	// Sleeper waits between attempts, defaults to chrono.StandardTime.
	Sleeper chrono.SleepAPI
}

func DefaultOptions() Options {
	return Options{
		Executor:         DefaultExecutorOptions(),
		AuthPath:         "/user",
		ListingIndexPath: "/classifieds",
		RequireAuth:      true,
		Sleeper:          chrono.NewStandardTime(),
	}
}

// Bumper holds a parsed job and the session its steps share.
type Bumper struct {
	Cookies Cookies
	Target  Target
	Session *Session

	opts   Options
	tel    telemetry.API
	// report is tel scoped to the package, components scope tel themselves.
	report telemetry.API
}

// NewBumper validates the job and opens its session, nothing is requested yet.
func NewBumper(job Job, opts Options, tel telemetry.API) (Bumper, error) {
	if len(job.Cookies) == 0 {
		return Bumper{}, &ConfigurationError{Missing: "cookies"}
	}
	if strings.TrimSpace(job.BumpUrl) == "" {
		return Bumper{}, &ConfigurationError{Missing: "bump url"}
	}

	target, err := ParseTarget(job.BumpUrl)
	if err != nil {
		return Bumper{}, err
	}
	if opts.Sleeper == nil {
		opts.Sleeper = chrono.NewStandardTime()
	}

	session, err := NewSession(target, job.Cookies, opts.Session, tel)
	if err != nil {
		return Bumper{}, err
	}

	return Bumper{
		Cookies: job.Cookies,
		Target:  target,
		Session: session,
		opts:    opts,
		tel:     tel,
		report:  telemetry.NewScopedAPI("bump", tel),
	}, nil
}

// Identity is who the cookies appear to belong to.
func (b Bumper) Identity() Identity {
	return IdentityFromCookies(b.Cookies, b.Target)
}

// ResolveIdentity is Identity, except that when the qat cookie names no one the account pages
// are read before falling back to the destination.
func (b Bumper) ResolveIdentity(ctx context.Context) Identity {
	id := identityFromJwt(b.Cookies[identityCookie])
	if id.Alias == "" {
		paths := append([]string{b.opts.AuthPath}, ProfilePaths...)
		id.Alias = ProfileAlias(ctx, b.Session, paths, telemetry.NewScopedAPI("bump", b.tel))
	}
	if id.Alias == "" {
		id.Alias = b.Target.Alias()
	}
	return id
}

// Authenticate checks the session, it only returns an error when RequireAuth is set.
func (b Bumper) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	ok := NewAuthenticator(b.Session, b.opts.AuthPath, b.tel).Check(ctx)
	span.SetAttributes(attribute.Bool("authenticated", ok))
	if ok {
		b.report.ReportInfo("authenticated", b.Identity().String())
		return nil
	}
	if b.opts.RequireAuth {
		span.SetStatus(codes.Error, ErrNotAuthenticated.Error())
		return ErrNotAuthenticated
	}
	b.report.ReportWarning(report_bumper_authenticate, errors.New("session does not look logged in, continuing anyway"))
	return nil
}

func (b Bumper) FetchToken(ctx context.Context) (FormToken, error) {
	ctx, span := tracer.Start(ctx, "FetchToken")
	defer span.End()

	token, err := NewTokenFetcher(b.Session, b.opts.ListingIndexPath, b.tel).Fetch(ctx, b.Target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return token, nil
}

func (b Bumper) Bump(ctx context.Context, token FormToken) Result {
	ctx, span := tracer.Start(ctx, "Bump")
	defer span.End()

	result := NewExecutor(b.Session, b.opts.Executor, b.opts.Sleeper, b.tel).Bump(ctx, b.Target, token)
	span.SetAttributes(
		attribute.Bool("success", result.Success),
		attribute.Int("attempts", result.Attempts),
		attribute.String("strategy", string(result.Strategy)),
	)
	if !result.Success {
		span.SetStatus(codes.Error, "bump failed")
	}
	return result
}

// Run performs one bump of job. Configuration, parse, authentication and token errors are
// returned as errors, a bump that was attempted but never confirmed is (false, nil).
func Run(ctx context.Context, job Job, opts Options, tel telemetry.API) (bool, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	bumper, err := NewBumper(job, opts, tel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(
		attribute.String("node_id", bumper.Target.NodeId),
		attribute.String("destination", bumper.Target.Destination),
	)
	bumper.report.ReportInfo("bumping listing", "node_id", bumper.Target.NodeId, "destination", bumper.Target.Destination)

	err = bumper.Authenticate(ctx)
	if err != nil {
		return false, err
	}
	token, err := bumper.FetchToken(ctx)
	if err != nil {
		return false, err
	}
	return bumper.Bump(ctx, token).Success, nil
}
