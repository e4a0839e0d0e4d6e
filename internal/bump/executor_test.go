package bump

import (
	"context"
	"listingbump/internal/components/telemetry"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		MaxAttempts: 3,
		MinWait:     5 * time.Second,
		MaxWait:     15 * time.Second,
	}
}

func runExecutor(t *testing.T, site *fakeSite, opts ExecutorOptions, sleeper *fakeSleeper) (Result, *telemetry.RecorderAPI) {
	tel := telemetry.NewRecorderAPI()
	executor := NewExecutor(site.session(t, tel), opts, sleeper, tel)
	return executor.Bump(context.Background(), site.target(t), testToken), tel
}

func redirectToListing(w http.ResponseWriter, req *http.Request) {
	http.Redirect(w, req, testDestination, http.StatusSeeOther)
}

func servesListing(site *fakeSite) {
	site.listing = func(w http.ResponseWriter, _ *http.Request) {
		writeHtml(w, 200, listingPage)
	}
}

func TestExecutorPostSuccess(t *testing.T) {
	site := newFakeSite(t)
	servesListing(site)
	site.bump = func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			writeHtml(w, 405, "")
			return
		}
		err := req.ParseForm()
		if err != nil {
			writeHtml(w, 400, err.Error())
			return
		}
		expected := map[string]string{
			"form_id":       "classified_bump_form",
			"form_token":    testToken,
			"form_build_id": testToken,
			"op":            "Bump to top",
			"destination":   testDestination,
		}
		for key, value := range expected {
			if req.PostForm.Get(key) != value {
				writeHtml(w, 400, "unexpected "+key)
				return
			}
		}
		if req.Header.Get("Origin") != site.server.URL || req.Header.Get("Referer") != site.server.URL+testDestination {
			writeHtml(w, 400, "unexpected origin or referer")
			return
		}
		redirectToListing(w, req)
	}

	sleeper := &fakeSleeper{}
	result, _ := runExecutor(t, site, testExecutorOptions(), sleeper)
	require.Equal(t, Result{Success: true, Attempts: 1, Strategy: StrategyPost}, result)
	require.Equal(t, 1, site.count(http.MethodPost, "/bump/node/"+testNodeId))
	require.Empty(t, sleeper.Waits())
}

func TestExecutorDirectGet(t *testing.T) {
	site := newFakeSite(t)
	site.bump = func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet {
			writeHtml(w, 200, "<p>Your listing was bumped to the top.</p>")
			return
		}
		writeHtml(w, 500, "")
	}

	opts := testExecutorOptions()
	opts.DirectGet = true
	result, _ := runExecutor(t, site, opts, &fakeSleeper{})
	require.Equal(t, Result{Success: true, Strategy: StrategyDirectGet}, result)
	require.Equal(t, 0, site.count(http.MethodPost, "/bump/node/"+testNodeId))
}

func TestExecutorExhausted(t *testing.T) {
	site := newFakeSite(t)
	site.bump = func(w http.ResponseWriter, _ *http.Request) {
		writeHtml(w, 200, "<html><body>nothing happened</body></html>")
	}

	opts := DefaultExecutorOptions()
	sleeper := &fakeSleeper{}
	result, tel := runExecutor(t, site, opts, sleeper)

	require.Equal(t, Result{Success: false, Attempts: opts.MaxAttempts, Strategy: StrategyNone}, result)
	require.Equal(t, opts.MaxAttempts, site.count(http.MethodPost, bumpPath()))
	// the direct GET and the final probe
	require.Equal(t, 2, site.count(http.MethodGet, bumpPath()))

	waits := sleeper.Waits()
	require.Len(t, waits, opts.MaxAttempts-1)
	for _, wait := range waits {
		require.GreaterOrEqual(t, wait, opts.MinWait)
		require.LessOrEqual(t, wait, opts.MaxWait)
	}
	require.Len(t, tel.Filter(telemetry.LevelWarning, report_executor_post), opts.MaxAttempts)
}

func TestExecutorForbiddenFallback(t *testing.T) {
	site := newFakeSite(t)
	site.bump = func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			writeHtml(w, 403, "Access denied")
			return
		}
		query := req.URL.Query()
		if query.Get("op") == "Bump to top" && query.Get("form_token") == testToken {
			writeHtml(w, 200, "Success")
			return
		}
		writeHtml(w, 403, "Access denied")
	}

	result, _ := runExecutor(t, site, testExecutorOptions(), &fakeSleeper{})
	require.Equal(t, Result{Success: true, Attempts: 1, Strategy: StrategyGetFallback}, result)
	require.Equal(t, 1, site.count(http.MethodPost, "/bump/node/"+testNodeId))
	require.Equal(t, 1, site.count(http.MethodGet, "/bump/node/"+testNodeId))
}

func TestExecutorForbiddenEverywhere(t *testing.T) {
	site := newFakeSite(t)
	site.bump = func(w http.ResponseWriter, _ *http.Request) {
		writeHtml(w, 403, "Access denied")
	}

	opts := testExecutorOptions()
	opts.FinalProbe = true
	result, _ := runExecutor(t, site, opts, &fakeSleeper{})
	require.False(t, result.Success)
	require.Equal(t, opts.MaxAttempts, site.count(http.MethodPost, "/bump/node/"+testNodeId))
	// two fallbacks per attempt, then the final probe
	require.Equal(t, 2*opts.MaxAttempts+1, site.count(http.MethodGet, "/bump/node/"+testNodeId))
}

func TestExecutorRetriesTransportErrors(t *testing.T) {
	site := newFakeSite(t)
	servesListing(site)

	var posts atomic.Int32
	site.bump = func(w http.ResponseWriter, req *http.Request) {
		if posts.Add(1) < 3 {
			dropConnection(w, req)
			return
		}
		redirectToListing(w, req)
	}

	sleeper := &fakeSleeper{}
	result, tel := runExecutor(t, site, testExecutorOptions(), sleeper)
	require.Equal(t, Result{Success: true, Attempts: 3, Strategy: StrategyPost}, result)
	require.Len(t, sleeper.Waits(), 2)
	require.Len(t, tel.Filter(telemetry.LevelWarning, report_executor_post), 2)
}

func TestExecutorFinalProbe(t *testing.T) {
	site := newFakeSite(t)
	site.listing = func(w http.ResponseWriter, _ *http.Request) {
		writeHtml(w, 200, "<html><body>listing</body></html>")
	}
	site.bump = func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet {
			redirectToListing(w, req)
			return
		}
		writeHtml(w, 500, "")
	}

	opts := testExecutorOptions()
	opts.FinalProbe = true
	result, _ := runExecutor(t, site, opts, &fakeSleeper{})
	require.Equal(t, Result{Success: true, Attempts: opts.MaxAttempts, Strategy: StrategyFinalProbe}, result)
	require.Equal(t, 1, site.count(http.MethodGet, "/bump/node/"+testNodeId))
}

func TestExecutorInterruptedWait(t *testing.T) {
	site := newFakeSite(t)
	site.bump = func(w http.ResponseWriter, _ *http.Request) {
		writeHtml(w, 500, "")
	}

	opts := testExecutorOptions()
	opts.FinalProbe = true
	result, _ := runExecutor(t, site, opts, &fakeSleeper{err: context.Canceled})
	require.Equal(t, Result{Success: false, Attempts: 1, Strategy: StrategyNone}, result)
	require.Equal(t, 1, site.count(http.MethodPost, "/bump/node/"+testNodeId))
	require.Equal(t, 0, site.count(http.MethodGet, "/bump/node/"+testNodeId))
}

func TestFallbackUrls(t *testing.T) {
	target, err := ParseTarget("https://example.com/bump/node/1?destination=/jobseeker/alice/x")
	require.NoError(t, err)

	require.Equal(t, []string{
		"https://example.com/bump/node/1?destination=/jobseeker/alice/x&op=Bump+to+top&form_token=abc",
		"https://example.com/bump/node/1?destination=/jobseeker/alice/x&op=Bump+to+top",
	}, FallbackUrls(target, "abc"))
}

func TestExecutorDefaultsConfirmationPage(t *testing.T) {
	site := newFakeSite(t)
	servesListing(site)
	site.bump = func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			redirectToListing(w, req)
			return
		}
		writeHtml(w, 200, "<p>Are you sure you want to move this ad to the top?</p>")
	}

	result, _ := runExecutor(t, site, DefaultExecutorOptions(), &fakeSleeper{})
	require.Equal(t, Result{Success: true, Attempts: 1, Strategy: StrategyPost}, result)
	require.Equal(t, 1, site.count(http.MethodGet, bumpPath()))
	require.Equal(t, 1, site.count(http.MethodPost, bumpPath()))
}

func TestExecutorDirectGetRedirect(t *testing.T) {
	site := newFakeSite(t)
	site.listing = func(w http.ResponseWriter, _ *http.Request) {
		writeHtml(w, 200, "<html><body>listing</body></html>")
	}
	site.bump = func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet {
			redirectToListing(w, req)
			return
		}
		writeHtml(w, 500, "")
	}

	result, _ := runExecutor(t, site, DefaultExecutorOptions(), &fakeSleeper{})
	require.Equal(t, Result{Success: true, Strategy: StrategyDirectGet}, result)
	require.Equal(t, 0, site.count(http.MethodPost, bumpPath()))
}
