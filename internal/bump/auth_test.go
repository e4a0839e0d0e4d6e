package bump

import (
	"context"
	"listingbump/internal/components/telemetry"
	"net/http"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthenticatorCheck(t *testing.T) {
	testCases := []struct {
		name     string
		handler  http.HandlerFunc
		expected bool
	}{
		{
			name: "logout link",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, accountPage)
			},
			expected: true,
		},
		{
			name: "indicator in text",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, `<html><body><h1>My Account</h1></body></html>`)
			},
			expected: true,
		},
		{
			name: "login page",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, `<html><body><form><input name="name"><button>Sign in</button></form></body></html>`)
			},
			expected: false,
		},
		{
			name: "indicator only in script",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, `<html><head><script>var endpoints = {logout: "/api/logout"};</script></head><body>Welcome</body></html>`)
			},
			expected: true,
		},
		{
			name: "indicator in attributes",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, `<html><body><button class="logout">Sign off</button><input value="My Account"></body></html>`)
			},
			expected: true,
		},
		{
			name: "entity encoded logout link",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, `<html><body><a href="/user/log&#111;ut">Leave</a></body></html>`)
			},
			expected: true,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 403, accountPage)
			},
			expected: false,
		},
		{
			name:     "dropped connection",
			handler:  dropConnection,
			expected: false,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			site := newFakeSite(t)
			site.account = test.handler

			tel := telemetry.NewRecorderAPI()
			auth := NewAuthenticator(site.session(t, tel), "/user", tel)
			require.Equal(t, test.expected, auth.Check(context.Background()))
			require.Equal(t, 1, site.count(http.MethodGet, "/user"))

			warnings := tel.Filter(telemetry.LevelWarning, report_authenticator_check)
			if test.expected {
				require.Empty(t, warnings)
			} else {
				require.NotEmpty(t, warnings)
			}
		})
	}
}

func TestAuthenticatorSendsSession(t *testing.T) {
	site := newFakeSite(t)
	site.account = func(w http.ResponseWriter, req *http.Request) {
		for name, value := range testCookies {
			cookie, err := req.Cookie(name)
			if err != nil || cookie.Value != value {
				writeHtml(w, 403, "missing cookie "+name)
				return
			}
		}
		if !slices.Contains(DefaultUserAgents, req.UserAgent()) {
			writeHtml(w, 403, "unexpected user agent")
			return
		}
		if req.Header.Get("Accept") != "text/html" {
			writeHtml(w, 406, "unexpected accept")
			return
		}
		writeHtml(w, 200, accountPage)
	}

	tel := telemetry.NewRecorderAPI()
	auth := NewAuthenticator(site.session(t, tel), "/user", tel)
	require.True(t, auth.Check(context.Background()))
}
