package bump

import (
	"context"
	"listingbump/internal/components/telemetry"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedQat(t *testing.T, user map[string]any) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user": user,
	}).SignedString([]byte("unknown to the client"))
	require.NoError(t, err)
	return token
}

func TestIdentityFromCookies(t *testing.T) {
	target, err := ParseTarget("https://example.com/bump/node/1?destination=/jobseeker/alice/job-title")
	require.NoError(t, err)
	noAlias, err := ParseTarget("https://example.com/bump/node/1?destination=/vehicles/car")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		qat      string
		target   Target
		expected Identity
	}{
		{
			name:     "alias",
			qat:      signedQat(t, map[string]any{"alias": "bob", "name": "Bob B", "email": "bob@example.com"}),
			target:   target,
			expected: Identity{Alias: "bob", Email: "bob@example.com"},
		},
		{
			name:     "name",
			qat:      signedQat(t, map[string]any{"name": "carol"}),
			target:   target,
			expected: Identity{Alias: "carol"},
		},
		{
			name:     "email local part",
			qat:      signedQat(t, map[string]any{"email": "dave@example.com"}),
			target:   noAlias,
			expected: Identity{Alias: "dave", Email: "dave@example.com"},
		},
		{
			name:     "no user claim",
			qat:      signedQat(t, nil),
			target:   target,
			expected: Identity{Alias: "alice"},
		},
		{
			name:     "not a jwt",
			qat:      "qat-value",
			target:   target,
			expected: Identity{Alias: "alice"},
		},
		{
			name:     "nothing known",
			target:   noAlias,
			expected: Identity{},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			cookies := Cookies{"qatarliving-sso-token": "sso"}
			if test.qat != "" {
				cookies["qat"] = test.qat
			}
			require.Equal(t, test.expected, IdentityFromCookies(cookies, test.target))
		})
	}
}

func TestIdentityString(t *testing.T) {
	require.Equal(t, "bob <bob@example.com>", Identity{Alias: "bob", Email: "bob@example.com"}.String())
	require.Equal(t, "bob", Identity{Alias: "bob"}.String())
	require.Equal(t, "unknown", Identity{}.String())
}

func TestResolveIdentity(t *testing.T) {
	testCases := []struct {
		name     string
		account  http.HandlerFunc
		pages    map[string]http.HandlerFunc
		expected string
	}{
		{
			name: "profile link on account page",
			account: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, `<nav>
					<a href="/user/logout">Log out</a>
					<a href="/user/edit">My Account</a>
					<a href="/user/bob-smith">bob-smith</a>
				</nav>`)
			},
			expected: "bob-smith",
		},
		{
			name: "author meta on a later profile page",
			account: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 403, "forbidden")
			},
			pages: map[string]http.HandlerFunc{
				"/profile": func(w http.ResponseWriter, _ *http.Request) {
					writeHtml(w, 200, `<html><head><meta name="author" content="@carol"></head></html>`)
				},
			},
			expected: "carol",
		},
		{
			name: "first 200 page decides",
			account: func(w http.ResponseWriter, _ *http.Request) {
				writeHtml(w, 200, accountPage)
			},
			pages: map[string]http.HandlerFunc{
				"/my-account": func(w http.ResponseWriter, _ *http.Request) {
					writeHtml(w, 200, `<a href="/user/dave">dave</a>`)
				},
			},
			expected: "alice",
		},
		{
			name:     "no profile pages",
			expected: "alice",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			site := newFakeSite(t)
			site.account = test.account
			site.pages = test.pages

			tel := telemetry.NewRecorderAPI()
			bumper, err := NewBumper(Job{Cookies: testCookies, BumpUrl: site.bumpUrl()}, testOptions(&fakeSleeper{}), tel)
			require.NoError(t, err)

			require.Equal(t, test.expected, bumper.ResolveIdentity(context.Background()).Alias)
		})
	}
}

func TestResolveIdentityPrefersJwt(t *testing.T) {
	site := newFakeSite(t)

	cookies := Cookies{
		"qatarliving-sso-token": "sso",
		"qat":                   signedQat(t, map[string]any{"alias": "erin"}),
	}
	bumper, err := NewBumper(Job{Cookies: cookies, BumpUrl: site.bumpUrl()}, testOptions(&fakeSleeper{}), telemetry.NewRecorderAPI())
	require.NoError(t, err)

	require.Equal(t, "erin", bumper.ResolveIdentity(context.Background()).Alias)
	require.Zero(t, site.count(http.MethodGet, "/user"))
}
