package bump

import (
	"bytes"
	"context"
	"fmt"
	"listingbump/internal/components/telemetry"
	"listingbump/lib/htmlutil"
	"listingbump/lib/textutil"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/golang-jwt/jwt/v5"
)

const (
	report_identity_profile = "identity.profile"
)

// Identity is who the cookies appear to belong to, it is only ever displayed.
type Identity struct {
	Alias string
	Email string
}

func (i Identity) String() string {
	switch {
	case i.Alias != "" && i.Email != "":
		return i.Alias + " <" + i.Email + ">"
	case i.Alias != "":
		return i.Alias
	case i.Email != "":
		return i.Email
	}
	return "unknown"
}

const identityCookie = "qat"

// IdentityFromCookies reads the account out of the qat cookie's jwt payload, the signature is
// not checked. When that fails it falls back to the alias in a /jobseeker/<alias>/ destination.
func IdentityFromCookies(cookies Cookies, target Target) Identity {
	id := identityFromJwt(cookies[identityCookie])
	if id.Alias == "" {
		id.Alias = target.Alias()
	}
	return id
}

func identityFromJwt(token string) Identity {
	if token == "" {
		return Identity{}
	}

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return Identity{}
	}
	user, ok := claims["user"].(map[string]any)
	if !ok {
		return Identity{}
	}

	id := Identity{}
	email, _ := user["email"].(string)
	id.Email = email

	if alias, _ := user["alias"].(string); alias != "" {
		id.Alias = alias
	} else if name, _ := user["name"].(string); name != "" {
		id.Alias = name
	} else if local, _, found := strings.Cut(email, "@"); found && local != "" {
		id.Alias = local
	}
	return id
}

// ProfilePaths are tried, in order, after the account page when it does not answer 200.
var ProfilePaths = []string{"/my-account", "/account", "/profile"}

// genericLinkLabels are /user/ link texts that never name the account.
var genericLinkLabels = append([]string{"log in", "login", "sign in", "register", "edit"}, LoginIndicators...)

const profileTimeout = 10 * time.Second

// ProfileAlias reads the account name off the first of paths that answers 200: the text of
// a /user/ link that is not a generic label, else the author or twitter:creator meta tag.
// Empty if nothing names the account.
func ProfileAlias(ctx context.Context, session *Session, paths []string, tel telemetry.API) string {
	for _, path := range paths {
		endpoint := session.Site.JoinPath(path).String()

		reqCtx, cancel := context.WithTimeout(ctx, profileTimeout)
		res, err := session.Request(reqCtx).
			SetHeader("Accept", "text/html").
			Get(endpoint)
		cancel()
		if err != nil {
			tel.ReportDebug(report_identity_profile, fmt.Errorf("fetch: %w", err), endpoint)
			continue
		}
		if res.StatusCode() != http.StatusOK {
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
		if err != nil {
			tel.ReportDebug(report_identity_profile, fmt.Errorf("parse: %w", err), endpoint)
			return ""
		}
		return aliasFromProfile(doc)
	}
	return ""
}

func aliasFromProfile(doc *goquery.Document) string {
	for _, anchor := range htmlutil.GetAnchors(doc.Find("a")) {
		if !strings.Contains(anchor.Href, "/user/") {
			continue
		}
		if len(anchor.Name) <= 1 || textutil.ContainsAnyFold(anchor.Name, genericLinkLabels) {
			continue
		}
		return anchor.Name
	}

	for _, name := range []string{"author", "twitter:creator"} {
		content := doc.Find(fmt.Sprintf(`meta[name="%s"]`, name)).AttrOr("content", "")
		content = strings.TrimPrefix(strings.TrimSpace(content), "@")
		if content != "" {
			return content
		}
	}
	return ""
}
