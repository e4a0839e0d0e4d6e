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
)

const (
	report_authenticator_check = "authenticator.check"
)

// LoginIndicators only show up on pages rendered for a logged in account.
var LoginIndicators = []string{"logout", "log out", "my account", "sign out"}

const authTimeout = 15 * time.Second

// Authenticator verifies that the session cookies log in to the site.
type Authenticator struct {
	session *Session
	path    string
	tel     telemetry.API
}

// NewAuthenticator checks authentication against the page at path, ex. /user.
func NewAuthenticator(session *Session, path string, tel telemetry.API) Authenticator {
	return Authenticator{
		session: session,
		path:    path,
		tel:     telemetry.NewScopedAPI("bump", tel),
	}
}

// Check makes a single request to the account page. Request failures and non-200 statuses
// count as not authenticated, a page that cannot be inspected counts as authenticated and
// leaves the decision to the bump itself.
func (a Authenticator) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	endpoint := a.session.Site.JoinPath(a.path).String()
	res, err := a.session.Request(ctx).
		SetHeader("Accept", "text/html").
		Get(endpoint)
	if err != nil {
		a.tel.ReportWarning(report_authenticator_check, fmt.Errorf("fetch: %w", err), endpoint)
		return false
	}
	if res.StatusCode() != http.StatusOK {
		a.tel.ReportWarning(
			report_authenticator_check,
			fmt.Errorf("unexpected status %d", res.StatusCode()),
			endpoint,
		)
		return false
	}

	authenticated, err := inspectAccountPage(res.Body())
	if err != nil {
		a.tel.ReportWarning(
			report_authenticator_check,
			fmt.Errorf("inspect account page, assuming authenticated: %w", err),
			endpoint,
		)
		return true
	}
	if !authenticated {
		a.tel.ReportWarning(report_authenticator_check, fmt.Errorf("no login indicator on account page"), endpoint)
	}
	return authenticated
}

// inspectAccountPage looks for login indicators anywhere in the page source, then for links
// whose decoded href points at a logout endpoint.
func inspectAccountPage(body []byte) (bool, error) {
	if textutil.ContainsAnyFold(string(body), LoginIndicators) {
		return true, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	for _, anchor := range htmlutil.GetAnchors(doc.Find("a")) {
		if strings.Contains(strings.ToLower(anchor.Href), "logout") {
			return true, nil
		}
	}
	return false, nil
}
