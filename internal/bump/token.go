package bump

import (
	"bytes"
	"context"
	"fmt"
	"listingbump/internal/components/telemetry"
	"listingbump/lib/htmlutil"
	"listingbump/lib/textutil"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_token_fetcher_fetch = "token_fetcher.fetch"
)

// FormToken is echoed back on submission to prove the bump came from the listing page.
type FormToken string

const (
	tokenTimeout = 15 * time.Second
	// minHeuristicTokenLength is how long an unnamed hidden value must be to pass as a token.
	minHeuristicTokenLength = 32
)

type TokenFetcher struct {
	session      *Session
	listingIndex string
	tel          telemetry.API
}

// NewTokenFetcher sends listingIndex (ex. /classifieds) as the Referer of the listing page request.
func NewTokenFetcher(session *Session, listingIndex string, tel telemetry.API) TokenFetcher {
	return TokenFetcher{
		session:      session,
		listingIndex: listingIndex,
		tel:          telemetry.NewScopedAPI("bump", tel),
	}
}

// Fetch loads the listing page at target.Destination and extracts its form token.
func (f TokenFetcher) Fetch(ctx context.Context, target Target) (FormToken, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	endpoint := target.PageUrl(target.Destination)
	res, err := f.session.Request(ctx).
		SetHeader("Accept", "text/html").
		SetHeader("Referer", target.PageUrl(f.listingIndex)).
		Get(endpoint)
	if err != nil {
		f.tel.ReportBroken(report_token_fetcher_fetch, fmt.Errorf("fetch: %w", err), endpoint)
		return "", &TokenFetchError{Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		f.tel.ReportBroken(
			report_token_fetcher_fetch,
			fmt.Errorf("unexpected status %d", res.StatusCode()),
			endpoint,
		)
		return "", &TokenFetchError{Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		f.tel.ReportBroken(report_token_fetcher_fetch, fmt.Errorf("parse: %w", err), endpoint)
		return "", &TokenFetchError{Status: res.StatusCode(), Err: err}
	}

	token, field := ExtractToken(doc)
	if token == "" {
		f.tel.ReportBroken(report_token_fetcher_fetch, ErrTokenNotFound, endpoint)
		return "", &TokenFetchError{Status: res.StatusCode(), Err: ErrTokenNotFound}
	}

	f.tel.ReportInfo("form token found", field, textutil.Preview(string(token), 20))
	return token, nil
}

// ExtractToken searches the page, in order, for a form_token input, a form_build_id input,
// then any hidden input with a long value. The name of the field that matched is returned
// with the token, both are empty if nothing matched.
func ExtractToken(doc *goquery.Document) (FormToken, string) {
	for _, name := range []string{"form_token", "form_build_id"} {
		value := doc.Find(fmt.Sprintf("input[name=%s]", name)).AttrOr("value", "")
		if value != "" {
			return FormToken(value), name
		}
	}

	for _, input := range htmlutil.GetInputs(doc.Find("input")) {
		if input.Type != "hidden" || input.Name == "form_id" {
			continue
		}
		if len(input.Value) > minHeuristicTokenLength {
			return FormToken(input.Value), input.Name
		}
	}
	return "", ""
}
