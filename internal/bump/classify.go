package bump

import (
	"listingbump/lib/textutil"
	"net/url"
	"strings"
)

// SuccessMarkers are the phrases the site shows once a listing has been bumped.
var SuccessMarkers = []string{"bumped", "success", "refreshed"}

var successStatuses = map[int]bool{
	200: true,
	302: true,
	303: true,
}

// ClassifiesAsSuccess is the one rule every bump path (direct GET, POST, GET fallbacks) is
// judged by: the status must be 200, 302 or 303, and either the body has a success marker
// (case-insensitive) or the path of the final url after redirects contains the destination.
func ClassifiesAsSuccess(status int, body, finalUrl, destination string) bool {
	if !successStatuses[status] {
		return false
	}
	if textutil.ContainsAnyFold(body, SuccessMarkers) {
		return true
	}
	return landedOnDestination(finalUrl, destination)
}

// landedOnDestination checks the path of finalUrl only, the bump url carries the destination
// in its query string so a response that was never redirected would otherwise match.
//
// The destination is compared as given and path-unescaped, since it is kept verbatim from the
// bump url while the final url may be in either form.
func landedOnDestination(finalUrl, destination string) bool {
	destPath, _, _ := strings.Cut(destination, "?")
	if destPath == "" || finalUrl == "" {
		return false
	}
	u, err := url.Parse(finalUrl)
	if err != nil {
		return false
	}

	if strings.Contains(u.EscapedPath(), destPath) || strings.Contains(u.Path, destPath) {
		return true
	}
	decodedDest, err := url.PathUnescape(destPath)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, decodedDest)
}
