package bump

import (
	"net/url"
	"regexp"
	"strings"
)

// Target is the listing a run bumps, it is derived once from the bump url and never modified.
type Target struct {
	// NodeId is the numeric listing id from /bump/node/<digits>.
	NodeId string
	// Destination is the root-relative listing path, verbatim from the query string.
	Destination string
	// BumpUrl is the bump url without its query string.
	BumpUrl string
	// FullUrl is the bump url as given.
	FullUrl string
	// SiteUrl is the scheme and host of the bump url.
	SiteUrl string
}

var nodeIdRegex = regexp.MustCompile(`/bump/node/(\d+)`)

// ParseTarget parses a bump url of the shape https://<host>/bump/node/<digits>?destination=<path>.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)

	base, query, _ := strings.Cut(raw, "?")

	groups := nodeIdRegex.FindStringSubmatch(base)
	if len(groups) < 2 {
		return Target{}, &ParseError{Reason: NoNodeId, Url: raw}
	}

	destination, ok := queryValue(query, "destination")
	if !ok || !strings.HasPrefix(destination, "/") {
		return Target{}, &ParseError{Reason: NoDestination, Url: raw}
	}

	site, err := url.Parse(base)
	if err != nil || site.Host == "" || (site.Scheme != "http" && site.Scheme != "https") {
		return Target{}, &ParseError{Reason: InvalidUrl, Url: raw}
	}

	return Target{
		NodeId:      groups[1],
		Destination: destination,
		BumpUrl:     base,
		FullUrl:     raw,
		SiteUrl:     site.Scheme + "://" + site.Host,
	}, nil
}

// queryValue finds key in a raw query string without decoding the value.
func queryValue(query, key string) (string, bool) {
	if query == "" {
		return "", false
	}
	for _, param := range strings.Split(query, "&") {
		k, v, _ := strings.Cut(param, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

// PageUrl resolves a root-relative path against the site.
func (t Target) PageUrl(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.SiteUrl + path
}

// DirectUrl is the bump url with only the destination query parameter.
func (t Target) DirectUrl() string {
	return t.BumpUrl + "?destination=" + t.Destination
}

// Alias returns the account segment of a /jobseeker/<alias>/... destination.
func (t Target) Alias() string {
	parts := strings.Split(t.Destination, "/")
	if len(parts) >= 3 && parts[1] == "jobseeker" && parts[2] != "" {
		return parts[2]
	}
	return ""
}
