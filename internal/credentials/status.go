package credentials

import (
	"fmt"
	"listingbump/internal/bump"
	"listingbump/lib/textutil"
	"slices"
	"sort"
)

// DefaultEssentialCookies must all be present for the site to recognize the session.
var DefaultEssentialCookies = []string{"qatarliving-sso-token", "qat"}

// InformationalCookies are shown in the status but their absence changes nothing.
var InformationalCookies = []string{"_ga", "_gid"}

const previewLength = 50

type CookieStatus struct {
	Name      string
	Essential bool
	Present   bool
	Preview   string
}

type Status struct {
	Total   int
	Cookies []CookieStatus
	// Ready is true when every essential cookie is present.
	Ready bool
}

// Missing lists the essential cookies that are not present.
func (s Status) Missing() []string {
	var missing []string
	for _, cookie := range s.Cookies {
		if cookie.Essential && !cookie.Present {
			missing = append(missing, cookie.Name)
		}
	}
	return missing
}

// CheckCookies reports on the essential and informational cookies, with a preview of each
// value, followed by any other cookie present in alphabetical order.
func CheckCookies(cookies bump.Cookies, essential []string) Status {
	if len(essential) == 0 {
		essential = DefaultEssentialCookies
	}

	status := Status{Total: len(cookies), Ready: true}
	seen := map[string]bool{}
	add := func(name string, isEssential bool) {
		if seen[name] {
			return
		}
		seen[name] = true

		value, present := cookies[name]
		status.Cookies = append(status.Cookies, CookieStatus{
			Name:      name,
			Essential: isEssential,
			Present:   present,
			Preview:   textutil.Preview(value, previewLength),
		})
		if isEssential && !present {
			status.Ready = false
		}
	}

	for _, name := range essential {
		add(name, true)
	}
	for _, name := range InformationalCookies {
		add(name, false)
	}

	var rest []string
	for name := range cookies {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		add(name, slices.Contains(essential, name))
	}
	return status
}

// CookieFinderScript is pasted into the browser console on a logged in page of site, it
// prints the page's cookies as the json object the cookies file expects.
func CookieFinderScript(site string) string {
	return fmt.Sprintf(`// 1. log in on %[1]s
// 2. open the developer console (F12) on any page of %[1]s
// 3. paste this script and press enter
// 4. save the printed json as %[2]s, or put it in %[3]s
// httponly cookies are not visible here, copy them from the storage tab of the developer tools
const cookies = {};
document.cookie.split(";").forEach((pair) => {
  const [name, ...rest] = pair.trim().split("=");
  if (name) cookies[name] = rest.join("=");
});
console.log(JSON.stringify(cookies));
copy(JSON.stringify(cookies));
`, site, DefaultCookiesFile, EnvCookies)
}
