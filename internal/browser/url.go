// internal/browser/url.go
package browser

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

var (
	// schemePrefix matches an RFC 3986 scheme and its colon.
	schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	// portPrefix matches the port of a scheme-less "host:port" target.
	portPrefix = regexp.MustCompile(`^[0-9]+(?:[/?#]|$)`)
)

// hasScheme reports whether target already names a scheme. "localhost:8080"
// is a host and port, "mailto:a@b.c" and "ftp://host" carry a scheme.
func hasScheme(target string) bool {
	loc := schemePrefix.FindStringIndex(target)
	if loc == nil {
		return false
	}
	rest := target[loc[1]:]
	return strings.HasPrefix(rest, "//") || !portPrefix.MatchString(rest)
}

// NormalizeURL prepares a model-supplied navigation target. A missing scheme
// becomes https, any existing scheme is kept, and an internationalized host is converted to its ASCII form.
func NormalizeURL(raw string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		return ""
	}

	if !hasScheme(target) {
		target = "https://" + strings.TrimPrefix(target, "//")
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" || isASCII(u.Host) {
		return target
	}

	host, err := idna.Lookup.ToASCII(u.Hostname())
	if err != nil {
		return target
	}
	if port := u.Port(); port != "" {
		host += ":" + port
	}
	u.Host = host
	return u.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
