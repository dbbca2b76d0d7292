package history

import (
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a URL for ledger keying: lower-cased host,
// leading www. stripped, single trailing slash stripped, query string and
// fragment dropped. On parse failure it falls back to a lower-cased
// trimmed copy of the raw string; it never fails.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.ToLower(trimmed)
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	path := parsed.Path
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}

	return parsed.Scheme + "://" + host + path
}
