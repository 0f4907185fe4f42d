// Package dedupe computes the stable dedup key that recognizes the same
// logical post across repeated discovery calls. The key prefers a content id,
// then a short code, then a canonicalized URL, and must be identical
// regardless of which discovery path produced the item.
package dedupe

import (
	"net/url"
	"strings"

	"loom/internal/post"
)

// CanonicalizeURL lower-cases scheme and host, strips a leading "www.",
// strips the trailing slash, and drops query and fragment. Values that do not
// parse as absolute URLs fall back to the input with trailing slashes
// removed.
func CanonicalizeURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(value, "/")
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimRight(parsed.Path, "/")
	if path == "" {
		path = "/"
	}

	canon := url.URL{
		Scheme: strings.ToLower(parsed.Scheme),
		Host:   host,
		Path:   path,
	}
	return canon.String()
}

// Key derives the dedup key for a post.
func Key(p *post.Post) string {
	if p.PostID != "" {
		return "id:" + p.PostID
	}
	if p.ShortCode != "" {
		return "shortcode:" + p.ShortCode
	}
	return "url:" + CanonicalizeURL(p.URL)
}
