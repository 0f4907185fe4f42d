package dedupe_test

import (
	"testing"

	"loom/internal/dedupe"
	"loom/internal/post"
)

func TestCanonicalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://WWW.Example.com/P/AbC/?utm=a#frag", "https://example.com/P/AbC"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"not a url///", "not a url"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := dedupe.CanonicalizeURL(tc.in); got != tc.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeyPrefersContentID(t *testing.T) {
	a := &post.Post{PostID: "1", URL: "https://x.com/p/1/"}
	b := &post.Post{PostID: "1", URL: "https://x.com/p/1/?utm=a"}
	if dedupe.Key(a) != "id:1" || dedupe.Key(b) != "id:1" {
		t.Fatalf("keys differ: %q vs %q", dedupe.Key(a), dedupe.Key(b))
	}
}

func TestKeyFallsBackToShortCodeThenURL(t *testing.T) {
	p := &post.Post{ShortCode: "AbC", URL: "https://x.com/p/AbC/"}
	if got := dedupe.Key(p); got != "shortcode:AbC" {
		t.Fatalf("Key = %q", got)
	}
	p = &post.Post{URL: "https://www.x.com/p/AbC/"}
	if got := dedupe.Key(p); got != "url:https://x.com/p/AbC" {
		t.Fatalf("Key = %q", got)
	}
}
