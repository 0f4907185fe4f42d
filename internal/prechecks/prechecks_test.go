package prechecks_test

import (
	"strings"
	"testing"

	"loom/internal/config"
	"loom/internal/post"
	"loom/internal/prechecks"
)

func boolPtr(v bool) *bool { return &v }

func TestRun(t *testing.T) {
	base := config.Filters{MinCaptionChars: 10, AllowReels: true}

	cases := []struct {
		name    string
		post    post.Post
		filters config.Filters
		passed  bool
		reason  string
	}{
		{
			name:    "passes with long caption",
			post:    post.Post{Caption: "a substantial training log entry"},
			filters: base,
			passed:  true,
		},
		{
			name:    "missing caption",
			post:    post.Post{Caption: "   "},
			filters: base,
			reason:  "missing_caption",
		},
		{
			name:    "caption too short",
			post:    post.Post{Caption: "short"},
			filters: base,
			reason:  "caption_too_short",
		},
		{
			name:    "reels rejected by product type",
			post:    post.Post{Caption: "long enough caption", ProductType: "clips"},
			filters: config.Filters{AllowReels: false},
			reason:  "reels_not_allowed",
		},
		{
			name:    "video type rejected when product type missing",
			post:    post.Post{Caption: "long enough caption", Type: "Video"},
			filters: config.Filters{AllowReels: false},
			reason:  "reels_not_allowed",
		},
		{
			name:    "feed product passes without reels",
			post:    post.Post{Caption: "long enough caption", ProductType: "feed"},
			filters: config.Filters{AllowReels: false},
			passed:  true,
		},
		{
			name:    "sponsored rejected when configured",
			post:    post.Post{Caption: "long enough caption", IsSponsored: boolPtr(true)},
			filters: config.Filters{AllowReels: true, RejectSponsored: true},
			reason:  "sponsored_rejected",
		},
		{
			name:    "sponsored tolerated by default",
			post:    post.Post{Caption: "long enough caption", IsSponsored: boolPtr(true)},
			filters: base,
			passed:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := prechecks.Run(&tc.post, tc.filters)
			if result.Passed != tc.passed {
				t.Fatalf("passed = %v, want %v (reasons %v)", result.Passed, tc.passed, result.Reasons)
			}
			if tc.reason != "" && !strings.Contains(strings.Join(result.Reasons, ","), tc.reason) {
				t.Fatalf("reasons %v missing %q", result.Reasons, tc.reason)
			}
		})
	}
}
