// Package prechecks holds the deterministic fast rejects applied before any
// labeling call. They are conservative: a post is rejected only when it
// clearly cannot be used, regardless of semantics.
package prechecks

import (
	"strings"

	"loom/internal/config"
	"loom/internal/post"
)

// Result reports whether a post passed and why it did not.
type Result struct {
	Passed  bool
	Reasons []string
}

// Run applies the configured prechecks to a normalized post.
func Run(p *post.Post, filters config.Filters) Result {
	var reasons []string

	caption := strings.TrimSpace(p.Caption)
	switch {
	case caption == "":
		reasons = append(reasons, "missing_caption")
	case filters.MinCaptionChars > 0 && len([]rune(caption)) < filters.MinCaptionChars:
		reasons = append(reasons, "caption_too_short")
	}

	if !filters.AllowReels {
		product := strings.ToLower(strings.TrimSpace(p.ProductType))
		if product != "" {
			if product != "feed" {
				reasons = append(reasons, "reels_not_allowed")
			}
		} else if strings.EqualFold(strings.TrimSpace(p.Type), "video") {
			reasons = append(reasons, "reels_not_allowed")
		}
	}

	if filters.RejectSponsored && p.IsSponsored != nil && *p.IsSponsored {
		reasons = append(reasons, "sponsored_rejected")
	}

	return Result{Passed: len(reasons) == 0, Reasons: reasons}
}
