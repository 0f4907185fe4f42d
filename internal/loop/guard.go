package loop

import (
	"encoding/json"

	"loom/internal/decision"
	"loom/internal/post"
	"loom/internal/services/discovery"
	"loom/internal/textutil"
)

// ownerKey identifies a post's author for per-owner accounting. Username wins
// over the numeric id so the same account counts once regardless of which
// field the actor populated.
func ownerKey(p *post.Post) string {
	if p.OwnerUsername != "" {
		return "user:" + textutil.Fold(p.OwnerUsername)
	}
	if p.OwnerID != "" {
		return "user_id:" + p.OwnerID
	}
	return ""
}

// applyDominanceGuard demotes an eligible decision when its owner has already
// filled the per-owner quota. Accepted posts consume quota; rejected and
// anonymous posts do not.
func applyDominanceGuard(d decision.Decision, p *post.Post, maxPerOwner int, ownerCounts map[string]int) decision.Decision {
	if !d.Eligible || maxPerOwner <= 0 {
		return d
	}
	key := ownerKey(p)
	if key == "" {
		return d
	}
	if ownerCounts[key] >= maxPerOwner {
		return decision.MarkIneligible(d, decision.ReasonDominanceGuard)
	}
	ownerCounts[key]++
	return d
}

func decodeItem(raw string) (discovery.Item, bool) {
	var item map[string]any
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, false
	}
	return item, item != nil
}
