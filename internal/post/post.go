// Package post defines the normalized post record extracted from raw
// discovery items. Extraction is deliberately permissive: fields are optional
// except for a usable URL, and known field aliases from different actor
// versions are tolerated.
package post

import "strings"

// Post is a stable, minimal record used for filtering, dedup, and labeling.
type Post struct {
	URL       string
	PostID    string
	ShortCode string

	OwnerUsername string
	OwnerID       string

	Caption  string
	Hashtags []string
	Mentions []string

	Alt         string
	Type        string
	ProductType string
	IsSponsored *bool
	Timestamp   string
}

// FromItem extracts a normalized post from a raw discovery item. It returns
// nil when the item carries no usable URL.
func FromItem(item map[string]any) *Post {
	if item == nil {
		return nil
	}

	url := firstString(item, "url", "postUrl", "post_url", "postURL")
	if url == "" {
		return nil
	}

	hashtags := stringList(item, "#", "hashtags", "hashTags")
	mentions := stringList(item, "@", "mentions", "userMentions")

	return &Post{
		URL:           url,
		PostID:        firstString(item, "id", "postId", "post_id", "pk"),
		ShortCode:     firstString(item, "shortCode", "short_code", "code"),
		OwnerUsername: firstString(item, "ownerUsername", "owner_username", "username"),
		OwnerID:       firstString(item, "ownerId", "owner_id"),
		Caption:       firstString(item, "caption", "captionText", "text", "caption_text"),
		Hashtags:      hashtags,
		Mentions:      mentions,
		Alt:           firstString(item, "alt", "accessibility_caption", "accessibilityCaption", "accessibilityCaptionText"),
		Type:          firstString(item, "type", "postType"),
		ProductType:   firstString(item, "productType", "product_type"),
		IsSponsored:   firstBool(item, "isSponsored", "sponsored"),
		Timestamp:     firstString(item, "timestamp", "takenAt", "taken_at", "date"),
	}
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func firstBool(item map[string]any, keys ...string) *bool {
	for _, key := range keys {
		if b, ok := item[key].(bool); ok {
			value := b
			return &value
		}
	}
	return nil
}

// stringList coerces a list-valued field into cleaned strings, stripping the
// given prefix and dropping duplicates case-insensitively while preserving
// the first-seen casing.
func stringList(item map[string]any, prefix string, keys ...string) []string {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		switch value := raw.(type) {
		case string:
			if cleaned := cleanListEntry(value, prefix); cleaned != "" {
				return []string{cleaned}
			}
			return nil
		case []any:
			out := make([]string, 0, len(value))
			seen := make(map[string]struct{}, len(value))
			for _, entry := range value {
				s, ok := entry.(string)
				if !ok {
					continue
				}
				cleaned := cleanListEntry(s, prefix)
				if cleaned == "" {
					continue
				}
				lowered := strings.ToLower(cleaned)
				if _, dup := seen[lowered]; dup {
					continue
				}
				seen[lowered] = struct{}{}
				out = append(out, cleaned)
			}
			return out
		}
	}
	return nil
}

func cleanListEntry(value, prefix string) string {
	s := strings.TrimSpace(value)
	if prefix != "" && strings.HasPrefix(s, prefix) {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	return s
}
