package labeling

const decisionSchemaName = "corpus_post_decision"

const systemInstructions = `You label Instagram posts for an English-only research corpus on calisthenics/bodyweight training.

Use ONLY the provided fields (caption/hashtags/alt/type/isSponsored/etc.). Do not assume what is in the video/image.

Return a JSON object that matches the provided schema EXACTLY.

Guidelines:
- English-only: reject if mostly non-English or too mixed to analyze.
- Topic: accept only if clearly about calisthenics / street workout / bodyweight training, skills, progressions, rehab related to bodyweight work.
  Reject gym-only weightlifting/bodybuilding/crossfit/yoga/parkour/bouldering.
- Caption quality: reject if empty/emoji-only/hashtag-only or too fragmentary to analyze.
- Commercial: reject if the post is exclusively an ad (e.g., only promotion/codes/DM to buy) with no substantive training content.
- Provide concise eligibility_reasons explaining accept/reject.
- Fill tags:
  - genre: choose the best enum value
  - narrative_labels: 1-3 short labels (or empty if none)
  - discourse_moves: common moves present (or empty)
  - neoliberal_signals: only if present (or empty)

overall_confidence is 0-1.`

// decisionSchema is hand-authored to stay within the JSON Schema subset that
// structured outputs support.
func decisionSchema(genres []string) map[string]any {
	enum := make([]any, len(genres))
	for i, genre := range genres {
		enum[i] = genre
	}
	stringArray := func() map[string]any {
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"eligible":            map[string]any{"type": "boolean"},
			"eligibility_reasons": stringArray(),
			"language": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"is_english": map[string]any{"type": "boolean"},
					"confidence": map[string]any{"type": "number"},
				},
				"required": []any{"is_english", "confidence"},
			},
			"topic": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"is_bodyweight_calisthenics": map[string]any{"type": "boolean"},
					"confidence":                 map[string]any{"type": "number"},
					"topic_notes":                map[string]any{"type": "string"},
				},
				"required": []any{"is_bodyweight_calisthenics", "confidence", "topic_notes"},
			},
			"commercial": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"is_exclusively_commercial": map[string]any{"type": "boolean"},
					"signals":                   stringArray(),
				},
				"required": []any{"is_exclusively_commercial", "signals"},
			},
			"caption_quality": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"is_analyzable": map[string]any{"type": "boolean"},
					"issues":        stringArray(),
				},
				"required": []any{"is_analyzable", "issues"},
			},
			"tags": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"genre":              map[string]any{"type": "string", "enum": enum},
					"narrative_labels":   stringArray(),
					"discourse_moves":    stringArray(),
					"neoliberal_signals": stringArray(),
				},
				"required": []any{"genre", "narrative_labels", "discourse_moves", "neoliberal_signals"},
			},
			"overall_confidence": map[string]any{"type": "number"},
		},
		"required": []any{
			"eligible", "eligibility_reasons", "language", "topic",
			"commercial", "caption_quality", "tags", "overall_confidence",
		},
	}
}
