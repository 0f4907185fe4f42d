// Package decision defines the structured labeling decision record and the
// deterministic eligibility rules computed from its fields.
package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Genre values the labeling model may assign.
var Genres = []string{
	"training_log",
	"tutorial_coaching",
	"motivation_mindset",
	"personal_story_reflection",
	"identity_community",
	"transformation_progress",
	"injury_rehab",
	"humor_meme",
	"educational_sciency",
	"other",
}

// Language holds the language assessment block.
type Language struct {
	IsEnglish  bool    `json:"is_english"`
	Confidence float64 `json:"confidence"`
}

// Topic holds the topic assessment block.
type Topic struct {
	IsBodyweightCalisthenics bool    `json:"is_bodyweight_calisthenics"`
	Confidence               float64 `json:"confidence"`
	TopicNotes               string  `json:"topic_notes"`
}

// Commercial holds the commercial-intent assessment block.
type Commercial struct {
	IsExclusivelyCommercial bool     `json:"is_exclusively_commercial"`
	Signals                 []string `json:"signals"`
}

// CaptionQuality holds the caption quality assessment block.
type CaptionQuality struct {
	IsAnalyzable bool     `json:"is_analyzable"`
	Issues       []string `json:"issues"`
}

// Tags holds the free-form tagging block.
type Tags struct {
	Genre             string   `json:"genre"`
	NarrativeLabels   []string `json:"narrative_labels"`
	DiscourseMoves    []string `json:"discourse_moves"`
	NeoliberalSignals []string `json:"neoliberal_signals"`
}

// Decision is the structured object returned by the labeling collaborator.
type Decision struct {
	Eligible           bool           `json:"eligible"`
	EligibilityReasons []string       `json:"eligibility_reasons"`
	Language           Language       `json:"language"`
	Topic              Topic          `json:"topic"`
	Commercial         Commercial     `json:"commercial"`
	CaptionQuality     CaptionQuality `json:"caption_quality"`
	Tags               Tags           `json:"tags"`
	OverallConfidence  float64        `json:"overall_confidence"`
}

// Parse decodes a decision payload strictly: unknown fields are rejected and
// confidences and genre are validated.
func Parse(raw []byte) (Decision, error) {
	var d Decision
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Validate checks structural constraints on the decision fields.
func (d Decision) Validate() error {
	for name, value := range map[string]float64{
		"language.confidence": d.Language.Confidence,
		"topic.confidence":    d.Topic.Confidence,
		"overall_confidence":  d.OverallConfidence,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("decision field %s out of range: %v", name, value)
		}
	}
	if d.Tags.Genre != "" {
		found := false
		for _, genre := range Genres {
			if genre == d.Tags.Genre {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("decision genre unknown: %q", d.Tags.Genre)
		}
	}
	return nil
}

// MarshalCompact serializes the decision as compact JSON for storage.
func (d Decision) MarshalCompact() ([]byte, error) {
	return json.Marshal(d)
}
