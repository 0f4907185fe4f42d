package decision

// Reason markers appended when the deterministic rules override the model's
// top-level flag.
const (
	ReasonOverriddenAccept = "eligibility_overridden_accept"
	ReasonOverriddenReject = "eligibility_overridden_reject"
	ReasonDominanceGuard   = "dominance_guard"
)

// Compute derives eligibility deterministically from the structured fields.
// A post is accepted only when it is English, on topic, analyzable, and not
// exclusively commercial. The returned failures are machine-readable rule
// names.
func Compute(d Decision) (bool, []string) {
	var failures []string
	if !d.Language.IsEnglish {
		failures = append(failures, "language_not_english")
	}
	if !d.Topic.IsBodyweightCalisthenics {
		failures = append(failures, "topic_not_bodyweight_calisthenics")
	}
	if !d.CaptionQuality.IsAnalyzable {
		failures = append(failures, "caption_not_analyzable")
	}
	if d.Commercial.IsExclusivelyCommercial {
		failures = append(failures, "exclusively_commercial")
	}
	return len(failures) == 0, failures
}

// Enforce makes the top-level eligible flag consistent with the deterministic
// rules. When the model's flag disagrees, it is overridden and marker reasons
// are appended.
func Enforce(d Decision) Decision {
	computed, failures := Compute(d)
	if d.Eligible == computed {
		return d
	}

	marker := ReasonOverriddenReject
	if computed {
		marker = ReasonOverriddenAccept
	}
	additions := []string{marker}
	for _, failure := range failures {
		additions = append(additions, "eligibility_rule:"+failure)
	}

	d.Eligible = computed
	d.EligibilityReasons = appendUnique(d.EligibilityReasons, additions)
	return d
}

// MarkIneligible flips a decision to ineligible and appends the given reason
// marker once. Used by the dominance guard.
func MarkIneligible(d Decision, reason string) Decision {
	d.Eligible = false
	d.EligibilityReasons = appendUnique(d.EligibilityReasons, []string{reason})
	return d
}

func appendUnique(existing, additions []string) []string {
	out := make([]string, len(existing), len(existing)+len(additions))
	copy(out, existing)
	seen := make(map[string]struct{}, len(out))
	for _, reason := range out {
		seen[reason] = struct{}{}
	}
	for _, reason := range additions {
		if _, dup := seen[reason]; dup {
			continue
		}
		seen[reason] = struct{}{}
		out = append(out, reason)
	}
	return out
}
