package store

// RunRecord captures one invocation of the feedback loop.
type RunRecord struct {
	RunID        string
	StartedAt    string
	EndedAt      string
	ConfigHash   string
	SamplingSeed *int64
	Versions     map[string]string
}

// Unfinished reports whether the run has not been marked finished yet.
func (r *RunRecord) Unfinished() bool {
	return r != nil && r.EndedAt == ""
}

// EligiblePost is one row of the eligible pool, joined to its raw post.
type EligiblePost struct {
	PostKey           string
	URL               string
	ActorSource       string
	RawJSON           string
	FetchedAt         string
	Model             string
	OverallConfidence float64
	TokensTotal       *int
	DecidedAt         string
	DecisionJSON      string
}

// DecisionRecord is one appended labeling decision row.
type DecisionRecord struct {
	ID                int64
	PostKey           string
	URL               string
	Model             string
	Eligible          bool
	OverallConfidence float64
	DecisionJSON      string
	TokensTotal       *int
	CreatedAt         string
}

// SampleMeta is the persisted metadata of a final sample.
type SampleMeta struct {
	RunID          string
	SamplingSeed   int64
	PoolN          int
	FinalN         int
	PoolKeysSHA256 string
	CreatedAt      string
}
