package config

const (
	defaultPoolN        = 650
	defaultFinalN       = 500
	defaultSamplingSeed = 1337

	defaultDiscoveryTokenEnv   = "DISCOVERY_TOKEN"
	defaultDiscoveryBaseURL    = "https://api.apify.com"
	defaultPrimaryActor        = "apify/instagram-hashtag-scraper"
	defaultFallbackActor       = "apify/instagram-scraper"
	defaultResultsType         = "posts"
	defaultResultsLimit        = 150
	defaultRunBatchQueries     = 4
	defaultDiscoveryTimeoutSec = 600

	defaultLabelingAPIKeyEnv     = "LABELING_API_KEY"
	defaultLabelingBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultPrimaryModel          = "openai/gpt-5-nano"
	defaultEscalationModel       = "openai/gpt-5-mini"
	defaultEscalationThreshold   = 0.70
	defaultMaxOutputTokens       = 650
	defaultLabelingTimeoutSec    = 60
	defaultLabelingReferer       = "https://github.com/loom-corpus/loom"
	defaultLabelingTitle         = "Loom Corpus Builder"
	defaultMinCaptionChars       = 40
	defaultMaxPostsPerOwner      = 10
	defaultMaxIterations         = 200
	defaultStagnationWindow      = 10
	defaultStagnationMinEligible = 15
	defaultMaxRawItems           = 20000
	defaultBackoffSeconds        = 10
	defaultMaxNewTermsPerIter    = 15
	defaultMinHashtagFreq        = 4

	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultOutputDir = "out"
)

var defaultSeedTerms = []string{
	"calisthenics",
	"streetworkout",
	"bodyweighttraining",
	"bodyweightworkout",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Targets: Targets{
			PoolN:        defaultPoolN,
			FinalN:       defaultFinalN,
			SamplingSeed: defaultSamplingSeed,
		},
		Discovery: Discovery{
			TokenEnv:             defaultDiscoveryTokenEnv,
			BaseURL:              defaultDiscoveryBaseURL,
			PrimaryActor:         defaultPrimaryActor,
			FallbackActor:        defaultFallbackActor,
			ResultsType:          defaultResultsType,
			ResultsLimitPerQuery: defaultResultsLimit,
			RunBatchQueries:      defaultRunBatchQueries,
			KeywordSearch:        true,
			TimeoutSeconds:       defaultDiscoveryTimeoutSec,
		},
		Labeling: Labeling{
			APIKeyEnv:                     defaultLabelingAPIKeyEnv,
			BaseURL:                       defaultLabelingBaseURL,
			PrimaryModel:                  defaultPrimaryModel,
			EscalationModel:               defaultEscalationModel,
			EscalationConfidenceThreshold: defaultEscalationThreshold,
			MaxOutputTokens:               defaultMaxOutputTokens,
			TimeoutSeconds:                defaultLabelingTimeoutSec,
			Referer:                       defaultLabelingReferer,
			Title:                         defaultLabelingTitle,
		},
		Filters: Filters{
			MinCaptionChars:  defaultMinCaptionChars,
			MaxPostsPerOwner: defaultMaxPostsPerOwner,
			AllowReels:       true,
			RejectSponsored:  false,
		},
		Loop: Loop{
			MaxIterations:            defaultMaxIterations,
			StagnationWindow:         defaultStagnationWindow,
			StagnationMinNewEligible: defaultStagnationMinEligible,
			MaxRawItems:              defaultMaxRawItems,
			BackoffSeconds:           defaultBackoffSeconds,
		},
		Querying: Querying{
			SeedTerms: append([]string(nil), defaultSeedTerms...),
			Expansion: Expansion{
				Enabled:                  true,
				MaxNewTermsPerIteration:  defaultMaxNewTermsPerIter,
				MinHashtagFreqInEligible: defaultMinHashtagFreq,
			},
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Paths: Paths{
			OutputDir: defaultOutputDir,
		},
	}
}
