// Package loop drives the feedback-driven corpus build: it pops query terms,
// runs discovery, labels new posts, expands the term queue from eligible
// hashtags, and escalates to fallback discovery when acceptance stagnates.
package loop

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"loom/internal/config"
	"loom/internal/dedupe"
	"loom/internal/logging"
	"loom/internal/post"
	"loom/internal/prechecks"
	"loom/internal/services"
	"loom/internal/services/discovery"
	"loom/internal/services/labeling"
	"loom/internal/stagnation"
	"loom/internal/store"
	"loom/internal/termqueue"
	"loom/internal/textutil"
)

// Terminal run statuses.
const (
	StatusCompletedPool   = "completed_pool"
	StatusMaxRawItems     = "max_raw_items"
	StatusMaxIterations   = "max_iterations"
	StatusEmptyQueryQueue = "empty_query_queue"
)

const (
	maxResultsLimit     = 500
	fallbackSearchLimit = 20
	fallbackSearchSeeds = 3
	fallbackDatasetCap  = 50
	fallbackScrapeCap   = 10
)

// Discoverer runs the primary hashtag actor.
type Discoverer interface {
	RunAndFetch(ctx context.Context, terms []string, resultsLimit, datasetLimit int) (discovery.RunRef, []discovery.Item, error)
}

// Fallback runs the secondary actor for hashtag search and direct scraping.
type Fallback interface {
	SearchHashtags(ctx context.Context, query string, searchLimit, datasetLimit int) (discovery.RunRef, []discovery.Item, error)
	ScrapeURLs(ctx context.Context, urls []string, resultsLimit, datasetLimit int) (discovery.RunRef, []discovery.Item, error)
}

// Classifier labels one post.
type Classifier interface {
	Classify(ctx context.Context, p *post.Post) (labeling.Result, error)
}

// Result summarizes one finished (or capped) run.
type Result struct {
	RunID      string
	Status     string
	Iterations int
	RawPosts   int
	Decisions  int
	Eligible   int
}

// Controller owns one feedback loop execution against a state store.
type Controller struct {
	cfg        *config.Config
	store      *store.Store
	primary    Discoverer
	fallback   Fallback
	classifier Classifier
	logger     *slog.Logger
	sleeper    func(time.Duration)
}

// Option customizes the controller.
type Option func(*Controller)

// WithLogger attaches a logger; a nop logger is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSleeper overrides how the inter-iteration backoff sleeps (useful for
// tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Controller) {
		c.sleeper = sleeper
	}
}

// New constructs a controller over the given collaborators.
func New(cfg *config.Config, st *store.Store, primary Discoverer, fallback Fallback, classifier Classifier, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		store:      st,
		primary:    primary,
		fallback:   fallback,
		classifier: classifier,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runState carries the mutable per-run counters. Everything here is
// reconstructable from the store, which is what makes interrupted runs
// resumable.
type runState struct {
	runID         string
	eligibleTotal int
	rawTotal      int
	decisionTotal int
	seenKeys      map[string]struct{}
	hashtagCounts map[string]int
	ownerCounts   map[string]int
	attemptedKeys map[string]struct{}
	blocklistKeys map[string]struct{}
	queue         *termqueue.Queue
	resultsLimit  int
}

// Run executes the loop until a terminal condition is reached. A collaborator
// failure aborts without finishing the run so the next invocation resumes
// from the persisted state.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	state, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}

	tracker, err := stagnation.New(c.cfg.Loop.StagnationWindow, c.cfg.Loop.StagnationMinNewEligible)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "loop", "run", "stagnation tracker", err)
	}

	for iteration := 0; iteration < c.cfg.Loop.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrTransient, "loop", "run", "interrupted", err)
		}

		if state.eligibleTotal >= c.cfg.Targets.PoolN {
			return c.finish(ctx, state, StatusCompletedPool, iteration)
		}
		if state.rawTotal >= c.cfg.Loop.MaxRawItems {
			return c.finish(ctx, state, StatusMaxRawItems, iteration)
		}

		batch, err := c.nextBatch(state)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return c.finish(ctx, state, StatusEmptyQueryQueue, iteration)
		}
		for _, term := range batch {
			state.attemptedKeys[textutil.Fold(term)] = struct{}{}
		}

		c.logger.Info("iteration start",
			logging.Int(logging.FieldIteration, iteration),
			slog.Any("terms", batch),
			logging.Int("results_limit", state.resultsLimit),
			logging.Int("eligible_total", state.eligibleTotal),
		)

		runRef, items, err := c.primary.RunAndFetch(ctx, batch, state.resultsLimit, 0)
		if err != nil {
			return nil, err
		}
		if err := c.store.RecordActorRun(ctx, state.runID, runRef.ActorID, runRef.RunID, runRef.DatasetID); err != nil {
			return nil, err
		}

		newEligible, err := c.ingest(ctx, state, items, runRef.ActorID)
		if err != nil {
			return nil, err
		}

		if c.cfg.Querying.Expansion.Enabled {
			terms := selectExpansionTerms(state.hashtagCounts, selection{
				minFreq:       c.cfg.Querying.Expansion.MinHashtagFreqInEligible,
				maxTerms:      c.cfg.Querying.Expansion.MaxNewTermsPerIteration,
				blocklistKeys: state.blocklistKeys,
				attemptedKeys: state.attemptedKeys,
				presentKeys:   state.queue.PresentKeys(),
			})
			state.queue.AddMany(terms)
			if len(terms) > 0 {
				c.logger.Info("queue expanded",
					logging.Int(logging.FieldIteration, iteration),
					slog.Any("terms", terms),
				)
			}
		}

		if tracker.Push(newEligible) && state.eligibleTotal < c.cfg.Targets.PoolN {
			c.logger.Warn("acceptance stagnated, escalating discovery",
				logging.Int(logging.FieldIteration, iteration),
				logging.Int("new_eligible", newEligible),
			)
			if err := c.escalate(ctx, state); err != nil {
				return nil, err
			}
		}

		if c.cfg.Loop.BackoffSeconds > 0 {
			if err := c.sleep(ctx, time.Duration(c.cfg.Loop.BackoffSeconds)*time.Second); err != nil {
				return nil, services.Wrap(services.ErrTransient, "loop", "run", "interrupted", err)
			}
		}
	}

	return c.finish(ctx, state, StatusMaxIterations, c.cfg.Loop.MaxIterations)
}

// prepare resumes the latest unfinished run or creates a new one, then
// rebuilds all in-memory counters from the store.
func (c *Controller) prepare(ctx context.Context) (*runState, error) {
	configHash, err := c.cfg.Hash()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "loop", "prepare", "config hash", err)
	}

	var runID string
	if existing, err := c.store.LatestUnfinishedRun(ctx); err != nil {
		return nil, err
	} else if existing != nil {
		runID = existing.RunID
		c.logger.Info("resuming unfinished run", logging.String(logging.FieldRunID, runID))
	}

	seed := c.cfg.Targets.SamplingSeed
	record, err := c.store.CreateRun(ctx, store.CreateRunParams{
		RunID:        runID,
		ConfigHash:   configHash,
		SamplingSeed: &seed,
		Versions:     map[string]string{"go": runtime.Version()},
	})
	if err != nil {
		return nil, err
	}

	state := &runState{
		runID:         record.RunID,
		seenKeys:      map[string]struct{}{},
		hashtagCounts: map[string]int{},
		ownerCounts:   map[string]int{},
		attemptedKeys: map[string]struct{}{},
		blocklistKeys: map[string]struct{}{},
		queue:         termqueue.New(c.cfg.Querying.SeedTerms...),
		resultsLimit:  c.cfg.Discovery.ResultsLimitPerQuery,
	}

	if state.eligibleTotal, err = c.store.EligibleCount(ctx); err != nil {
		return nil, err
	}
	if state.rawTotal, err = c.store.RawPostCount(ctx); err != nil {
		return nil, err
	}
	if state.decisionTotal, err = c.store.DecisionCount(ctx); err != nil {
		return nil, err
	}
	if state.seenKeys, err = c.store.SeenPostKeys(ctx); err != nil {
		return nil, err
	}
	if err := c.rebuildCounters(ctx, state); err != nil {
		return nil, err
	}

	for _, term := range c.cfg.Querying.Expansion.BlocklistTerms {
		if normalized := termqueue.Normalize(term); normalized != "" {
			state.blocklistKeys[textutil.Fold(normalized)] = struct{}{}
		}
	}

	c.logger.Info("run prepared",
		logging.String(logging.FieldRunID, state.runID),
		logging.Int("eligible_total", state.eligibleTotal),
		logging.Int("raw_total", state.rawTotal),
		logging.Int("decision_total", state.decisionTotal),
	)
	return state, nil
}

// rebuildCounters replays the current eligible pool to restore hashtag and
// owner frequencies. Payloads that no longer parse are skipped, not fatal.
func (c *Controller) rebuildCounters(ctx context.Context, state *runState) error {
	payloads, err := c.store.EligibleRawPayloads(ctx)
	if err != nil {
		return err
	}
	for _, raw := range payloads {
		item, ok := decodeItem(raw)
		if !ok {
			continue
		}
		p := post.FromItem(item)
		if p == nil {
			continue
		}
		for _, tag := range p.Hashtags {
			state.hashtagCounts[tag]++
		}
		if key := ownerKey(p); key != "" {
			state.ownerCounts[key]++
		}
	}
	return nil
}

// nextBatch pops the next query terms, refilling once from the seed terms
// when the queue has drained.
func (c *Controller) nextBatch(state *runState) ([]string, error) {
	batch, err := state.queue.PopBatch(c.cfg.Discovery.RunBatchQueries)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "loop", "next batch", "", err)
	}
	if len(batch) > 0 {
		return batch, nil
	}
	state.queue.AddMany(c.cfg.Querying.SeedTerms)
	return state.queue.PopBatch(c.cfg.Discovery.RunBatchQueries)
}

// ingest stores new items and labels the ones that pass prechecks. It stops
// early once the pool target or the raw item cap is reached.
func (c *Controller) ingest(ctx context.Context, state *runState, items []discovery.Item, actorSource string) (int, error) {
	newEligible := 0
	for _, item := range items {
		p := post.FromItem(item)
		if p == nil {
			continue
		}
		key := dedupe.Key(p)
		if _, seen := state.seenKeys[key]; seen {
			continue
		}
		if state.rawTotal >= c.cfg.Loop.MaxRawItems {
			break
		}

		if err := c.store.UpsertRawPost(ctx, key, p.URL, actorSource, item); err != nil {
			return newEligible, err
		}
		state.seenKeys[key] = struct{}{}
		state.rawTotal++

		checks := prechecks.Run(p, c.cfg.Filters)
		if !checks.Passed {
			c.logger.Debug("precheck rejected",
				logging.String(logging.FieldPostKey, key),
				slog.Any("reasons", checks.Reasons),
			)
			continue
		}

		labeled, err := c.classifier.Classify(ctx, p)
		if err != nil {
			return newEligible, err
		}
		d := applyDominanceGuard(labeled.Decision, p, c.cfg.Filters.MaxPostsPerOwner, state.ownerCounts)

		if err := c.store.RecordDecision(ctx, key, p.URL, labeled.Model, d, labeled.TokensTotal); err != nil {
			return newEligible, err
		}
		state.decisionTotal++

		if d.Eligible {
			state.eligibleTotal++
			newEligible++
			for _, tag := range p.Hashtags {
				state.hashtagCounts[tag]++
			}
		}

		if state.eligibleTotal >= c.cfg.Targets.PoolN {
			break
		}
	}
	return newEligible, nil
}

// escalate widens discovery after stagnation: the per-query results limit is
// doubled, the fallback actor searches for fresh hashtag pages, their tags
// are queued, and a capped set of tag pages is scraped directly.
func (c *Controller) escalate(ctx context.Context, state *runState) error {
	state.resultsLimit = min(maxResultsLimit, max(10, state.resultsLimit*2))

	searchSeeds := selectExpansionTerms(state.hashtagCounts, selection{
		minFreq:       1,
		maxTerms:      fallbackSearchSeeds,
		blocklistKeys: state.blocklistKeys,
	})
	if len(searchSeeds) == 0 {
		for _, term := range c.cfg.Querying.SeedTerms {
			if termqueue.Normalize(term) != "" {
				searchSeeds = append(searchSeeds, term)
			}
		}
	}
	if len(searchSeeds) > fallbackSearchSeeds {
		searchSeeds = searchSeeds[:fallbackSearchSeeds]
	}

	var discovered []string
	for _, seedTerm := range searchSeeds {
		runRef, items, err := c.fallback.SearchHashtags(ctx, seedTerm, fallbackSearchLimit, fallbackDatasetCap)
		if err != nil {
			return err
		}
		if err := c.store.RecordActorRun(ctx, state.runID, runRef.ActorID, runRef.RunID, runRef.DatasetID); err != nil {
			return err
		}
		discovered = append(discovered, extractSearchURLs(items)...)
	}

	urls := dedupeFold(discovered)

	var terms []string
	var tagPages []string
	for _, u := range urls {
		tag := hashtagFromURL(u)
		if tag == "" {
			continue
		}
		tagPages = append(tagPages, u)
		key := textutil.Fold(tag)
		if _, blocked := state.blocklistKeys[key]; blocked {
			continue
		}
		if _, attempted := state.attemptedKeys[key]; attempted {
			continue
		}
		terms = append(terms, tag)
	}
	state.queue.AddMany(terms)

	if len(tagPages) > fallbackScrapeCap {
		tagPages = tagPages[:fallbackScrapeCap]
	}
	if len(tagPages) == 0 {
		return nil
	}

	runRef, items, err := c.fallback.ScrapeURLs(ctx, tagPages, min(fallbackDatasetCap, state.resultsLimit), 0)
	if err != nil {
		return err
	}
	if err := c.store.RecordActorRun(ctx, state.runID, runRef.ActorID, runRef.RunID, runRef.DatasetID); err != nil {
		return err
	}
	_, err = c.ingest(ctx, state, items, runRef.ActorID)
	return err
}

func (c *Controller) finish(ctx context.Context, state *runState, status string, iterations int) (*Result, error) {
	if err := c.store.FinishRun(ctx, state.runID); err != nil {
		return nil, err
	}
	result := &Result{
		RunID:      state.runID,
		Status:     status,
		Iterations: iterations,
		RawPosts:   state.rawTotal,
		Decisions:  state.decisionTotal,
		Eligible:   state.eligibleTotal,
	}
	c.logger.Info("run finished",
		logging.String(logging.FieldRunID, result.RunID),
		logging.String(logging.FieldStatus, result.Status),
		logging.Int("iterations", result.Iterations),
		logging.Int("raw_posts", result.RawPosts),
		logging.Int("decisions", result.Decisions),
		logging.Int("eligible", result.Eligible),
	)
	return result, nil
}

func (c *Controller) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
