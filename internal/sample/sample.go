// Package sample draws the deterministic final corpus sample from the
// eligible pool and persists it exactly once per run.
package sample

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"sort"
	"strings"

	"loom/internal/services"
	"loom/internal/store"
)

// PoolHash fingerprints the ordered pool key list used for sampling. Order
// matters: the sample is drawn over the ordered pool, so a reordered pool is
// a different pool.
func PoolHash(poolKeys []string) (string, error) {
	if poolKeys == nil {
		poolKeys = []string{}
	}
	payload, err := json.Marshal(poolKeys)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "sample", "pool hash", "marshal keys", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Pick draws finalN keys from the pool without replacement using a seeded
// generator. The same seed and pool always produce the same selection. When
// finalN meets or exceeds the pool size the whole pool is returned.
func Pick(poolKeys []string, finalN int, seed int64) []string {
	if finalN <= 0 || len(poolKeys) == 0 {
		return nil
	}

	n := min(finalN, len(poolKeys))
	shuffled := append([]string(nil), poolKeys...)
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

// Params describes one sampling request.
type Params struct {
	RunID        string
	PoolKeys     []string
	SamplingSeed int64
	PoolN        int
	FinalN       int
	Persist      bool
}

// Result carries the selected keys in sorted order plus the persisted
// metadata, which is nil for a non-persisting dry run.
type Result struct {
	Keys []string
	Meta *store.SampleMeta
}

// Ensure returns the final sample for a run. A previously persisted sample is
// immutable and returned unconditionally, regardless of how the pool has
// changed since. Otherwise the sample is drawn from the supplied pool and,
// when requested, persisted with a read-back check that fails loudly if the
// stored metadata does not match what was written.
func Ensure(ctx context.Context, st *store.Store, params Params) (*Result, error) {
	runID := strings.TrimSpace(params.RunID)
	if runID == "" {
		return nil, services.Wrap(services.ErrValidation, "sample", "ensure", "run id required", nil)
	}

	existing, err := st.FinalSampleMeta(ctx, runID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		stored, err := st.FinalSampleKeys(ctx, runID)
		if err != nil {
			return nil, err
		}
		return &Result{Keys: sortedKeys(stored), Meta: existing}, nil
	}

	chosen := Pick(params.PoolKeys, params.FinalN, params.SamplingSeed)
	sort.Strings(chosen)
	if !params.Persist {
		return &Result{Keys: chosen}, nil
	}

	poolHash, err := PoolHash(params.PoolKeys)
	if err != nil {
		return nil, err
	}
	meta := store.SampleMeta{
		RunID:          runID,
		SamplingSeed:   params.SamplingSeed,
		PoolN:          params.PoolN,
		FinalN:         params.FinalN,
		PoolKeysSHA256: poolHash,
	}
	if err := st.WriteFinalSample(ctx, meta, chosen); err != nil {
		return nil, err
	}

	stored, err := st.FinalSampleMeta(ctx, runID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, services.Wrap(services.ErrStorage, "sample", "ensure", "metadata missing after insert", nil)
	}
	if stored.SamplingSeed != meta.SamplingSeed ||
		stored.PoolN != meta.PoolN ||
		stored.FinalN != meta.FinalN ||
		stored.PoolKeysSHA256 != meta.PoolKeysSHA256 {
		return nil, services.Wrap(services.ErrStorage, "sample", "ensure",
			"persisted metadata does not match the requested sample", nil)
	}
	return &Result{Keys: chosen, Meta: stored}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
