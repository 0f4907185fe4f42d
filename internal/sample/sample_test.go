package sample_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"loom/internal/sample"
	"loom/internal/store"
	"loom/internal/testsupport"
)

func TestPoolHashIsOrderSensitive(t *testing.T) {
	forward, err := sample.PoolHash([]string{"id:1", "id:2"})
	if err != nil {
		t.Fatalf("PoolHash: %v", err)
	}
	reversed, _ := sample.PoolHash([]string{"id:2", "id:1"})
	if forward == reversed {
		t.Fatal("reordered pool must hash differently")
	}

	sum := sha256.Sum256([]byte(`["id:1","id:2"]`))
	if want := hex.EncodeToString(sum[:]); forward != want {
		t.Fatalf("hash = %s, want %s", forward, want)
	}

	empty, err := sample.PoolHash(nil)
	if err != nil {
		t.Fatalf("PoolHash(nil): %v", err)
	}
	sum = sha256.Sum256([]byte(`[]`))
	if want := hex.EncodeToString(sum[:]); empty != want {
		t.Fatalf("empty hash = %s, want %s", empty, want)
	}
}

func TestPickIsDeterministic(t *testing.T) {
	pool := make([]string, 20)
	for i := range pool {
		pool[i] = fmt.Sprintf("id:%d", i)
	}

	first := sample.Pick(pool, 5, 1337)
	second := sample.Pick(pool, 5, 1337)
	if len(first) != 5 {
		t.Fatalf("picked %d keys, want 5", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different selections: %v vs %v", first, second)
		}
	}

	inPool := make(map[string]struct{}, len(pool))
	for _, key := range pool {
		inPool[key] = struct{}{}
	}
	seen := make(map[string]struct{}, len(first))
	for _, key := range first {
		if _, ok := inPool[key]; !ok {
			t.Fatalf("picked key %q not in pool", key)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("key %q picked twice", key)
		}
		seen[key] = struct{}{}
	}
}

func TestPickEdgeCases(t *testing.T) {
	pool := []string{"id:1", "id:2", "id:3"}

	if got := sample.Pick(pool, 0, 1); got != nil {
		t.Fatalf("target 0 should pick nothing, got %v", got)
	}
	if got := sample.Pick(nil, 3, 1); got != nil {
		t.Fatalf("empty pool should pick nothing, got %v", got)
	}

	all := sample.Pick(pool, 10, 1)
	if len(all) != len(pool) {
		t.Fatalf("oversized target should return whole pool, got %v", all)
	}
	// The original pool order must survive a full selection untouched.
	if pool[0] != "id:1" || pool[1] != "id:2" || pool[2] != "id:3" {
		t.Fatalf("pool mutated: %v", pool)
	}
}

func TestEnsurePersistsOnceAndVerifies(t *testing.T) {
	s := testsupport.MustOpenStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, store.CreateRunParams{ConfigHash: "abc"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	pool := []string{"id:1", "id:2", "id:3", "id:4", "id:5"}
	result, err := sample.Ensure(ctx, s, sample.Params{
		RunID:        run.RunID,
		PoolKeys:     pool,
		SamplingSeed: 42,
		PoolN:        5,
		FinalN:       3,
		Persist:      true,
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if result.Meta == nil || len(result.Keys) != 3 {
		t.Fatalf("unexpected result: %#v", result)
	}

	wantHash, _ := sample.PoolHash(pool)
	if result.Meta.PoolKeysSHA256 != wantHash {
		t.Fatalf("pool hash = %s, want %s", result.Meta.PoolKeysSHA256, wantHash)
	}

	// The pool grows afterwards; the stored sample must not change.
	grown := append(append([]string(nil), pool...), "id:6", "id:7")
	again, err := sample.Ensure(ctx, s, sample.Params{
		RunID:        run.RunID,
		PoolKeys:     grown,
		SamplingSeed: 99,
		PoolN:        7,
		FinalN:       5,
		Persist:      true,
	})
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if again.Meta.SamplingSeed != 42 || again.Meta.PoolKeysSHA256 != wantHash {
		t.Fatalf("stored sample mutated: %#v", again.Meta)
	}
	if len(again.Keys) != len(result.Keys) {
		t.Fatalf("membership changed: %v vs %v", again.Keys, result.Keys)
	}
	for i := range result.Keys {
		if again.Keys[i] != result.Keys[i] {
			t.Fatalf("membership changed: %v vs %v", again.Keys, result.Keys)
		}
	}
}

func TestEnsureDryRunWritesNothing(t *testing.T) {
	s := testsupport.MustOpenStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, store.CreateRunParams{ConfigHash: "abc"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	result, err := sample.Ensure(ctx, s, sample.Params{
		RunID:        run.RunID,
		PoolKeys:     []string{"id:1", "id:2"},
		SamplingSeed: 42,
		PoolN:        2,
		FinalN:       1,
		Persist:      false,
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if result.Meta != nil || len(result.Keys) != 1 {
		t.Fatalf("unexpected dry-run result: %#v", result)
	}

	meta, err := s.FinalSampleMeta(ctx, run.RunID)
	if err != nil {
		t.Fatalf("FinalSampleMeta: %v", err)
	}
	if meta != nil {
		t.Fatalf("dry run persisted metadata: %#v", meta)
	}
}
