package main

import (
	"testing"
)

func TestStatusCommandListsRunsAndCounters(t *testing.T) {
	configPath, cfg := writeTestConfig(t, nil)
	runID := seedEligiblePool(t, cfg, 2)

	stdout, _, err := runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, runID)
	requireContains(t, stdout, "finished")
	requireContains(t, stdout, "raw posts")
	requireContains(t, stdout, "2 / 2")
}

func TestStatusCommandWithEmptyStore(t *testing.T) {
	configPath, _ := writeTestConfig(t, nil)

	stdout, _, err := runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "No runs recorded yet.")
}
