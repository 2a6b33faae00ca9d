package runner_test

import (
	"testing"
	"time"

	"chainharness/expectations"
	"chainharness/runner"
	"chainharness/runner/fakedeploy"
	"chainharness/scenario"
	"chainharness/workloads"
)

func buildNoControlScenario(t *testing.T, runDuration time.Duration) *scenario.Scenario[scenario.NoControl] {
	t.Helper()
	b := scenario.NewBuilder(nil).
		Nodes(2).
		NetworkMesh().
		Wallets(4, 1000).
		SlotTiming(20*time.Millisecond, 0.9).
		WithRunDuration(runDuration).
		WithWorkload(workloads.NewTransaction(workloads.TransactionConfig{RatePerBlock: 1, Users: 4})).
		WithExpectation(expectations.NewConsensusLiveness(0.1))

	sc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sc
}

func TestRunnerSucceedsAgainstFakeDeployer(t *testing.T) {
	sc := buildNoControlScenario(t, 300*time.Millisecond)
	dep := fakedeploy.NewDeployer(fakedeploy.Config{TickInterval: 20 * time.Millisecond})

	result, err := runner.Run(t.Context(), sc, dep, runner.Options{DrainWindow: time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got failures: %v", result.Failures)
	}
}
