package fakedeploy

import (
	"testing"
	"time"

	"chainharness/nodecontrol"
	"chainharness/scenario"
	"chainharness/topology"
)

func buildControlScenario(t *testing.T, nodeCount int) *scenario.Scenario[scenario.NodeControl] {
	t.Helper()
	b := scenario.EnableNodeControl(scenario.NewBuilder(nil).
		Nodes(nodeCount).
		NetworkMesh().
		Wallets(2, 1000).
		SlotTiming(20*time.Millisecond, 0.9).
		WithRunDuration(200 * time.Millisecond))

	sc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sc
}

func TestDeployerReachesReadiness(t *testing.T) {
	b := scenario.NewBuilder(nil).
		Nodes(3).
		NetworkMesh().
		Wallets(2, 1000).
		SlotTiming(20*time.Millisecond, 0.9).
		WithRunDuration(200 * time.Millisecond)
	sc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dep := NewDeployer(Config{TickInterval: 10 * time.Millisecond})
	rc, guard, err := dep.Deploy(t.Context(), sc)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	defer guard.Fire()

	if len(rc.AllClients()) != 3 {
		t.Fatalf("expected 3 clients, got %d", len(rc.AllClients()))
	}
	if rc.NodeControl != nil {
		t.Fatalf("no-control deployer must not set NodeControl")
	}

	info, err := rc.AllClients()[0].ConsensusInfo(t.Context())
	if err != nil {
		t.Fatalf("ConsensusInfo: %v", err)
	}
	if info.Height == 0 {
		t.Fatalf("expected height progression by the time readiness is reached, got 0")
	}
}

func TestControlDeployerSetsNodeControl(t *testing.T) {
	sc := buildControlScenario(t, 3)
	dep := NewControlDeployer(Config{TickInterval: 10 * time.Millisecond})

	rc, guard, err := dep.Deploy(t.Context(), sc)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	defer guard.Fire()

	if rc.NodeControl == nil {
		t.Fatalf("control deployer must set NodeControl")
	}
}

func TestControlDeployerStopMakesNodeUnreachable(t *testing.T) {
	sc := buildControlScenario(t, 3)
	dep := NewControlDeployer(Config{TickInterval: 10 * time.Millisecond})

	rc, guard, err := dep.Deploy(t.Context(), sc)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	defer guard.Fire()

	if err := dep.Stop(t.Context(), 0); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	client, ok := rc.ClientAt(0)
	if !ok {
		t.Fatalf("ClientAt(0) missing")
	}
	if _, err := client.ConsensusInfo(t.Context()); err == nil {
		t.Fatalf("expected stopped node to reject requests")
	}

	if err := dep.Start(t.Context(), 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := client.ConsensusInfo(t.Context()); err != nil {
		t.Fatalf("expected started node to respond again, got %v", err)
	}
}

func TestControlDeployerRestartReturnsOnceReachable(t *testing.T) {
	sc := buildControlScenario(t, 3)
	dep := NewControlDeployer(Config{TickInterval: 10 * time.Millisecond})

	rc, guard, err := dep.Deploy(t.Context(), sc)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	defer guard.Fire()

	if err := dep.Restart(t.Context(), 1); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	client, ok := rc.ClientAt(1)
	if !ok {
		t.Fatalf("ClientAt(1) missing")
	}
	if _, err := client.ConsensusInfo(t.Context()); err != nil {
		t.Fatalf("expected node reachable after restart, got %v", err)
	}
}

func TestControlDeployerRejectsUnknownTarget(t *testing.T) {
	sc := buildControlScenario(t, 2)
	dep := NewControlDeployer(Config{TickInterval: 10 * time.Millisecond})

	_, guard, err := dep.Deploy(t.Context(), sc)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	defer guard.Fire()

	err = dep.Stop(t.Context(), 5)
	if err == nil {
		t.Fatalf("expected error for out-of-range target")
	}
	var failure *nodecontrol.Failure
	if !asFailure(err, &failure) {
		t.Fatalf("expected *nodecontrol.Failure, got %T", err)
	}
	if failure.Kind != nodecontrol.FailureTargetMissing {
		t.Fatalf("expected FailureTargetMissing, got %v", failure.Kind)
	}
}

func asFailure(err error, out **nodecontrol.Failure) bool {
	f, ok := err.(*nodecontrol.Failure)
	if !ok {
		return false
	}
	*out = f
	return true
}

func TestDAMembershipRoundTrips(t *testing.T) {
	b := scenario.NewBuilder(nil).
		Nodes(2).
		NetworkMesh().
		WithRole(0, topology.RoleDA).
		Wallets(2, 1000).
		SlotTiming(20*time.Millisecond, 0.9).
		WithRunDuration(200 * time.Millisecond)
	sc, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dep := NewDeployer(Config{TickInterval: 10 * time.Millisecond})
	rc, guard, err := dep.Deploy(t.Context(), sc)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	defer guard.Fire()

	clients := rc.ClientsByRole(topology.RoleDA)
	if len(clients) != 1 {
		t.Fatalf("expected 1 DA client, got %d", len(clients))
	}
	membership, err := clients[0].DAMembership(t.Context(), "session-1")
	if err != nil {
		t.Fatalf("DAMembership: %v", err)
	}
	if membership.SessionID != "session-1" {
		t.Fatalf("expected session-1, got %q", membership.SessionID)
	}
}
