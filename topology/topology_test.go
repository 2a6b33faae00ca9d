package topology_test

import (
	"testing"

	"chainharness/topology"
)

func TestGenerateStarPeers(t *testing.T) {
	g, err := topology.Generate(topology.Config{NodeCount: 4, Layout: topology.LayoutStar})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(g.Nodes[0].Peers) != 3 {
		t.Fatalf("hub peers = %d, want 3", len(g.Nodes[0].Peers))
	}
	for i := 1; i < 4; i++ {
		if _, ok := g.Nodes[i].Peers[0]; !ok {
			t.Fatalf("node %d does not peer with hub", i)
		}
		if len(g.Nodes[i].Peers) != 1 {
			t.Fatalf("node %d peers = %d, want 1", i, len(g.Nodes[i].Peers))
		}
	}
}

func TestGenerateChainPeers(t *testing.T) {
	g, err := topology.Generate(topology.Config{NodeCount: 3, Layout: topology.LayoutChain})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(g.Nodes[0].Peers) != 1 {
		t.Fatalf("endpoint node peers = %d, want 1", len(g.Nodes[0].Peers))
	}
	if len(g.Nodes[1].Peers) != 2 {
		t.Fatalf("middle node peers = %d, want 2", len(g.Nodes[1].Peers))
	}
}

func TestGenerateMeshPeers(t *testing.T) {
	g, err := topology.Generate(topology.Config{NodeCount: 5, Layout: topology.LayoutMesh})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, n := range g.Nodes {
		if len(n.Peers) != 4 {
			t.Fatalf("node %d peers = %d, want 4", n.Index, len(n.Peers))
		}
	}
}

func TestGenerateUniqueIdentities(t *testing.T) {
	g, err := topology.Generate(topology.Config{NodeCount: 10, Layout: topology.LayoutMesh})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	seen := map[string]struct{}{}
	for _, n := range g.Nodes {
		if _, dup := seen[n.IdentityKey]; dup {
			t.Fatalf("duplicate identity key %s", n.IdentityKey)
		}
		seen[n.IdentityKey] = struct{}{}
	}
}

func TestGenerateWalletUniformSplit(t *testing.T) {
	g, err := topology.Generate(topology.Config{
		NodeCount: 1,
		Layout:    topology.LayoutStar,
		Wallet:    &topology.WalletSpec{UserCount: 3, TotalFunds: 100},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(g.WalletAccounts) != 3 {
		t.Fatalf("accounts = %d, want 3", len(g.WalletAccounts))
	}
	var sum uint64
	ids := map[string]struct{}{}
	for _, a := range g.WalletAccounts {
		sum += a.StartingBalance
		ids[a.ID] = struct{}{}
	}
	if sum != 100 {
		t.Fatalf("sum = %d, want 100", sum)
	}
	if len(ids) != 3 {
		t.Fatalf("duplicate wallet ids")
	}
	// Remainder (100 / 3 = 33 r1) accrues to account 0.
	if g.WalletAccounts[0].StartingBalance != 34 {
		t.Fatalf("account 0 balance = %d, want 34", g.WalletAccounts[0].StartingBalance)
	}
}

func TestGenerateWalletCustomDistribution(t *testing.T) {
	g, err := topology.Generate(topology.Config{
		NodeCount: 1,
		Layout:    topology.LayoutStar,
		Wallet: &topology.WalletSpec{
			UserCount:    3,
			TotalFunds:   100,
			Distribution: []uint64{50, 30, 20},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if g.WalletAccounts[0].StartingBalance != 50 {
		t.Fatalf("account 0 balance = %d, want 50", g.WalletAccounts[0].StartingBalance)
	}
}

func TestGenerateRejectsZeroNodes(t *testing.T) {
	if _, err := topology.Generate(topology.Config{NodeCount: 0, Layout: topology.LayoutStar}); err == nil {
		t.Fatalf("expected error for node_count=0")
	}
}

func TestGenerateRejectsOverfundedDistribution(t *testing.T) {
	_, err := topology.Generate(topology.Config{
		NodeCount: 1,
		Layout:    topology.LayoutStar,
		Wallet: &topology.WalletSpec{
			UserCount:    2,
			TotalFunds:   10,
			Distribution: []uint64{8, 8},
		},
	})
	if err == nil {
		t.Fatalf("expected error for over-funded distribution")
	}
}
