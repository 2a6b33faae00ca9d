package expectations

import (
	"context"
	"fmt"

	"chainharness/scenario"
	"chainharness/topology"
)

// NetworkInfo asserts every node's reported peer count matches its declared
// topology peer-set size at evaluation time. It supplements the built-in
// three from spec.md §4.6: the distilled spec only uses peer count during
// readiness, not as a standing post-run expectation, but the original
// implementation tracks peer-count drift as part of ongoing network health
// (see SPEC_FULL.md). Opt-in only — attaching it is a deliberate
// WithExpectation call, never automatic.
type NetworkInfo struct {
	generated *topology.GeneratedTopology
}

// NewNetworkInfo constructs a NetworkInfo expectation.
func NewNetworkInfo() *NetworkInfo { return &NetworkInfo{} }

func (n *NetworkInfo) Name() string { return "network_info" }

func (n *NetworkInfo) Init(generated *topology.GeneratedTopology, rm scenario.RunMetrics) error {
	n.generated = generated
	return nil
}

func (n *NetworkInfo) StartCapture(ctx context.Context, rc *scenario.RunContext) error { return nil }

func (n *NetworkInfo) Evaluate(ctx context.Context, rc *scenario.RunContext) error {
	var mismatched []string
	for _, node := range n.generated.Nodes {
		client, ok := rc.ClientAt(node.Index)
		if !ok {
			continue
		}
		info, err := client.NetworkInfo(ctx)
		if err != nil {
			mismatched = append(mismatched, fmt.Sprintf("node %d: query failed: %v", node.Index, err))
			continue
		}
		if info.PeerCount != len(node.Peers) {
			mismatched = append(mismatched, fmt.Sprintf("node %d: peer_count %d, want %d", node.Index, info.PeerCount, len(node.Peers)))
		}
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("network_info: %d node(s) with mismatched peer count: %v", len(mismatched), mismatched)
	}
	return nil
}
