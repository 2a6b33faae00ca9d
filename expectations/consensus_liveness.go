// Package expectations implements the three built-in post-run assertions
// from spec.md §4.6: consensus liveness, transaction inclusion, and DA
// inclusion, plus a supplemental network-info expectation (SPEC_FULL.md).
package expectations

import (
	"context"
	"fmt"
	"math"

	"chainharness/scenario"
	"chainharness/topology"
)

const defaultLivenessTolerance = 0.8

// ConsensusLiveness asserts every node's height is at least
// floor(tolerance * expected_blocks) after workloads complete (spec.md
// §4.6.a).
type ConsensusLiveness struct {
	// Tolerance defaults to 0.8 when zero.
	Tolerance float64

	expectedBlocks int
}

// NewConsensusLiveness constructs a ConsensusLiveness expectation with the
// given tolerance. Pass 0 to use the default of 0.8.
func NewConsensusLiveness(tolerance float64) *ConsensusLiveness {
	return &ConsensusLiveness{Tolerance: tolerance}
}

func (c *ConsensusLiveness) Name() string { return "consensus_liveness" }

func (c *ConsensusLiveness) Init(generated *topology.GeneratedTopology, rm scenario.RunMetrics) error {
	if c.Tolerance <= 0 {
		c.Tolerance = defaultLivenessTolerance
	}
	c.expectedBlocks = rm.ExpectedBlocks
	return nil
}

func (c *ConsensusLiveness) StartCapture(ctx context.Context, rc *scenario.RunContext) error {
	return nil
}

func (c *ConsensusLiveness) Evaluate(ctx context.Context, rc *scenario.RunContext) error {
	threshold := uint64(math.Floor(c.Tolerance * float64(c.expectedBlocks)))

	var failing []string
	for _, client := range rc.AllClients() {
		info, err := client.ConsensusInfo(ctx)
		if err != nil {
			failing = append(failing, fmt.Sprintf("%s: query failed: %v", client.BaseURL(), err))
			continue
		}
		if info.Height < threshold {
			failing = append(failing, fmt.Sprintf("%s: height %d < threshold %d", client.BaseURL(), info.Height, threshold))
		}
	}
	if len(failing) > 0 {
		return fmt.Errorf("consensus liveness: %d node(s) below threshold %d: %v", len(failing), threshold, failing)
	}
	return nil
}
