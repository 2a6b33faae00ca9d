package expectations

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"chainharness/blockfeed"
	"chainharness/scenario"
	"chainharness/topology"
)

const defaultInclusionRatio = 0.5

// TxInclusion asserts that at least floor(inclusion_ratio * submitted)
// transactions tagged with Tag were observed on-chain (spec.md §4.6.b). The
// Transaction Workload constructs this as its bundled expectation, sharing
// its submission counter with SubmittedCounter so both read the same live
// count without an import cycle between the workloads and expectations
// packages.
type TxInclusion struct {
	// Tag matches nodeapi.TxRef.Tag as stamped by the workload.
	Tag string
	// SubmittedCounter is incremented by the workload for every
	// submission attempt (not just acknowledged ones, per spec.md §4.5.a:
	// "failures are counted but do not halt the workload" — submitted
	// here means attempted).
	SubmittedCounter *atomic.Int64
	// InclusionRatio defaults to 0.5 when zero.
	InclusionRatio float64

	observed atomic.Int64
	sub      *blockfeed.Subscription
}

// NewTxInclusion constructs a TxInclusion expectation bound to a workload's
// live submission counter.
func NewTxInclusion(tag string, submitted *atomic.Int64, inclusionRatio float64) *TxInclusion {
	return &TxInclusion{Tag: tag, SubmittedCounter: submitted, InclusionRatio: inclusionRatio}
}

func (t *TxInclusion) Name() string { return "tx_inclusion:" + t.Tag }

func (t *TxInclusion) Init(generated *topology.GeneratedTopology, rm scenario.RunMetrics) error {
	if t.InclusionRatio <= 0 {
		t.InclusionRatio = defaultInclusionRatio
	}
	if t.SubmittedCounter == nil {
		return fmt.Errorf("tx_inclusion: no submission counter bound")
	}
	return nil
}

func (t *TxInclusion) StartCapture(ctx context.Context, rc *scenario.RunContext) error {
	if t.sub != nil {
		return nil // idempotent
	}
	t.sub = rc.Feed.Subscribe()
	go func() {
		for rec := range t.sub.C() {
			if rec.Closed {
				return
			}
			if rec.Block == nil {
				continue
			}
			var count int64
			for _, tx := range rec.Block.Transactions {
				if tx.Tag == t.Tag {
					count++
				}
			}
			if count > 0 {
				t.observed.Add(count)
			}
		}
	}()
	return nil
}

func (t *TxInclusion) Evaluate(ctx context.Context, rc *scenario.RunContext) error {
	submitted := t.SubmittedCounter.Load()
	observed := t.observed.Load()
	threshold := int64(math.Floor(t.InclusionRatio * float64(submitted)))

	if submitted == 0 {
		return nil // nothing submitted, nothing to check
	}
	if observed < threshold {
		return fmt.Errorf("tx_inclusion[%s]: observed %d < threshold %d (submitted %d, ratio %.2f)",
			t.Tag, observed, threshold, submitted, t.InclusionRatio)
	}
	return nil
}
