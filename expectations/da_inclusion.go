package expectations

import (
	"context"
	"fmt"
	"sync"

	"chainharness/blockfeed"
	"chainharness/scenario"
	"chainharness/topology"
)

const defaultDAInclusionFloor = 0.8

// DAInclusion asserts the fraction of submitted DA channel/blob identifiers
// appearing in da_refs across observed blocks meets or exceeds
// InclusionFloor (spec.md §4.6.c). The DA Workload shares its set of
// submitted identifiers via Submitted, the same way TxInclusion shares a
// counter, to avoid an import cycle between workloads and expectations.
type DAInclusion struct {
	// Submitted is populated by the workload: a shared, mutex-guarded set
	// of "channelID/blobID" keys it has published.
	Submitted *SubmittedDASet
	// InclusionFloor defaults to 0.8 when zero.
	InclusionFloor float64

	mu       sync.Mutex
	included map[string]struct{}
	sub      *blockfeed.Subscription
}

// SubmittedDASet is a thread-safe set of "channelID/blobID" keys shared
// between the DA workload (writer) and DAInclusion (reader).
type SubmittedDASet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSubmittedDASet constructs an empty set.
func NewSubmittedDASet() *SubmittedDASet {
	return &SubmittedDASet{keys: make(map[string]struct{})}
}

// Add records a submitted channel/blob pair.
func (s *SubmittedDASet) Add(channelID, blobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[daKey(channelID, blobID)] = struct{}{}
}

// Snapshot returns a copy of the currently submitted keys.
func (s *SubmittedDASet) Snapshot() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.keys))
	for k := range s.keys {
		out[k] = struct{}{}
	}
	return out
}

func daKey(channelID, blobID string) string { return channelID + "/" + blobID }

// NewDAInclusion constructs a DAInclusion expectation bound to a workload's
// shared submitted-identifier set.
func NewDAInclusion(submitted *SubmittedDASet, inclusionFloor float64) *DAInclusion {
	return &DAInclusion{Submitted: submitted, InclusionFloor: inclusionFloor}
}

func (d *DAInclusion) Name() string { return "da_inclusion" }

func (d *DAInclusion) Init(generated *topology.GeneratedTopology, rm scenario.RunMetrics) error {
	if d.InclusionFloor <= 0 {
		d.InclusionFloor = defaultDAInclusionFloor
	}
	if d.Submitted == nil {
		return fmt.Errorf("da_inclusion: no submitted-set bound")
	}
	d.included = make(map[string]struct{})
	return nil
}

func (d *DAInclusion) StartCapture(ctx context.Context, rc *scenario.RunContext) error {
	if d.sub != nil {
		return nil
	}
	d.sub = rc.Feed.Subscribe()
	go func() {
		for rec := range d.sub.C() {
			if rec.Closed {
				return
			}
			if rec.Block == nil {
				continue
			}
			d.mu.Lock()
			for _, ref := range rec.Block.DARefs {
				d.included[daKey(ref.ChannelID, ref.BlobID)] = struct{}{}
			}
			d.mu.Unlock()
		}
	}()
	return nil
}

func (d *DAInclusion) Evaluate(ctx context.Context, rc *scenario.RunContext) error {
	submitted := d.Submitted.Snapshot()
	if len(submitted) == 0 {
		return nil
	}

	d.mu.Lock()
	var found int
	for k := range submitted {
		if _, ok := d.included[k]; ok {
			found++
		}
	}
	d.mu.Unlock()

	fraction := float64(found) / float64(len(submitted))
	if fraction < d.InclusionFloor {
		return fmt.Errorf("da_inclusion: fraction %.3f (%d/%d) below floor %.3f",
			fraction, found, len(submitted), d.InclusionFloor)
	}
	return nil
}
