// Package scenario holds the scenario data model, the run context shared by
// workloads and expectations, and the Workload/Expectation interfaces
// (spec.md §3, §4.4–§4.7).
package scenario

import (
	"math/rand"
	"sync"
	"time"

	"chainharness/blockfeed"
	"chainharness/metrics"
	"chainharness/nodeapi"
	"chainharness/nodecontrol"
	"chainharness/topology"
)

// RunMetrics is derived at build time from slot timing and run duration
// (spec.md §3). It paces workloads and scales expectation thresholds.
type RunMetrics struct {
	SlotDuration          time.Duration
	ActiveSlotCoeff       float64
	ExpectedBlockInterval time.Duration
	RunDuration           time.Duration
	ExpectedBlocks        int
}

// DeriveRunMetrics computes RunMetrics from the raw inputs per spec.md §3:
// expected_block_interval = slot_duration / active_slot_coeff,
// expected_blocks = floor(run_duration / expected_block_interval).
func DeriveRunMetrics(slotDuration time.Duration, activeSlotCoeff float64, runDuration time.Duration) RunMetrics {
	interval := time.Duration(float64(slotDuration) / activeSlotCoeff)
	expected := int(runDuration / interval)
	return RunMetrics{
		SlotDuration:          slotDuration,
		ActiveSlotCoeff:       activeSlotCoeff,
		ExpectedBlockInterval: interval,
		RunDuration:           runDuration,
		ExpectedBlocks:        expected,
	}
}

// RunContext is the read-mostly handle passed to every workload and
// expectation during a run (spec.md §4.4). It is freely shareable across
// concurrent goroutines; the only interior mutability is the block feed's
// own channel/stats synchronization.
type RunContext struct {
	Generated   *topology.GeneratedTopology
	clients     []*nodeapi.Client
	Wallets     []topology.WalletAccount
	Feed        *blockfeed.Feed
	Metrics     *metrics.Handle
	RunMetrics  RunMetrics
	NodeControl nodecontrol.Handle // nil unless the scenario requires it

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRunContext constructs a RunContext. clients must be indexed the same
// way as generated.Nodes.
func NewRunContext(generated *topology.GeneratedTopology, clients []*nodeapi.Client, wallets []topology.WalletAccount, feed *blockfeed.Feed, mh *metrics.Handle, rm RunMetrics, control nodecontrol.Handle) *RunContext {
	return &RunContext{
		Generated:   generated,
		clients:     clients,
		Wallets:     wallets,
		Feed:        feed,
		Metrics:     mh,
		RunMetrics:  rm,
		NodeControl: control,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClientAt returns the NodeClient for the given topology index.
func (c *RunContext) ClientAt(index int) (*nodeapi.Client, bool) {
	if index < 0 || index >= len(c.clients) {
		return nil, false
	}
	return c.clients[index], true
}

// ClientsByRole returns the clients for every node carrying the given role.
func (c *RunContext) ClientsByRole(role topology.Role) []*nodeapi.Client {
	var out []*nodeapi.Client
	for _, idx := range c.Generated.NodesWithRole(role) {
		if cl, ok := c.ClientAt(idx); ok {
			out = append(out, cl)
		}
	}
	return out
}

// RandomClient returns a uniformly random client from the full node set.
// Used by workloads that address "one node chosen uniformly at random"
// (spec.md §4.5.a). RunContext is shared across concurrently running
// workloads (spec.md §4.4/§5), and *rand.Rand is not safe for concurrent
// use, so the generator is guarded by rngMu.
func (c *RunContext) RandomClient() (*nodeapi.Client, int, bool) {
	if len(c.clients) == 0 {
		return nil, 0, false
	}
	c.rngMu.Lock()
	idx := c.rng.Intn(len(c.clients))
	c.rngMu.Unlock()
	return c.clients[idx], idx, true
}

// AllClients returns every node client in topology index order.
func (c *RunContext) AllClients() []*nodeapi.Client {
	out := make([]*nodeapi.Client, len(c.clients))
	copy(out, c.clients)
	return out
}
