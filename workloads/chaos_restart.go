package workloads

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"chainharness/chainlog"
	"chainharness/scenario"
	"chainharness/topology"
)

// ChaosRestartConfig configures the random-restart chaos workload (spec.md
// §4.5.c).
type ChaosRestartConfig struct {
	Targets           []int
	MinDelay          time.Duration
	MaxDelay          time.Duration
	PerTargetCooldown time.Duration
	Logger            *logrus.Logger
}

// ChaosRestart periodically restarts a randomly chosen target node, subject
// to a per-target cooldown and a safety rail that refuses to drop the live
// validator count below quorum (spec.md §4.5.c, §4.10). Requires the
// scenario's node-control capability; Start fails if the RunContext carries
// no NodeControl handle.
type ChaosRestart struct {
	cfg      ChaosRestartConfig
	log      *logrus.Logger
	name     string
	restarts atomic.Int64
}

// NewChaosRestart constructs a ChaosRestart workload.
func NewChaosRestart(cfg ChaosRestartConfig) *ChaosRestart {
	return &ChaosRestart{cfg: cfg, log: chainlog.OrDefault(cfg.Logger), name: "chaos_restart"}
}

func (c *ChaosRestart) Name() string { return c.name }

// BundledExpectations is empty: the chaos workload has no expectation of its
// own, it only perturbs nodes that other expectations observe.
func (c *ChaosRestart) BundledExpectations() []scenario.Expectation { return nil }

// RestartsObserved returns the number of restarts this workload has
// successfully invoked so far. Useful for test assertions and scenario
// reporting.
func (c *ChaosRestart) RestartsObserved() int64 { return c.restarts.Load() }

func (c *ChaosRestart) Init(generated *topology.GeneratedTopology, rm scenario.RunMetrics) error {
	if len(c.cfg.Targets) == 0 {
		return fmt.Errorf("chaos_restart: targets must be non-empty")
	}
	if c.cfg.MinDelay <= 0 || c.cfg.MaxDelay <= 0 || c.cfg.MinDelay > c.cfg.MaxDelay {
		return fmt.Errorf("chaos_restart: min_delay must be > 0 and <= max_delay")
	}
	if c.cfg.PerTargetCooldown <= 0 {
		return fmt.Errorf("chaos_restart: per_target_cooldown must be > 0")
	}
	for _, idx := range c.cfg.Targets {
		if _, ok := generated.Node(idx); !ok {
			return fmt.Errorf("chaos_restart: target node %d does not exist in topology", idx)
		}
	}
	return nil
}

func (c *ChaosRestart) Start(ctx context.Context, rc *scenario.RunContext) error {
	if rc.NodeControl == nil {
		return fmt.Errorf("chaos_restart: scenario has no node-control handle")
	}

	validators := rc.Generated.NodesWithRole(topology.RoleValidator)
	quorum := len(validators)/2 + 1
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	cooldowns := make(map[int]time.Time)

	for {
		delay := randDuration(rng, c.cfg.MinDelay, c.cfg.MaxDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		target, ok := c.pickTarget(rng, cooldowns, validators, quorum)
		if !ok {
			// No eligible target this round: either every target is still
			// cooling down or restarting any of them would breach quorum.
			// Re-roll the delay rather than busy-looping (spec.md §4.5.c).
			continue
		}

		if err := rc.NodeControl.Restart(ctx, target); err != nil {
			c.log.WithError(err).WithField("node", target).Warn("chaos_restart: restart failed")
			continue
		}
		c.restarts.Add(1)
		cooldowns[target] = time.Now().Add(c.cfg.PerTargetCooldown)
	}
}

func (c *ChaosRestart) pickTarget(rng *rand.Rand, cooldowns map[int]time.Time, validators []int, quorum int) (int, bool) {
	now := time.Now()
	var eligible []int
	for _, idx := range c.cfg.Targets {
		if until, cooling := cooldowns[idx]; cooling && now.Before(until) {
			continue
		}
		if wouldBreachQuorum(idx, validators, quorum) {
			continue
		}
		eligible = append(eligible, idx)
	}
	if len(eligible) == 0 {
		return 0, false
	}
	return eligible[rng.Intn(len(eligible))], true
}

// wouldBreachQuorum reports whether taking idx down would drop the live
// validator count below quorum. Restarts from this workload are serialized
// (one in-flight at a time), so at most one validator is ever down.
func wouldBreachQuorum(idx int, validators []int, quorum int) bool {
	isValidator := false
	for _, v := range validators {
		if v == idx {
			isValidator = true
			break
		}
	}
	if !isValidator {
		return false
	}
	return len(validators)-1 < quorum
}

func randDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min+1)))
}
