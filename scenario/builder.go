package scenario

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chainharness/chainerr"
	"chainharness/chainlog"
	"chainharness/topology"
)

const (
	// DefaultSlotDuration and DefaultActiveSlotCoeff give expected_block_interval
	// = 2s / 0.9 ≈ 2.22s, matching the seed tests in spec.md §8.
	DefaultSlotDuration    = 2 * time.Second
	DefaultActiveSlotCoeff = 0.9
)

type expectationEntry struct {
	exp     Expectation
	bundled bool
}

// Builder is the fluent, typed assembly of a Scenario[C] (spec.md §4.7).
// Use NewBuilder to start with the no-control capability; EnableNodeControl
// transitions to the node-control capability. Build does not inspect which
// workloads are attached: a chaos workload added to a Builder[NoControl]
// still builds, and its Start then fails because the RunContext carries no
// node-control handle.
type Builder[C Capability] struct {
	nodeCount       int
	layout          topology.Layout
	roles           map[int]topology.Role
	wallet          *topology.WalletSpec
	workloads       []Workload
	expectations    []expectationEntry
	runDuration     time.Duration
	slotDuration    time.Duration
	activeSlotCoeff float64
	capabilities    C
	log             *logrus.Logger
}

// NewBuilder starts a Builder with the no-node-control capability.
func NewBuilder(logger *logrus.Logger) *Builder[NoControl] {
	return &Builder[NoControl]{
		layout:          topology.LayoutStar,
		roles:           map[int]topology.Role{},
		slotDuration:    DefaultSlotDuration,
		activeSlotCoeff: DefaultActiveSlotCoeff,
		capabilities:    NoControl{},
		log:             chainlog.OrDefault(logger),
	}
}

// Nodes sets the node count.
func (b *Builder[C]) Nodes(n int) *Builder[C] {
	b.nodeCount = n
	return b
}

// NetworkStar shapes the topology as a star (spec.md §4.2).
func (b *Builder[C]) NetworkStar() *Builder[C] { b.layout = topology.LayoutStar; return b }

// NetworkChain shapes the topology as a chain.
func (b *Builder[C]) NetworkChain() *Builder[C] { b.layout = topology.LayoutChain; return b }

// NetworkMesh shapes the topology as a full mesh.
func (b *Builder[C]) NetworkMesh() *Builder[C] { b.layout = topology.LayoutMesh; return b }

// WithRole assigns a role to a node index, for workloads/expectations that
// need an executor or DA-dispersal capable node.
func (b *Builder[C]) WithRole(index int, role topology.Role) *Builder[C] {
	b.roles[index] = role
	return b
}

// Wallets seeds a uniform wallet spec with the given user count and total
// funds.
func (b *Builder[C]) Wallets(userCount int, totalFunds uint64) *Builder[C] {
	b.wallet = &topology.WalletSpec{UserCount: userCount, TotalFunds: totalFunds}
	return b
}

// WalletsWith seeds a custom wallet spec.
func (b *Builder[C]) WalletsWith(spec topology.WalletSpec) *Builder[C] {
	b.wallet = &spec
	return b
}

// SlotTiming overrides the default slot duration / active slot coefficient
// used to derive RunMetrics.
func (b *Builder[C]) SlotTiming(slotDuration time.Duration, activeSlotCoeff float64) *Builder[C] {
	b.slotDuration = slotDuration
	b.activeSlotCoeff = activeSlotCoeff
	return b
}

// WithRunDuration sets the run duration. Build fails if it is below
// 2×expected_block_interval (spec.md §3).
func (b *Builder[C]) WithRunDuration(d time.Duration) *Builder[C] {
	b.runDuration = d
	return b
}

// WithWorkload attaches a custom workload and its bundled expectations.
func (b *Builder[C]) WithWorkload(w Workload) *Builder[C] {
	b.workloads = append(b.workloads, w)
	for _, e := range w.BundledExpectations() {
		b.expectations = append(b.expectations, expectationEntry{exp: e, bundled: true})
	}
	return b
}

// WithExpectation attaches a user-supplied expectation. User-supplied
// expectations take precedence over a bundled expectation of the same name
// (spec.md §4.7 validation rule 6).
func (b *Builder[C]) WithExpectation(e Expectation) *Builder[C] {
	b.expectations = append(b.expectations, expectationEntry{exp: e, bundled: false})
	return b
}

// resolveExpectations applies the "user wins over bundled, same-name user
// duplicates fail" rule from spec.md §4.7 item 6.
func resolveExpectations(entries []expectationEntry, log *logrus.Logger) ([]Expectation, error) {
	type bucket struct {
		user    *Expectation
		bundled []Expectation
		order   int
	}
	buckets := map[string]*bucket{}
	var order []string

	for i, e := range entries {
		name := e.exp.Name()
		b, ok := buckets[name]
		if !ok {
			b = &bucket{order: i}
			buckets[name] = b
			order = append(order, name)
		}
		if e.bundled {
			b.bundled = append(b.bundled, e.exp)
		} else {
			if b.user != nil {
				return nil, chainerr.Build(fmt.Sprintf("duplicate user-supplied expectation name %q", name))
			}
			exp := e.exp
			b.user = &exp
		}
	}

	resolved := make([]Expectation, 0, len(entries))
	for _, name := range order {
		b := buckets[name]
		switch {
		case b.user != nil:
			if len(b.bundled) > 0 {
				log.WithField("expectation", name).Warn("scenario: user-supplied expectation overrides bundled expectation of the same name")
			}
			resolved = append(resolved, *b.user)
		case len(b.bundled) > 0:
			if len(b.bundled) > 1 {
				log.WithField("expectation", name).Warn("scenario: multiple bundled expectations share a name, keeping the first")
			}
			resolved = append(resolved, b.bundled[0])
		}
	}
	return resolved, nil
}

// Build runs every workload/expectation Init, cross-checks invariants, and
// freezes the plan (spec.md §4.7's validation catalogue).
func (b *Builder[C]) Build() (*Scenario[C], error) {
	if b.nodeCount < 1 {
		return nil, chainerr.Build(fmt.Sprintf("node count must be >= 1, got %d", b.nodeCount))
	}
	if b.runDuration <= 0 {
		return nil, chainerr.Build("run duration must be set")
	}
	if b.slotDuration <= 0 {
		return nil, chainerr.Build("slot duration must be > 0")
	}
	if b.activeSlotCoeff <= 0 || b.activeSlotCoeff > 1 {
		return nil, chainerr.Build(fmt.Sprintf("active slot coefficient must be in (0, 1], got %v", b.activeSlotCoeff))
	}

	rm := DeriveRunMetrics(b.slotDuration, b.activeSlotCoeff, b.runDuration)
	if b.runDuration < 2*rm.ExpectedBlockInterval {
		return nil, chainerr.Build(fmt.Sprintf(
			"run_duration %s must be >= 2x expected_block_interval %s",
			b.runDuration, rm.ExpectedBlockInterval))
	}

	generated, err := topology.Generate(topology.Config{
		NodeCount: b.nodeCount,
		Layout:    b.layout,
		Roles:     b.roles,
		Wallet:    b.wallet,
	})
	if err != nil {
		return nil, chainerr.Build(err.Error())
	}

	expectations, err := resolveExpectations(b.expectations, b.log)
	if err != nil {
		return nil, err
	}

	for _, w := range b.workloads {
		if err := w.Init(generated, rm); err != nil {
			return nil, chainerr.Build(fmt.Sprintf("workload %q: %v", w.Name(), err))
		}
	}
	for _, e := range expectations {
		if err := e.Init(generated, rm); err != nil {
			return nil, chainerr.Build(fmt.Sprintf("expectation %q: %v", e.Name(), err))
		}
	}

	return &Scenario[C]{
		Generated:    generated,
		Workloads:    b.workloads,
		Expectations: expectations,
		RunMetrics:   rm,
		Capabilities: b.capabilities,
	}, nil
}

// EnableNodeControl transitions the builder from NoControl to NodeControl,
// so the built scenario can only be run by a deployer that provides node
// control (spec.md §9's typestate pattern). The builder itself does not
// reject a chaos workload attached without it. Subsequent calls on the original *Builder[NoControl] still see
// NoControl; callers must use the returned builder.
func EnableNodeControl(b *Builder[NoControl]) *Builder[NodeControl] {
	return &Builder[NodeControl]{
		nodeCount:       b.nodeCount,
		layout:          b.layout,
		roles:           b.roles,
		wallet:          b.wallet,
		workloads:       b.workloads,
		expectations:    b.expectations,
		runDuration:     b.runDuration,
		slotDuration:    b.slotDuration,
		activeSlotCoeff: b.activeSlotCoeff,
		capabilities:    NodeControl{},
		log:             b.log,
	}
}
