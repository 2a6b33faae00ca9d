package scenario

// Capability is the phantom type parameter distinguishing a Scenario that
// requires node control from one that does not (spec.md §3/§9: "model
// capabilities as a tagged variant attached to the scenario ... in
// statically-typed targets, prefer a phantom type or generic parameter").
//
// Only NoControl and NodeControl implement it; a Scenario[C] or Builder[C]
// can only ever be instantiated with one of the two, and a Deployer[C] can
// only satisfy scenarios whose capability matches what it provides — the
// compiler rejects the mismatch rather than a runtime check.
type Capability interface {
	capability()
}

// NoControl is the capability marker for scenarios that never need to
// start/stop/restart nodes.
type NoControl struct{}

func (NoControl) capability() {}

// NodeControl is the capability marker for scenarios that require a
// node-control handle. A chaos workload only has a handle to act on when the
// scenario carries this marker; the builder does not check this.
type NodeControl struct{}

func (NodeControl) capability() {}
