package scenario

import (
	"context"

	"chainharness/topology"
)

// Workload is a traffic/behaviour generator active during the Running phase
// (spec.md §4.5).
type Workload interface {
	// Name is a stable identifier used in logs and error messages.
	Name() string

	// BundledExpectations returns the (possibly empty) expectations this
	// workload attaches automatically when added to a scenario. They
	// compose with user-supplied expectations (spec.md §4.5, §9).
	BundledExpectations() []Expectation

	// Init validates the workload's prerequisites against the generated
	// topology and run metrics. It runs synchronously at build time and
	// must fail fast with a descriptive error (e.g. "needs wallets >= 8
	// users") when a prerequisite is unmet.
	Init(generated *topology.GeneratedTopology, rm RunMetrics) error

	// Start runs the concurrent driver until ctx is cancelled (the Runner
	// cancels it once run_duration elapses). Start must terminate
	// promptly on cancellation and is safe to invoke exactly once per
	// scenario run.
	Start(ctx context.Context, rc *RunContext) error
}

// Expectation is a post-run assertion evaluated after workloads drain and
// cooldown elapses (spec.md §4.6).
type Expectation interface {
	Name() string

	// Init validates prerequisites at build time, analogous to
	// Workload.Init.
	Init(generated *topology.GeneratedTopology, rm RunMetrics) error

	// StartCapture is invoked once, just before workloads start. It may
	// subscribe to the block feed and install a background collector
	// task. Must be idempotent.
	StartCapture(ctx context.Context, rc *RunContext) error

	// Evaluate is invoked after workloads finish and cooldown elapses. It
	// must not block indefinitely and returns a descriptive error on
	// failure, nil on success.
	Evaluate(ctx context.Context, rc *RunContext) error
}
