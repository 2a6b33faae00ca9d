package runner

import (
	"context"
	"time"

	"chainharness/scenario"
)

// DefaultReadinessTimeout bounds how long Deploy may spend waiting for
// network readiness before returning a readiness-timeout error (spec.md
// §4.8, §5: "defaults to 60s, doubled in slow environment mode").
const DefaultReadinessTimeout = 60 * time.Second

// Deployer provisions a concrete backend for a scenario carrying capability
// C, waits for network readiness, and returns a ready RunContext plus the
// CleanupGuard the caller must fire at the end of the run (spec.md §4.8).
//
// A deployer that does not expose a node-control handle can only ever
// satisfy Deployer[scenario.NoControl]; the compiler rejects wiring it to a
// Deployer[scenario.NodeControl]-typed call site, realizing "scenarios whose
// Caps require [node control] will not compile against deployers that do
// not" at the type level.
type Deployer[C scenario.Capability] interface {
	Deploy(ctx context.Context, sc *scenario.Scenario[C]) (*scenario.RunContext, *CleanupGuard, error)
}
