package scenario

import (
	"chainharness/topology"
)

// Scenario is the immutable, built plan: topology + workloads + expectations
// + duration + capability marker (spec.md §3). It is produced only by
// Builder.Build and never mutated afterwards.
type Scenario[C Capability] struct {
	Generated    *topology.GeneratedTopology
	Workloads    []Workload
	Expectations []Expectation
	RunMetrics   RunMetrics
	Capabilities C
}
