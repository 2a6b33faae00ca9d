package harnessconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"chainharness/chainerr"
	"chainharness/expectations"
	"chainharness/scenario"
	"chainharness/topology"
	"chainharness/workloads"
)

// duration parses either a quoted Go duration string ("30s") or a bare
// integer of nanoseconds, since yaml.v3 has no native time.Duration support.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var asNanos int64
	if err := value.Decode(&asNanos); err == nil {
		*d = duration(asNanos)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("duration: not a string or integer")
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = duration(parsed)
	return nil
}

// ScenarioDescription is the on-disk shape of a scenario, loaded by the demo
// CLI instead of being assembled with Builder calls directly. It mirrors the
// teacher's YAML-config convention (pkg/config's mapstructure tags) but
// describes a run plan rather than a node's own configuration.
type ScenarioDescription struct {
	Topology struct {
		Nodes  int            `yaml:"nodes"`
		Layout string         `yaml:"layout"`
		Roles  map[int]string `yaml:"roles"`
		Wallet *struct {
			Users int    `yaml:"users"`
			Funds uint64 `yaml:"funds"`
		} `yaml:"wallet"`
	} `yaml:"topology"`

	Timing struct {
		SlotDuration    duration `yaml:"slot_duration"`
		ActiveSlotCoeff float64  `yaml:"active_slot_coeff"`
	} `yaml:"timing"`

	RunDuration duration `yaml:"run_duration"`

	Workloads struct {
		Transaction *struct {
			RatePerBlock   int     `yaml:"rate_per_block"`
			Users          int     `yaml:"users"`
			InclusionRatio float64 `yaml:"inclusion_ratio"`
		} `yaml:"transaction"`
		DA *struct {
			ChannelRatePerBlock int `yaml:"channel_rate_per_block"`
			BlobRatePerBlock    int `yaml:"blob_rate_per_block"`
			HeadroomPercent     int `yaml:"headroom_percent"`
		} `yaml:"da"`
		ChaosRestart *struct {
			Targets           []int    `yaml:"targets"`
			MinDelay          duration `yaml:"min_delay"`
			MaxDelay          duration `yaml:"max_delay"`
			PerTargetCooldown duration `yaml:"per_target_cooldown"`
		} `yaml:"chaos_restart"`
	} `yaml:"workloads"`

	Expectations struct {
		ConsensusLiveness *struct {
			Tolerance float64 `yaml:"tolerance"`
		} `yaml:"consensus_liveness"`
		NetworkInfo *struct{} `yaml:"network_info"`
	} `yaml:"expectations"`
}

// LoadScenarioDescription reads a ScenarioDescription from a YAML file.
func LoadScenarioDescription(path string) (*ScenarioDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, chainerr.Wrap(err, "read scenario description")
	}
	var desc ScenarioDescription
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, chainerr.Wrap(err, "parse scenario description")
	}
	return &desc, nil
}

// HasChaos reports whether the description attaches the chaos_restart
// workload, the only one requiring the scenario's node-control capability.
func (d *ScenarioDescription) HasChaos() bool {
	return d.Workloads.ChaosRestart != nil
}

func layoutFromString(s string) topology.Layout {
	switch s {
	case "chain":
		return topology.LayoutChain
	case "mesh":
		return topology.LayoutMesh
	default:
		return topology.LayoutStar
	}
}

func roleFromString(s string) topology.Role {
	switch s {
	case "executor":
		return topology.RoleExecutor
	case "da":
		return topology.RoleDA
	default:
		return topology.RoleValidator
	}
}

// applyCommon applies the topology/timing/run-duration/non-chaos-workload
// fields shared by both capability instantiations. Go generics cannot
// specialize a method to one instantiation of Builder[C], so this is a
// free function parameterized the same way Builder itself is.
func applyCommon[C scenario.Capability](b *scenario.Builder[C], d *ScenarioDescription) *scenario.Builder[C] {
	b = b.Nodes(d.Topology.Nodes).NetworkStar()
	switch layoutFromString(d.Topology.Layout) {
	case topology.LayoutChain:
		b = b.NetworkChain()
	case topology.LayoutMesh:
		b = b.NetworkMesh()
	}
	for idx, role := range d.Topology.Roles {
		b = b.WithRole(idx, roleFromString(role))
	}
	if d.Topology.Wallet != nil {
		b = b.Wallets(d.Topology.Wallet.Users, d.Topology.Wallet.Funds)
	}
	if d.Timing.SlotDuration > 0 {
		b = b.SlotTiming(time.Duration(d.Timing.SlotDuration), d.Timing.ActiveSlotCoeff)
	}
	b = b.WithRunDuration(time.Duration(d.RunDuration))

	if t := d.Workloads.Transaction; t != nil {
		b = b.WithWorkload(workloads.NewTransaction(workloads.TransactionConfig{
			RatePerBlock:   t.RatePerBlock,
			Users:          t.Users,
			InclusionRatio: t.InclusionRatio,
		}))
	}
	if da := d.Workloads.DA; da != nil {
		b = b.WithWorkload(workloads.NewDA(workloads.DAConfig{
			ChannelRatePerBlock: da.ChannelRatePerBlock,
			BlobRatePerBlock:    da.BlobRatePerBlock,
			HeadroomPercent:     da.HeadroomPercent,
		}))
	}

	if cl := d.Expectations.ConsensusLiveness; cl != nil {
		b = b.WithExpectation(expectations.NewConsensusLiveness(cl.Tolerance))
	}
	if d.Expectations.NetworkInfo != nil {
		b = b.WithExpectation(expectations.NewNetworkInfo())
	}
	return b
}

// BuildScenario assembles a Scenario[scenario.NoControl] from d. Fails if d
// attaches the chaos_restart workload — use BuildControlScenario instead.
func BuildScenario(d *ScenarioDescription) (*scenario.Scenario[scenario.NoControl], error) {
	if d.HasChaos() {
		return nil, chainerr.Build("scenario description attaches chaos_restart; build with BuildControlScenario")
	}
	b := applyCommon(scenario.NewBuilder(nil), d)
	return b.Build()
}

// BuildControlScenario assembles a Scenario[scenario.NodeControl] from d,
// attaching the chaos_restart workload when present.
func BuildControlScenario(d *ScenarioDescription) (*scenario.Scenario[scenario.NodeControl], error) {
	b := scenario.EnableNodeControl(scenario.NewBuilder(nil))
	b = applyCommon(b, d)
	if cr := d.Workloads.ChaosRestart; cr != nil {
		b = b.WithWorkload(workloads.NewChaosRestart(workloads.ChaosRestartConfig{
			Targets:           cr.Targets,
			MinDelay:          time.Duration(cr.MinDelay),
			MaxDelay:          time.Duration(cr.MaxDelay),
			PerTargetCooldown: time.Duration(cr.PerTargetCooldown),
		}))
	}
	return b.Build()
}
