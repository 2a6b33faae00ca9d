// Package topology converts a declarative TopologyConfig into a resolved
// GeneratedTopology (spec.md §3, §4.2): per-node identities, endpoints, peer
// relations, and seeded wallet accounts.
package topology

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Layout is the cluster shape requested by a TopologyConfig.
type Layout string

const (
	LayoutStar  Layout = "star"
	LayoutChain Layout = "chain"
	LayoutMesh  Layout = "mesh"
)

// Role distinguishes a node's function within the topology. Workloads and
// expectations use it to pick addressable targets (e.g. "needs ≥ 1
// executor-role node").
type Role string

const (
	RoleValidator Role = "validator"
	RoleExecutor  Role = "executor"
	RoleDA        Role = "da"
)

// WalletSpec describes the wallet accounts a scenario needs seeded into the
// generated topology (spec.md §3).
type WalletSpec struct {
	UserCount  int
	TotalFunds uint64
	// Distribution optionally overrides the uniform split. It must have
	// exactly UserCount entries summing to at most TotalFunds.
	Distribution []uint64
}

// Config is the declarative input to Generate (spec.md §3's TopologyConfig).
type Config struct {
	NodeCount int
	Layout    Layout
	// Roles optionally assigns a role per node index. Nodes without an
	// entry default to RoleValidator. Use this to designate executor or
	// DA-dispersal capable nodes.
	Roles map[int]Role
	Wallet *WalletSpec
}

// NodeDescriptor is one resolved node in a GeneratedTopology.
type NodeDescriptor struct {
	Index        int
	Role         Role
	APIEndpoint  string
	P2PEndpoint  string
	IdentityKey  string
	Peers        map[int]struct{}
}

// WalletAccount is a seeded account with signing material and a starting
// balance (spec.md §3).
type WalletAccount struct {
	ID              string
	SigningMaterial ed25519.PrivateKey
	PublicKey       ed25519.PublicKey
	StartingBalance uint64
}

// GeneratedTopology is the resolved, read-only plan produced by Generate.
type GeneratedTopology struct {
	Nodes          []NodeDescriptor
	WalletAccounts []WalletAccount
}

// NodesWithRole returns the indices of every node carrying the given role.
func (g *GeneratedTopology) NodesWithRole(role Role) []int {
	var out []int
	for _, n := range g.Nodes {
		if n.Role == role {
			out = append(out, n.Index)
		}
	}
	return out
}

// Node returns the descriptor for the given index, or false if out of range.
func (g *GeneratedTopology) Node(index int) (NodeDescriptor, bool) {
	if index < 0 || index >= len(g.Nodes) {
		return NodeDescriptor{}, false
	}
	return g.Nodes[index], true
}

// Generate resolves cfg into a GeneratedTopology (spec.md §4.2's algorithm:
// allocate endpoints, generate identities, build peer sets from layout,
// derive wallet accounts).
func Generate(cfg Config) (*GeneratedTopology, error) {
	if cfg.NodeCount < 1 {
		return nil, fmt.Errorf("topology: node_count must be >= 1, got %d", cfg.NodeCount)
	}
	switch cfg.Layout {
	case LayoutStar, LayoutChain, LayoutMesh:
	default:
		return nil, fmt.Errorf("topology: unknown layout %q", cfg.Layout)
	}

	nodes := make([]NodeDescriptor, cfg.NodeCount)
	seenKeys := make(map[string]struct{}, cfg.NodeCount)
	for i := 0; i < cfg.NodeCount; i++ {
		role := RoleValidator
		if r, ok := cfg.Roles[i]; ok {
			role = r
		}

		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("topology: generate identity for node %d: %w", i, err)
		}
		key := priv.Public().(ed25519.PublicKey)
		keyHex := fmt.Sprintf("%x", key)
		if _, dup := seenKeys[keyHex]; dup {
			return nil, fmt.Errorf("topology: duplicate identity key generated for node %d", i)
		}
		seenKeys[keyHex] = struct{}{}

		nodes[i] = NodeDescriptor{
			Index:       i,
			Role:        role,
			APIEndpoint: fmt.Sprintf("http://127.0.0.1:%d", 26600+i),
			P2PEndpoint: fmt.Sprintf("127.0.0.1:%d", 27600+i),
			IdentityKey: keyHex,
			Peers:       map[int]struct{}{},
		}
	}

	if err := buildPeers(nodes, cfg.Layout); err != nil {
		return nil, err
	}

	g := &GeneratedTopology{Nodes: nodes}
	if cfg.Wallet != nil {
		accounts, err := deriveWallet(*cfg.Wallet)
		if err != nil {
			return nil, err
		}
		g.WalletAccounts = accounts
	}
	return g, nil
}

func buildPeers(nodes []NodeDescriptor, layout Layout) error {
	n := len(nodes)
	switch layout {
	case LayoutStar:
		for i := 1; i < n; i++ {
			nodes[i].Peers[0] = struct{}{}
			nodes[0].Peers[i] = struct{}{}
		}
	case LayoutChain:
		for i := 0; i < n; i++ {
			if i > 0 {
				nodes[i].Peers[i-1] = struct{}{}
			}
			if i < n-1 {
				nodes[i].Peers[i+1] = struct{}{}
			}
		}
	case LayoutMesh:
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i != j {
					nodes[i].Peers[j] = struct{}{}
				}
			}
		}
	default:
		return fmt.Errorf("topology: unknown layout %q", layout)
	}
	return nil
}

func deriveWallet(spec WalletSpec) ([]WalletAccount, error) {
	if spec.UserCount < 0 {
		return nil, fmt.Errorf("topology: user_count must be >= 0, got %d", spec.UserCount)
	}
	if spec.UserCount == 0 {
		return nil, nil
	}

	var balances []uint64
	if spec.Distribution != nil {
		if len(spec.Distribution) != spec.UserCount {
			return nil, fmt.Errorf("topology: distribution has %d entries, want %d", len(spec.Distribution), spec.UserCount)
		}
		var sum uint64
		for _, b := range spec.Distribution {
			sum += b
		}
		if sum > spec.TotalFunds {
			return nil, fmt.Errorf("topology: distribution sums to %d, exceeds total_funds %d", sum, spec.TotalFunds)
		}
		balances = spec.Distribution
	} else {
		balances = make([]uint64, spec.UserCount)
		share := spec.TotalFunds / uint64(spec.UserCount)
		remainder := spec.TotalFunds % uint64(spec.UserCount)
		for i := range balances {
			balances[i] = share
		}
		balances[0] += remainder
	}

	accounts := make([]WalletAccount, spec.UserCount)
	for i := 0; i < spec.UserCount; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("topology: generate wallet key %d: %w", i, err)
		}
		accounts[i] = WalletAccount{
			ID:              uuid.NewString(),
			SigningMaterial: priv,
			PublicKey:       pub,
			StartingBalance: balances[i],
		}
	}
	return accounts, nil
}

// SortedIndices returns the node indices of g in ascending order. Useful for
// deterministic iteration when a caller has a map keyed by index.
func SortedIndices(g *GeneratedTopology) []int {
	out := make([]int, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Index
	}
	sort.Ints(out)
	return out
}
