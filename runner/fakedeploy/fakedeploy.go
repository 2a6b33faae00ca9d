// Package fakedeploy is an in-memory Deployer used only by chainharness's
// own tests and the demo CLI's --fake mode. It is not a concrete deployment
// backend in the sense spec.md excludes from scope (process spawning,
// container orchestration): it never leaves the test/demo boundary and
// ships no production wiring, the same role the teacher's tests/ package
// mocks (mockTxPool, mockNetwork in core/consensus_test.go) play for the
// core's own test suite.
package fakedeploy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chainharness/blockfeed"
	"chainharness/chainerr"
	"chainharness/chainlog"
	"chainharness/nodeapi"
	"chainharness/nodecontrol"
	"chainharness/runner"
	"chainharness/scenario"
	"chainharness/topology"
	"chainharness/workloads"
)

// Config configures a fake deployer.
type Config struct {
	// TickInterval is how often each node mints a new block. Defaults to
	// 200ms.
	TickInterval time.Duration
	// ReadinessTimeout bounds Deploy's readiness probe. Defaults to
	// runner.DefaultReadinessTimeout. Callers driving a scenario through
	// harnessconfig should pass Config.EffectiveReadinessTimeout() here so
	// the slow-environment multiplier (spec.md §5) actually reaches the
	// probe instead of the hardcoded default.
	ReadinessTimeout time.Duration
	Logger           *logrus.Logger
}

// node is one simulated cluster member: an httptest.Server backed by an
// in-memory, ever-growing chain of empty-ish blocks, toggled up/down by
// node-control operations.
type node struct {
	mu         sync.Mutex
	down       bool
	height        uint64
	peerCount     int
	blocks        map[string]nodeapi.Block
	tip           string
	pendingTxs    []nodeapi.TxRef
	pendingDARefs []nodeapi.DARef

	srv *httptest.Server
}

func newNode(peerCount int) *node {
	n := &node{peerCount: peerCount, blocks: make(map[string]nodeapi.Block)}
	r := chi.NewRouter()
	r.Get("/consensus/info", n.handleConsensusInfo)
	r.Post("/transactions", n.handleSubmitTransaction)
	r.Get("/storage/block/{headerID}", n.handleStorageBlock)
	r.Get("/network/info", n.handleNetworkInfo)
	r.Get("/da/membership/{sessionID}", n.handleDAMembership)
	n.srv = httptest.NewServer(r)
	return n
}

func (n *node) isDown() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.down
}

func (n *node) handleConsensusInfo(w http.ResponseWriter, req *http.Request) {
	if n.isDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	n.mu.Lock()
	info := nodeapi.ConsensusInfo{Height: n.height, TipHeaderID: n.tip, Participating: true}
	n.mu.Unlock()
	json.NewEncoder(w).Encode(info)
}

// handleSubmitTransaction decodes the workload's tagged envelope well
// enough to stash a TxRef for the next minted block, so TxInclusion has
// something real to observe against this backend.
func (n *node) handleSubmitTransaction(w http.ResponseWriter, req *http.Request) {
	if n.isDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Tx string `json:"tx"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	raw, err := hex.DecodeString(body.Tx)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	tag, _ := workloads.SignedTransactionTag(raw)

	n.mu.Lock()
	n.pendingTxs = append(n.pendingTxs, nodeapi.TxRef{ID: uuid.NewString(), Tag: tag})
	n.mu.Unlock()

	json.NewEncoder(w).Encode(nodeapi.SubmitResult{Accepted: true, TxID: uuid.NewString()})
}

func (n *node) handleStorageBlock(w http.ResponseWriter, req *http.Request) {
	if n.isDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	headerID := chi.URLParam(req, "headerID")
	n.mu.Lock()
	blk, ok := n.blocks[headerID]
	n.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(blk)
}

func (n *node) handleNetworkInfo(w http.ResponseWriter, req *http.Request) {
	if n.isDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	n.mu.Lock()
	peers := make([]string, n.peerCount)
	for i := range peers {
		peers[i] = fmt.Sprintf("peer-%d", i)
	}
	n.mu.Unlock()
	json.NewEncoder(w).Encode(nodeapi.NetworkInfo{PeerCount: n.peerCount, Peers: peers})
}

// handleDAMembership confirms one blob for the given channel: it mints a
// blob id, queues it for the next minted block's da_refs, and hands the id
// back as the sole confirmed member, giving the DA workload something the
// node will actually go on to report (mirrors handleSubmitTransaction's
// stash-then-echo shape).
func (n *node) handleDAMembership(w http.ResponseWriter, req *http.Request) {
	if n.isDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	sessionID := chi.URLParam(req, "sessionID")
	blobID := uuid.NewString()

	n.mu.Lock()
	n.pendingDARefs = append(n.pendingDARefs, nodeapi.DARef{ChannelID: sessionID, BlobID: blobID})
	n.mu.Unlock()

	json.NewEncoder(w).Encode(nodeapi.DAMembership{SessionID: sessionID, Members: []string{blobID}})
}

// tick mints one block if the node is up.
func (n *node) tick() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return
	}
	n.height++
	prev := n.tip
	n.tip = uuid.NewString()
	txs := n.pendingTxs
	n.pendingTxs = nil
	daRefs := n.pendingDARefs
	n.pendingDARefs = nil
	n.blocks[n.tip] = nodeapi.Block{
		HeaderID:     n.tip,
		Height:       n.height,
		PrevHeaderID: prev,
		Transactions: txs,
		DARefs:       daRefs,
	}
}

func (n *node) run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tick()
		}
	}
}

func (n *node) setDown(down bool) {
	n.mu.Lock()
	n.down = down
	n.mu.Unlock()
}

// Deployer is a fake backend exposing no node-control capability.
type Deployer struct {
	cfg Config
	log *logrus.Logger
}

// NewDeployer constructs a no-control fake deployer.
func NewDeployer(cfg Config) *Deployer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 200 * time.Millisecond
	}
	return &Deployer{cfg: cfg, log: chainlog.OrDefault(cfg.Logger)}
}

// Deploy implements runner.Deployer[scenario.NoControl].
func (d *Deployer) Deploy(ctx context.Context, sc *scenario.Scenario[scenario.NoControl]) (*scenario.RunContext, *runner.CleanupGuard, error) {
	rc, guard, _, err := deployWithNodes(ctx, d.cfg, d.log, sc.Generated, sc.RunMetrics)
	if err != nil {
		return nil, nil, err
	}
	return rc, guard, nil
}

// ControlDeployer is a fake backend that also exposes node-control
// operations, for scenarios built with scenario.EnableNodeControl.
type ControlDeployer struct {
	cfg   Config
	log   *logrus.Logger
	mu    sync.Mutex
	nodes []*node
}

// NewControlDeployer constructs a node-control-capable fake deployer.
func NewControlDeployer(cfg Config) *ControlDeployer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 200 * time.Millisecond
	}
	return &ControlDeployer{cfg: cfg, log: chainlog.OrDefault(cfg.Logger)}
}

// Deploy implements runner.Deployer[scenario.NodeControl].
func (d *ControlDeployer) Deploy(ctx context.Context, sc *scenario.Scenario[scenario.NodeControl]) (*scenario.RunContext, *runner.CleanupGuard, error) {
	rc, guard, nodes, err := deployWithNodes(ctx, d.cfg, d.log, sc.Generated, sc.RunMetrics)
	if err != nil {
		return nil, nil, err
	}
	d.mu.Lock()
	d.nodes = nodes
	d.mu.Unlock()
	rc.NodeControl = d
	return rc, guard, nil
}

// Start implements nodecontrol.Handle.
func (d *ControlDeployer) Start(ctx context.Context, index int) error {
	n, err := d.nodeAt(index)
	if err != nil {
		return err
	}
	n.setDown(false)
	return nil
}

// Stop implements nodecontrol.Handle.
func (d *ControlDeployer) Stop(ctx context.Context, index int) error {
	n, err := d.nodeAt(index)
	if err != nil {
		return err
	}
	n.setDown(true)
	return nil
}

// Restart implements nodecontrol.Handle: stop, a brief backend-chosen
// delay, then start, not returning until the node's consensus_info call
// succeeds again or ctx is done (spec.md §4.10).
func (d *ControlDeployer) Restart(ctx context.Context, index int) error {
	n, err := d.nodeAt(index)
	if err != nil {
		return err
	}
	n.setDown(true)

	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return &nodecontrol.Failure{Kind: nodecontrol.FailureTimeout, Index: index, Cause: ctx.Err()}
	}
	n.setDown(false)

	client := nodeapi.New(nodeapi.Config{BaseURL: n.srv.URL, Timeout: 2 * time.Second})
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := client.ConsensusInfo(ctx); err == nil {
			return nil
		}
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return &nodecontrol.Failure{Kind: nodecontrol.FailureTimeout, Index: index, Cause: ctx.Err()}
		}
	}
	return &nodecontrol.Failure{Kind: nodecontrol.FailureTimeout, Index: index}
}

func (d *ControlDeployer) nodeAt(index int) (*node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.nodes) {
		return nil, &nodecontrol.Failure{Kind: nodecontrol.FailureTargetMissing, Index: index}
	}
	return d.nodes[index], nil
}

func deployWithNodes(ctx context.Context, cfg Config, log *logrus.Logger, generated *topology.GeneratedTopology, rm scenario.RunMetrics) (*scenario.RunContext, *runner.CleanupGuard, []*node, error) {
	guard := runner.NewCleanupGuard()
	nodeCtx, cancel := context.WithCancel(ctx)
	guard.Add(cancel)

	nodes := make([]*node, len(generated.Nodes))
	clients := make([]*nodeapi.Client, len(generated.Nodes))
	for i, desc := range generated.Nodes {
		n := newNode(len(desc.Peers))
		nodes[i] = n
		guard.Add(n.srv.Close)
		go n.run(nodeCtx, cfg.TickInterval)
		clients[i] = nodeapi.New(nodeapi.Config{BaseURL: n.srv.URL, Timeout: 5 * time.Second, Logger: log})
	}

	feed := buildFeed(clients, log)
	feed.Start(nodeCtx)
	guard.Add(feed.Close)

	readinessTimeout := cfg.ReadinessTimeout
	if readinessTimeout <= 0 {
		readinessTimeout = runner.DefaultReadinessTimeout
	}
	if err := waitReady(ctx, clients, generated, readinessTimeout); err != nil {
		guard.Fire()
		return nil, nil, nil, chainerr.ReadinessTimeout("fakedeploy: readiness probe failed", err)
	}

	rc := scenario.NewRunContext(generated, clients, generated.WalletAccounts, feed, nil, rm, nil)
	return rc, guard, nodes, nil
}

// buildFeed wires a block feed against the first client, failing over
// through the rest in order (spec.md §4.3/§9).
func buildFeed(clients []*nodeapi.Client, log *logrus.Logger) *blockfeed.Feed {
	sources := make([]blockfeed.Source, len(clients))
	for i, c := range clients {
		sources[i] = c
	}
	return blockfeed.New(blockfeed.Config{Sources: sources, Tick: 50 * time.Millisecond, Logger: log})
}

// waitReady polls every node until API reachability and peer-count match
// hold, then waits for at least one node to show strictly increasing block
// height over one further observation window (spec.md §4.8's three
// readiness criteria).
func waitReady(ctx context.Context, clients []*nodeapi.Client, generated *topology.GeneratedTopology, readinessTimeout time.Duration) error {
	deadline := time.Now().Add(readinessTimeout)
	var baseline uint64
	haveBaseline := false

	for {
		allReachable := true
		var anyHeight uint64
		for i, c := range clients {
			info, err := c.ConsensusInfo(ctx)
			if err != nil {
				allReachable = false
				break
			}
			net, err := c.NetworkInfo(ctx)
			if err != nil || net.PeerCount != len(generated.Nodes[i].Peers) {
				allReachable = false
				break
			}
			if info.Height > anyHeight {
				anyHeight = info.Height
			}
		}
		if allReachable {
			if !haveBaseline {
				baseline = anyHeight
				haveBaseline = true
			} else if anyHeight > baseline {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fakedeploy: readiness not reached within %s", readinessTimeout)
		}
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
