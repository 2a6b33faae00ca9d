package expectations_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"chainharness/blockfeed"
	"chainharness/expectations"
	"chainharness/nodeapi"
	"chainharness/scenario"
	"chainharness/topology"
)

func newHeightServer(t *testing.T, height uint64) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/consensus/info", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(nodeapi.ConsensusInfo{Height: height})
	})
	return httptest.NewServer(r)
}

func newRunContext(t *testing.T, clients []*nodeapi.Client) *scenario.RunContext {
	t.Helper()
	gen := &topology.GeneratedTopology{}
	for i := range clients {
		gen.Nodes = append(gen.Nodes, topology.NodeDescriptor{Index: i})
	}
	feed := blockfeed.New(blockfeed.Config{Sources: []blockfeed.Source{&noopSource{}}, Tick: time.Hour})
	feed.Start(t.Context())
	t.Cleanup(feed.Close)
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)
	return scenario.NewRunContext(gen, clients, nil, feed, nil, rm, nil)
}

type noopSource struct{}

func (noopSource) ConsensusInfo(ctx context.Context) (*nodeapi.ConsensusInfo, error) {
	return &nodeapi.ConsensusInfo{}, nil
}
func (noopSource) StorageBlock(ctx context.Context, headerID string) (*nodeapi.Block, error) {
	return nil, nodeapi.ErrNotFound
}

func TestConsensusLivenessPass(t *testing.T) {
	srv := newHeightServer(t, 20)
	defer srv.Close()
	client := nodeapi.New(nodeapi.Config{BaseURL: srv.URL, Timeout: time.Second})

	rc := newRunContext(t, []*nodeapi.Client{client})
	gen := rc.Generated
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second) // expected_blocks = 27

	exp := expectations.NewConsensusLiveness(0.5) // threshold = 13
	if err := exp.Init(gen, rm); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := exp.Evaluate(t.Context(), rc); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
}

func TestConsensusLivenessFail(t *testing.T) {
	srv := newHeightServer(t, 1)
	defer srv.Close()
	client := nodeapi.New(nodeapi.Config{BaseURL: srv.URL, Timeout: time.Second})

	rc := newRunContext(t, []*nodeapi.Client{client})
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	exp := expectations.NewConsensusLiveness(0.8)
	if err := exp.Init(rc.Generated, rm); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := exp.Evaluate(t.Context(), rc); err == nil {
		t.Fatalf("expected failure")
	}
}

func TestTxInclusionFailsWithoutObservations(t *testing.T) {
	rc := newRunContext(t, nil)
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	var counter atomic.Int64
	counter.Store(100)

	exp := expectations.NewTxInclusion("mytag", &counter, 0.5)
	if err := exp.Init(rc.Generated, rm); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := exp.Evaluate(t.Context(), rc); err == nil {
		t.Fatalf("expected failure: no observations yet, submitted=100")
	}
}

func TestDAInclusionNoSubmissionsPasses(t *testing.T) {
	rc := newRunContext(t, nil)
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	set := expectations.NewSubmittedDASet()
	exp := expectations.NewDAInclusion(set, 0.8)
	if err := exp.Init(rc.Generated, rm); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := exp.Evaluate(t.Context(), rc); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
}
