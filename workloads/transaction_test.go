package workloads_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"chainharness/blockfeed"
	"chainharness/nodeapi"
	"chainharness/scenario"
	"chainharness/topology"
	"chainharness/workloads"
)

func TestTransactionInitRejectsBadConfig(t *testing.T) {
	gen := &topology.GeneratedTopology{Nodes: []topology.NodeDescriptor{{Index: 0}}}
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	tests := []workloads.TransactionConfig{
		{RatePerBlock: 0, Users: 1},
		{RatePerBlock: 1, Users: 0},
	}
	for _, cfg := range tests {
		w := workloads.NewTransaction(cfg)
		if err := w.Init(gen, rm); err == nil {
			t.Fatalf("expected error for config %+v", cfg)
		}
	}
}

func TestTransactionStartRejectsInsufficientWallets(t *testing.T) {
	gen := &topology.GeneratedTopology{Nodes: []topology.NodeDescriptor{{Index: 0}}}
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	w := workloads.NewTransaction(workloads.TransactionConfig{RatePerBlock: 1, Users: 4})
	if err := w.Init(gen, rm); err == nil {
		t.Fatalf("expected Init error: not enough wallets")
	}

	feed := blockfeed.New(blockfeed.Config{Sources: []blockfeed.Source{txNoopSource{}}, Tick: time.Hour})
	feed.Start(t.Context())
	defer feed.Close()

	rc := scenario.NewRunContext(gen, nil, nil, feed, nil, rm, nil)
	if err := w.Start(t.Context(), rc); err == nil {
		t.Fatalf("expected error: not enough wallets")
	}
}

func TestTransactionDrivesBlocksAndSubmits(t *testing.T) {
	r := chi.NewRouter()
	submissions := make(chan struct{}, 100)
	r.Post("/transactions", func(w http.ResponseWriter, req *http.Request) {
		submissions <- struct{}{}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accepted":true,"tx_id":"abc"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	gen := &topology.GeneratedTopology{
		Nodes:          []topology.NodeDescriptor{{Index: 0}},
		WalletAccounts: []topology.WalletAccount{{ID: "a"}, {ID: "b"}},
	}
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	w := workloads.NewTransaction(workloads.TransactionConfig{RatePerBlock: 2, Users: 2})
	if err := w.Init(gen, rm); err != nil {
		t.Fatalf("Init: %v", err)
	}

	client := nodeapi.New(nodeapi.Config{BaseURL: srv.URL, Timeout: time.Second})
	feed := blockfeed.New(blockfeed.Config{Sources: []blockfeed.Source{&oneShotBlockSource{}}, Tick: 5 * time.Millisecond})
	feed.Start(t.Context())
	defer feed.Close()

	rc := scenario.NewRunContext(gen, []*nodeapi.Client{client}, gen.WalletAccounts, feed, nil, rm, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, rc) }()

	select {
	case <-submissions:
	case <-time.After(time.Second):
		t.Fatalf("workload never submitted a transaction after a block was observed")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("workload did not terminate after cancellation")
	}
}

type txNoopSource struct{}

func (txNoopSource) ConsensusInfo(ctx context.Context) (*nodeapi.ConsensusInfo, error) {
	return &nodeapi.ConsensusInfo{}, nil
}
func (txNoopSource) StorageBlock(ctx context.Context, headerID string) (*nodeapi.Block, error) {
	return nil, nodeapi.ErrNotFound
}

// oneShotBlockSource reports a steady single-block tip, so the feed's
// poller emits exactly one record (subsequent polls see an unchanged tip
// and are skipped).
type oneShotBlockSource struct{}

func (s *oneShotBlockSource) ConsensusInfo(ctx context.Context) (*nodeapi.ConsensusInfo, error) {
	return &nodeapi.ConsensusInfo{Height: 1, TipHeaderID: "h1"}, nil
}

func (s *oneShotBlockSource) StorageBlock(ctx context.Context, headerID string) (*nodeapi.Block, error) {
	return &nodeapi.Block{HeaderID: "h1", Height: 1}, nil
}
