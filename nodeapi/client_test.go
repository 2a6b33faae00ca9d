package nodeapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"chainharness/nodeapi"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/consensus/info", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(nodeapi.ConsensusInfo{Height: 42, Slot: 100, TipHeaderID: "abc"})
	})
	r.Post("/transactions", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(nodeapi.SubmitResult{Accepted: true, TxID: "tx-1"})
	})
	r.Get("/storage/block/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		if id == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(nodeapi.Block{HeaderID: id, Height: 1})
	})
	r.Get("/network/info", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(nodeapi.NetworkInfo{PeerCount: 3, Peers: []string{"a", "b", "c"}})
	})
	return httptest.NewServer(r)
}

func TestClientConsensusInfo(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := nodeapi.New(nodeapi.Config{BaseURL: srv.URL, Timeout: time.Second})
	info, err := c.ConsensusInfo(t.Context())
	if err != nil {
		t.Fatalf("ConsensusInfo: %v", err)
	}
	if info.Height != 42 {
		t.Fatalf("height = %d, want 42", info.Height)
	}
}

func TestClientSubmitTransaction(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := nodeapi.New(nodeapi.Config{BaseURL: srv.URL, Timeout: time.Second})
	res, err := c.SubmitTransaction(t.Context(), []byte("tx-bytes"))
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected accepted")
	}
}

func TestClientStorageBlockNotFound(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := nodeapi.New(nodeapi.Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.StorageBlock(t.Context(), "missing")
	if err != nodeapi.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClientNetworkInfo(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := nodeapi.New(nodeapi.Config{BaseURL: srv.URL, Timeout: time.Second})
	info, err := c.NetworkInfo(t.Context())
	if err != nil {
		t.Fatalf("NetworkInfo: %v", err)
	}
	if info.PeerCount != 3 {
		t.Fatalf("peer count = %d, want 3", info.PeerCount)
	}
}
