// Package nodeapi is the typed client for a single deployed node's HTTP API
// (spec.md §4.1). It is the only place the core reaches into a node
// directly; everything else in chainharness goes through a Client.
//
// The request/response shapes are JSON over HTTP, following the same
// *http.Client{Timeout: ...} plus http.NewRequestWithContext construction
// the teacher uses for its own gateway client (core/storage.go's Storage.Pin).
package nodeapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"chainharness/chainerr"
	"chainharness/chainlog"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the node's API base, e.g. "http://127.0.0.1:26657".
	BaseURL string
	// Timeout bounds every request issued by the client when the caller's
	// context carries no earlier deadline. It is always capped by any
	// deadline already present on the context (spec.md §4.1: "respect a
	// caller-supplied deadline").
	Timeout time.Duration
	// Logger is optional; nil falls back to chainlog.OrDefault.
	Logger *logrus.Logger
}

// Client is a typed HTTP client for one node's API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

// New constructs a Client. A zero Timeout defaults to 10s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		log:     chainlog.OrDefault(cfg.Logger),
	}
}

// BaseURL returns the node base URL this client addresses.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return chainerr.Transport("encode request", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return chainerr.Transport("build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return chainerr.Transport(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chainerr.Transport("read response", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return &RejectedError{Reason: strings500(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return chainerr.Transport("decode response", err)
	}
	return nil
}

func strings500(data []byte) string {
	const max = 500
	s := string(data)
	if len(s) > max {
		return s[:max]
	}
	return s
}

// ConsensusInfo fetches the node's current consensus view.
func (c *Client) ConsensusInfo(ctx context.Context) (*ConsensusInfo, error) {
	var out ConsensusInfo
	if err := c.doJSON(ctx, http.MethodGet, "/consensus/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTransaction submits signed transaction bytes. It is NOT idempotent:
// a caller that retries on transport failure may cause duplicate
// submission, per spec.md §4.1.
func (c *Client) SubmitTransaction(ctx context.Context, signed []byte) (*SubmitResult, error) {
	var out SubmitResult
	req := struct {
		Tx string `json:"tx"`
	}{Tx: hex.EncodeToString(signed)}
	if err := c.doJSON(ctx, http.MethodPost, "/transactions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StorageBlock fetches a block by header id. Returns ErrNotFound if the
// node has no such block.
func (c *Client) StorageBlock(ctx context.Context, headerID string) (*Block, error) {
	var out Block
	if err := c.doJSON(ctx, http.MethodGet, "/storage/block/"+headerID, nil, &out); err != nil {
		return nil, err
	}
	out.ObservedAt = time.Now()
	return &out, nil
}

// NetworkInfo fetches the node's peer count and peer list.
func (c *Client) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var out NetworkInfo
	if err := c.doJSON(ctx, http.MethodGet, "/network/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DAMembership fetches the membership descriptor for a DA session.
func (c *Client) DAMembership(ctx context.Context, sessionID string) (*DAMembership, error) {
	var out DAMembership
	if err := c.doJSON(ctx, http.MethodGet, "/da/membership/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
