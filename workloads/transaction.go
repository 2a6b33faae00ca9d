// Package workloads implements the three built-in traffic generators from
// spec.md §4.5: transactions, data-availability, and random-restart chaos.
package workloads

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"chainharness/chainlog"
	"chainharness/expectations"
	"chainharness/scenario"
	"chainharness/topology"
)

// TransactionConfig configures a Transaction workload (spec.md §4.5.a).
type TransactionConfig struct {
	RatePerBlock   int
	Users          int
	InclusionRatio float64 // passed through to the bundled TxInclusion expectation; 0 uses its default
	Logger         *logrus.Logger
}

// Transaction subscribes to the block feed and, on each observed block,
// submits RatePerBlock distinct transactions drawn round-robin over the
// first Users wallet accounts to a uniformly random node.
type Transaction struct {
	cfg       TransactionConfig
	log       *logrus.Logger
	submitted atomic.Int64
	name      string
}

// NewTransaction constructs a Transaction workload.
func NewTransaction(cfg TransactionConfig) *Transaction {
	return &Transaction{cfg: cfg, log: chainlog.OrDefault(cfg.Logger), name: "transaction"}
}

func (t *Transaction) Name() string { return t.name }

func (t *Transaction) BundledExpectations() []scenario.Expectation {
	return []scenario.Expectation{expectations.NewTxInclusion(t.name, &t.submitted, t.cfg.InclusionRatio)}
}

func (t *Transaction) Init(generated *topology.GeneratedTopology, rm scenario.RunMetrics) error {
	if t.cfg.RatePerBlock < 1 {
		return fmt.Errorf("transaction workload: rate_per_block must be >= 1")
	}
	if t.cfg.Users < 1 {
		return fmt.Errorf("transaction workload: users must be >= 1")
	}
	if len(generated.WalletAccounts) < t.cfg.Users {
		return fmt.Errorf("transaction workload: needs wallets >= %d users, got %d", t.cfg.Users, len(generated.WalletAccounts))
	}
	return nil
}

func (t *Transaction) Start(ctx context.Context, rc *scenario.RunContext) error {
	if len(rc.Wallets) < t.cfg.Users {
		return fmt.Errorf("transaction workload: wallets %d < required users %d", len(rc.Wallets), t.cfg.Users)
	}

	sub := rc.Feed.Subscribe()
	defer sub.Unsubscribe()

	var cursor int
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-sub.C():
			if !ok || rec.Closed {
				return nil
			}
			if rec.Block == nil {
				continue
			}
			t.driveBlock(ctx, rc, &cursor)
		}
	}
}

func (t *Transaction) driveBlock(ctx context.Context, rc *scenario.RunContext, cursor *int) {
	client, idx, ok := rc.RandomClient()
	if !ok {
		return
	}
	for i := 0; i < t.cfg.RatePerBlock; i++ {
		account := rc.Wallets[*cursor%t.cfg.Users]
		*cursor++

		signed := buildSignedTransaction(account, t.name)
		t.submitted.Add(1)

		_, err := client.SubmitTransaction(ctx, signed)
		if err != nil {
			t.log.WithError(err).WithFields(logrus.Fields{
				"workload": t.name,
				"node":     idx,
				"account":  account.ID,
			}).Debug("transaction submission failed")
		}
	}
}

// buildSignedTransaction is a placeholder signer: the core has no wire
// format or cryptography of its own (spec.md §1 — node wire
// protocol/cryptography are explicitly out of scope), so the payload is an
// opaque, tagged envelope a deployer-provided node understands however it
// chooses to.
func buildSignedTransaction(account topology.WalletAccount, tag string) []byte {
	return []byte(fmt.Sprintf("tx|from=%s|tag=%s", account.ID, tag))
}

// SignedTransactionTag extracts the tag embedded by buildSignedTransaction,
// for deployers/tests that want to stamp nodeapi.TxRef.Tag by round-tripping
// the convention this workload uses.
func SignedTransactionTag(signed []byte) (tag string, ok bool) {
	const prefix = "|tag="
	s := string(signed)
	idx := strings.Index(s, prefix)
	if idx < 0 {
		return "", false
	}
	return s[idx+len(prefix):], true
}
