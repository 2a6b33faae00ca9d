// Package blockfeed implements the broadcast stream of observed blocks and
// aggregate BlockStats described in spec.md §4.3. A background poller walks
// one node's consensus tip forward, backfilling via storage_block when the
// tip has advanced, and fans the resulting records out to subscribers
// through a lag-tolerant ring buffer (spec.md §9: "broadcast channel with
// lag tolerance").
package blockfeed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"chainharness/chainlog"
	"chainharness/metrics"
	"chainharness/nodeapi"
)

// Record is one observed block or a synthetic marker (gap/closed),
// delivered to subscribers in ascending height order.
type Record struct {
	Block *nodeapi.Block // nil for Gap and Closed markers

	// Gap is true when the poller skipped a range of blocks because the
	// backfill bound was exceeded. GapFromHeight/GapToHeight describe the skipped
	// (exclusive, inclusive] height range.
	Gap           bool
	GapFromHeight uint64
	GapToHeight   uint64

	// Lag is true when this record replaces one or more records the
	// subscriber's channel could not keep up with. LagCount is how many
	// were dropped.
	Lag      bool
	LagCount int

	// Closed is true exactly once, as the terminal record delivered to a
	// subscriber when the feed shuts down.
	Closed bool
}

// Stats is the always-readable aggregate snapshot (spec.md §3's
// BlockStats). Updated only by the poller; read via atomic loads so
// concurrent subscribers never block the producer.
type Stats struct {
	blocksObserved   atomic.Uint64
	totalTransactions atomic.Uint64
	totalDABlobs      atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats' counters.
type Snapshot struct {
	BlocksObserved    uint64
	TotalTransactions uint64
	TotalDABlobs      uint64
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		BlocksObserved:    s.blocksObserved.Load(),
		TotalTransactions: s.totalTransactions.Load(),
		TotalDABlobs:      s.totalDABlobs.Load(),
	}
}

func (s *Stats) record(b *nodeapi.Block) {
	s.blocksObserved.Add(1)
	s.totalTransactions.Add(uint64(len(b.Transactions)))
	s.totalDABlobs.Add(uint64(len(b.DARefs)))
}

// Subscription is a receiver handed back by Subscribe.
type Subscription struct {
	ch     chan Record
	cancel func()

	// lagCount accumulates drops not yet folded into a delivered Lag
	// record; guarded by the owning Feed's mu.
	lagCount int
}

// C returns the channel to receive records on.
func (s *Subscription) C() <-chan Record { return s.ch }

// Unsubscribe detaches this subscription from the feed. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() { s.cancel() }

// Source is the subset of nodeapi.Client the poller needs from a candidate
// source node.
type Source interface {
	ConsensusInfo(ctx context.Context) (*nodeapi.ConsensusInfo, error)
	StorageBlock(ctx context.Context, headerID string) (*nodeapi.Block, error)
}

// Config configures a Feed.
type Config struct {
	// Sources is the ordered list of candidate source nodes. The poller
	// uses Sources[0] until its consensus_info calls have failed without a
	// success for SourceFailureTimeout, then fails over to the next one (spec.md
	// §9's open question, resolved: failover on sustained source loss).
	Sources []Source
	// Tick is the poll interval. Defaults to 1s.
	Tick time.Duration
	// BackfillBound caps how many blocks the poller will walk backwards
	// to fill a gap after a long interval between observations. Exceeding
	// it emits a Gap record instead of fetching the whole range.
	BackfillBound int
	// SourceFailureTimeout is how long a source may fail consecutively
	// before the poller fails over to the next candidate.
	SourceFailureTimeout time.Duration
	// SubscriberBuffer sizes each subscriber's channel. A slow subscriber
	// that falls behind this many records receives a Lag marker rather
	// than blocking the poller.
	SubscriberBuffer int
	Metrics          *metrics.Handle
	Logger           *logrus.Logger
}

const (
	defaultTick                 = time.Second
	defaultBackfillBound        = 256
	defaultSourceFailureTimeout = 30 * time.Second
	defaultSubscriberBuffer     = 64
)

// Feed polls a designated source node and broadcasts observed blocks.
type Feed struct {
	cfg    Config
	log    *logrus.Logger
	stats  Stats
	errCh  chan error

	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	closed      bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Feed. Call Start to begin polling.
func New(cfg Config) *Feed {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.BackfillBound <= 0 {
		cfg.BackfillBound = defaultBackfillBound
	}
	if cfg.SourceFailureTimeout <= 0 {
		cfg.SourceFailureTimeout = defaultSourceFailureTimeout
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	return &Feed{
		cfg:         cfg,
		log:         chainlog.OrDefault(cfg.Logger),
		errCh:       make(chan error, 1),
		subscribers: make(map[*Subscription]struct{}),
		done:        make(chan struct{}),
	}
}

// Errors returns the channel the Runner consumes for sustained poll
// failures (spec.md §4.3/§7: "a sustained failure surfaces through a feed
// error channel consumed by the Runner, which fails the scenario").
func (f *Feed) Errors() <-chan error { return f.errCh }

// Stats returns the current aggregate snapshot.
func (f *Feed) Stats() Snapshot { return f.stats.snapshot() }

// Subscribe returns a new Subscription. New subscribers do not receive
// historical records (spec.md §4.3).
func (f *Feed) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &Subscription{ch: make(chan Record, f.cfg.SubscriberBuffer)}
	if f.closed {
		// Subscribing after close yields an immediate closed terminal
		// state, not an error (spec.md §8).
		sub.ch <- Record{Closed: true}
		close(sub.ch)
		sub.cancel = func() {}
		return sub
	}

	f.subscribers[sub] = struct{}{}
	sub.cancel = func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subscribers[sub]; ok {
			delete(f.subscribers, sub)
			close(sub.ch)
		}
	}
	return sub
}

func (f *Feed) broadcast(rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subscribers {
		select {
		case sub.ch <- rec:
		default:
			// Slow subscriber: evict the oldest buffered record and
			// replace it with a lag marker rather than blocking the
			// poller (spec.md §4.3/§9). rec itself never gets delivered
			// in this path, and the evicted record may be a real block
			// rather than a prior lag marker, so both count toward the
			// running total instead of reporting a flat 1.
			sub.lagCount++
			select {
			case evicted := <-sub.ch:
				if evicted.Lag {
					sub.lagCount += evicted.LagCount
				} else {
					sub.lagCount++
				}
			default:
			}
			select {
			case sub.ch <- Record{Lag: true, LagCount: sub.lagCount}:
				sub.lagCount = 0
			default:
			}
		}
	}
}

// Start launches the background poller. It returns immediately; use
// Errors() to observe sustained failures and Close() to stop cleanly.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(ctx)
}

// Close stops the poller and marks the feed closed, delivering a Closed
// terminal record to every current subscriber (spec.md §4.3: "closed
// cleanly at teardown, causing subscribers to observe a closed terminal
// state").
func (f *Feed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	<-f.done

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subscribers {
		select {
		case sub.ch <- Record{Closed: true}:
		default:
		}
		close(sub.ch)
		delete(f.subscribers, sub)
	}
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	if len(f.cfg.Sources) == 0 {
		return
	}
	sourceIdx := 0
	var consecutiveFailures int
	var failureStart time.Time
	var lastHeight uint64
	var lastHeaderID string

	ticker := time.NewTicker(f.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		src := f.cfg.Sources[sourceIdx]
		info, err := src.ConsensusInfo(ctx)
		if err != nil {
			if consecutiveFailures == 0 {
				failureStart = time.Now()
			}
			consecutiveFailures++
			f.log.WithError(err).WithField("source", sourceIdx).Warn("blockfeed: consensus_info failed")

			if time.Since(failureStart) >= f.cfg.SourceFailureTimeout {
				if sourceIdx+1 < len(f.cfg.Sources) {
					sourceIdx++
					consecutiveFailures = 0
					f.log.WithField("source", sourceIdx).Warn("blockfeed: failing over to next source")
					continue
				}
				select {
				case f.errCh <- err:
				default:
				}
				return
			}
			continue
		}
		consecutiveFailures = 0

		if info.Height <= lastHeight && info.TipHeaderID == lastHeaderID {
			continue
		}

		newHeight, newHeaderID, err := f.emitNewBlocks(ctx, src, lastHeight, info)
		if err != nil {
			f.log.WithError(err).Warn("blockfeed: backfill failed")
			continue
		}
		lastHeight, lastHeaderID = newHeight, newHeaderID
	}
}

// emitNewBlocks walks backwards from info's tip toward lastHeight, bounded
// by BackfillBound, and broadcasts each new block in ascending-height order
// (spec.md §4.3).
func (f *Feed) emitNewBlocks(ctx context.Context, src Source, lastHeight uint64, info *nodeapi.ConsensusInfo) (uint64, string, error) {
	if info.Height > lastHeight && info.Height-lastHeight > uint64(f.cfg.BackfillBound) {
		gapFrom := lastHeight
		gapTo := info.Height - uint64(f.cfg.BackfillBound)
		f.broadcast(Record{Gap: true, GapFromHeight: gapFrom, GapToHeight: gapTo})
		lastHeight = gapTo
	}

	// Walk backwards from the tip, collecting blocks until we reach
	// lastHeight, then emit them in ascending order.
	var chain []*nodeapi.Block
	headerID := info.TipHeaderID
	for {
		blk, err := src.StorageBlock(ctx, headerID)
		if err != nil {
			return lastHeight, "", err
		}
		chain = append(chain, blk)
		if blk.Height <= lastHeight+1 || blk.PrevHeaderID == "" {
			break
		}
		if len(chain) >= f.cfg.BackfillBound {
			break
		}
		headerID = blk.PrevHeaderID
	}

	for i := len(chain) - 1; i >= 0; i-- {
		blk := chain[i]
		f.stats.record(blk)
		if f.cfg.Metrics != nil {
			snap := f.stats.snapshot()
			f.cfg.Metrics.BlocksObserved.Set(float64(snap.BlocksObserved))
			f.cfg.Metrics.TotalTxs.Set(float64(snap.TotalTransactions))
			f.cfg.Metrics.TotalDABlobs.Set(float64(snap.TotalDABlobs))
		}
		f.broadcast(Record{Block: blk})
	}

	return info.Height, info.TipHeaderID, nil
}
