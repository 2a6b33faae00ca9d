package runner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"chainharness/chainerr"
	"chainharness/chainlog"
	"chainharness/scenario"
)

// DefaultDrainWindow bounds how long a workload's Start may take to return
// after cancellation before it is recorded as a drain failure (spec.md
// §4.9: "default 10s").
const DefaultDrainWindow = 10 * time.Second

// MinPostChaosCooldown and the 5x-block-interval multiplier resolve
// spec.md §9's open question on post-chaos cooldown magnitude: the larger
// of a 30s floor or 5x the expected block interval.
const (
	MinPostChaosCooldown    = 30 * time.Second
	PostChaosIntervalFactor = 5
)

// Options configures a single Run invocation. Every field has a workable
// zero value.
type Options struct {
	DrainWindow time.Duration
	// HasChaos marks whether a chaos workload is present, raising the
	// post-workload cooldown per spec.md §4.5.c.
	HasChaos bool
	Logger   *logrus.Logger
}

// Result is the outcome of one scenario run (spec.md §4.9's evaluating →
// done transition).
type Result struct {
	Success  bool
	Failures *chainerr.FailureList
}

// Run drives a built scenario through deploy → readiness → capture →
// running → draining → evaluating → done, firing dep's CleanupGuard exactly
// once regardless of outcome (spec.md §4.9).
func Run[C scenario.Capability](ctx context.Context, sc *scenario.Scenario[C], dep Deployer[C], opts Options) (*Result, error) {
	log := chainlog.OrDefault(opts.Logger)
	drainWindow := opts.DrainWindow
	if drainWindow <= 0 {
		drainWindow = DefaultDrainWindow
	}

	rc, guard, err := dep.Deploy(ctx, sc)
	if err != nil {
		return nil, chainerr.Provisioning("deploy failed", err)
	}
	defer guard.Fire()

	failures := &chainerr.FailureList{}

	// deploy → capture: start_capture runs in insertion order; any failure
	// short-circuits straight to cleanup (spec.md §4.9).
	for _, exp := range sc.Expectations {
		if err := exp.StartCapture(ctx, rc); err != nil {
			failures.Add("capture:"+exp.Name(), err)
			return &Result{Success: false, Failures: failures}, nil
		}
	}

	// capture → running: every workload's Start runs as a concurrent task,
	// all under the same cancel-on-duration context. A workload's own error
	// must never cancel its siblings (spec.md §7: "Workload fatal ...
	// recorded; triggers run failure; other workloads continue until
	// drain"), so this deliberately uses a plain errgroup.Group rather than
	// errgroup.WithContext: each goroutine always returns nil to g and
	// instead stashes its real error in workloadErrs, which keeps g.Wait()
	// from cancelling siblings on the first error and lets every workload's
	// failure be collected rather than just the first (spec.md §7: "never
	// a single-error early-return after workloads have started").
	runCtx, cancelRun := context.WithCancel(ctx)
	workloadErrs := make([]error, len(sc.Workloads))
	var g errgroup.Group
	for i, w := range sc.Workloads {
		g.Go(func() error {
			if err := w.Start(runCtx, rc); err != nil {
				workloadErrs[i] = chainerr.Wrap(err, "workload "+w.Name())
			}
			return nil
		})
	}

	select {
	case <-time.After(sc.RunMetrics.RunDuration):
	case <-ctx.Done():
	}

	// running → draining: cancel workload tasks, bounded by drainWindow.
	cancelRun()
	drained := make(chan struct{})
	go func() {
		g.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		// Every workload's error is collected independently — never a
		// single early-return after the first one (spec.md §7).
		for i, w := range sc.Workloads {
			if workloadErrs[i] != nil {
				failures.Add("workload:"+w.Name(), workloadErrs[i])
			}
		}
	case <-time.After(drainWindow):
		failures.Add("drain", chainerr.DrainOverrun("one or more workloads did not stop within the drain window"))
	}

	// draining → evaluating: the post-workload cooldown.
	cooldown := postChaosCooldown(opts.HasChaos, sc.RunMetrics.ExpectedBlockInterval)
	if cooldown > 0 {
		log.WithField("cooldown", cooldown).Debug("runner: sleeping post-workload cooldown")
		select {
		case <-time.After(cooldown):
		case <-ctx.Done():
		}
	}

	select {
	case feedErr := <-rc.Feed.Errors():
		failures.Add("block_feed", feedErr)
	default:
	}

	// evaluating → done: every expectation evaluates sequentially,
	// never short-circuited (spec.md §4.9, §7).
	for _, exp := range sc.Expectations {
		if err := exp.Evaluate(ctx, rc); err != nil {
			failures.Add("evaluate:"+exp.Name(), err)
		}
	}

	return &Result{Success: failures.Empty(), Failures: failures}, nil
}

// postChaosCooldown resolves spec.md §9's open question: max(30s, 5x
// expected_block_interval) when a chaos workload is present, zero otherwise.
func postChaosCooldown(hasChaos bool, expectedBlockInterval time.Duration) time.Duration {
	if !hasChaos {
		return 0
	}
	byInterval := PostChaosIntervalFactor * expectedBlockInterval
	if byInterval > MinPostChaosCooldown {
		return byInterval
	}
	return MinPostChaosCooldown
}
