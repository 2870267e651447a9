// Package runner executes one eligible job: invoke the action, append the
// audit entry, persist the period marker, publish status events.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/gate"
	"cronkeep/internal/job"
	"cronkeep/internal/logsink"
	logx "cronkeep/pkg/logx"
)

// MarkerStore is the subset of storage.MarkerStore the runner writes through.
type MarkerStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetForever(ctx context.Context, key, value string) error
	CompareAndSwap(ctx context.Context, key, prev, next string) (bool, error)
}

// Guard selects how concurrent schedulers are kept from double-running a job.
type Guard int

const (
	// GuardNone writes the marker after the attempt with no cross-process
	// exclusion. Two instances ticking together may both run a job.
	GuardNone Guard = iota
	// GuardCAS claims the period with compare-and-swap before running; only
	// the winner runs.
	GuardCAS
)

func (g Guard) String() string {
	if g == GuardCAS {
		return "cas"
	}
	return "none"
}

// ParseGuard accepts "", "none" or "cas".
func ParseGuard(s string) (Guard, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return GuardNone, nil
	case "cas":
		return GuardCAS, nil
	default:
		return 0, fmt.Errorf("invalid guard %q, expected none or cas", s)
	}
}

// Skip reasons reported in Result.Skipped.
const (
	SkipClaimedElsewhere = "claimed_elsewhere"
)

// Result describes one attempt.
type Result struct {
	RunID     string
	JobID     string
	Period    string
	Started   time.Time
	Duration  time.Duration
	Ran       bool
	Succeeded bool
	Output    string
	// MarkerWritten is true when the period marker now names Period.
	MarkerWritten bool
	// Skipped is non-empty when the runner declined to invoke the action.
	Skipped string
	// Err carries marker store failures (wrapping gate.ErrStoreUnavailable).
	// Action failures are reported through Succeeded/Output instead.
	Err error
}

type Runner struct {
	store MarkerStore
	bus   eventbus.Bus
	log   logx.Logger
	guard Guard
}

func New(store MarkerStore, bus eventbus.Bus, log logx.Logger, guard Guard) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Runner{store: store, bus: bus, log: log, guard: guard}
}

func (r *Runner) Guard() Guard { return r.guard }

// Run attempts def for the period containing now. It never panics.
func (r *Runner) Run(ctx context.Context, def job.Definition, now time.Time) Result {
	key := gate.MarkerKey(def.ID)
	res := Result{
		RunID:   uuid.NewString(),
		JobID:   def.ID,
		Period:  gate.PeriodKey(def.Granularity, now),
		Started: time.Now(),
	}
	log := r.log.ForJob(def.ID).With(logx.Period(res.Period), logx.RunID(res.RunID))

	var prev string
	if r.guard == GuardCAS {
		claimed, p, err := r.claim(ctx, key, res.Period)
		if err != nil {
			res.Err = err
			log.Warn("marker claim failed", logx.Err(err))
			r.publish(eventbus.JobMarkerFailed, def, res, "claim")
			return res
		}
		if !claimed {
			res.Skipped = SkipClaimedElsewhere
			log.Debug("job skipped; period claimed by another scheduler")
			r.publish(eventbus.JobSkipped, def, res, SkipClaimedElsewhere)
			return res
		}
		prev = p
		res.MarkerWritten = true
	}

	log.Info("job started")
	r.publish(eventbus.JobStarted, def, res, "")

	out := r.invoke(ctx, def, log)
	res.Ran = true
	res.Succeeded = out.Succeeded
	res.Output = out.Output

	sink := def.Sink
	if sink == nil {
		sink = logsink.Discard{}
	}
	if err := sink.Append(ctx, logsink.Entry{At: now, Label: def.DisplayLabel(), Output: out.Output}); err != nil {
		log.Warn("audit log append failed", logx.Err(err))
	}

	switch r.guard {
	case GuardCAS:
		if !out.Succeeded && def.MarkerPolicy == job.MarkerOnSuccess {
			// Release the claim so the next tick in this period retries.
			if _, err := r.store.CompareAndSwap(ctx, key, res.Period, prev); err != nil {
				res.Err = fmt.Errorf("%w: release %s: %v", gate.ErrStoreUnavailable, key, err)
			} else {
				res.MarkerWritten = false
			}
		}
	default:
		if out.Succeeded || def.MarkerPolicy == job.MarkerAlways {
			if err := r.store.SetForever(ctx, key, res.Period); err != nil {
				res.Err = fmt.Errorf("%w: set %s: %v", gate.ErrStoreUnavailable, key, err)
			} else {
				res.MarkerWritten = true
			}
		}
	}
	res.Duration = time.Since(res.Started)

	if res.Err != nil {
		log.Error("marker write failed", logx.Err(res.Err))
		r.publish(eventbus.JobMarkerFailed, def, res, "write")
	}
	if out.Succeeded {
		log.Info("job completed", logx.Duration("dur", res.Duration), logx.Bool("marker", res.MarkerWritten))
		r.publish(eventbus.JobCompleted, def, res, "")
	} else {
		log.Warn("job failed", logx.Duration("dur", res.Duration), logx.Bool("marker", res.MarkerWritten), logx.String("output", truncate(out.Output, 512)))
		r.publish(eventbus.JobFailed, def, res, "")
	}
	return res
}

// claim moves the marker from its current value to period. It returns the
// previous value so a failed run can release the claim.
func (r *Runner) claim(ctx context.Context, key, period string) (bool, string, error) {
	prev, _, err := r.store.Get(ctx, key)
	if err != nil {
		return false, "", fmt.Errorf("%w: get %s: %v", gate.ErrStoreUnavailable, key, err)
	}
	if prev == period {
		return false, prev, nil
	}
	ok, err := r.store.CompareAndSwap(ctx, key, prev, period)
	if err != nil {
		return false, "", fmt.Errorf("%w: claim %s: %v", gate.ErrStoreUnavailable, key, err)
	}
	return ok, prev, nil
}

func (r *Runner) invoke(ctx context.Context, def job.Definition, log logx.Logger) (out job.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("job action panicked", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			out = job.Outcome{Succeeded: false, Output: appendOutput(out.Output, fmt.Sprintf("panic: %v", p))}
		}
	}()
	return def.Action.Run(ctx)
}

func (r *Runner) publish(typ string, def job.Definition, res Result, reason string) {
	ev := eventbus.JobEvent{
		RunID:    res.RunID,
		JobID:    def.ID,
		Label:    def.DisplayLabel(),
		Period:   res.Period,
		Started:  res.Started,
		Duration: res.Duration,
		Reason:   reason,
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	} else if typ == eventbus.JobFailed {
		ev.Error = truncate(res.Output, 512)
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func appendOutput(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
