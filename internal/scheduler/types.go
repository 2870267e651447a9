package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/gate"
	"cronkeep/internal/job"
	"cronkeep/internal/runner"
	logx "cronkeep/pkg/logx"
)

// TickSpec fires once per wall-clock minute.
const TickSpec = "* * * * *"

const defaultHistorySize = 200

// StaleAfter is how long the trigger may stay silent before it is
// considered stuck: two missed minutes plus slack.
const StaleAfter = 2*time.Minute + 30*time.Second

// stopGrace bounds the wait for a tick after Stop cancels it.
const stopGrace = 5 * time.Second

// Config controls the trigger. The per-tick enable flag comes from the
// SettingsProvider so it can be flipped without restarting cron.
type Config struct {
	Timezone    string // IANA TZ, e.g. "Asia/Jakarta"
	HistorySize int
}

// Settings is the live application configuration consulted on every tick.
type Settings struct {
	Enabled bool
	// Thresholds overrides a daily job's earliest time of day, keyed by job
	// id. A nil entry clears the threshold; a missing entry keeps the
	// registered one.
	Thresholds map[string]*gate.TimeOfDay
}

// SettingsProvider returns the current settings. A nil Settings or an error
// means the configuration is unavailable; the tick then runs nothing.
type SettingsProvider interface {
	Settings(ctx context.Context) (*Settings, error)
}

// SettingsFunc adapts a function to SettingsProvider.
type SettingsFunc func(ctx context.Context) (*Settings, error)

func (f SettingsFunc) Settings(ctx context.Context) (*Settings, error) { return f(ctx) }

// Static always returns s.
func Static(s Settings) SettingsProvider {
	return SettingsFunc(func(context.Context) (*Settings, error) { return &s, nil })
}

type Evaluator interface {
	Eligible(ctx context.Context, spec gate.Spec, now time.Time) (gate.Decision, error)
}

type Runner interface {
	Run(ctx context.Context, def job.Definition, now time.Time) runner.Result
}

// Recorder observes tick activity; metrics.Collector implements it.
type Recorder interface {
	TickObserved(skipped string)
	DecisionObserved(jobID, reason string)
	ResultObserved(res runner.Result)
	StoreErrorObserved(jobID string)
}

type nopRecorder struct{}

func (nopRecorder) TickObserved(string)             {}
func (nopRecorder) DecisionObserved(string, string) {}
func (nopRecorder) ResultObserved(runner.Result)    {}
func (nopRecorder) StoreErrorObserved(string)       {}

// Tick skip reasons.
const (
	SkipDisabled      = "disabled"
	SkipConfigMissing = "config_missing"
	SkipOverlap       = "overlap"
)

// Job outcomes recorded in history.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

type HistoryItem struct {
	RunID         string
	JobID         string
	Period        string
	At            time.Time
	Duration      time.Duration
	Outcome       string
	MarkerWritten bool
	Error         string
}

// TickReport summarizes one tick.
type TickReport struct {
	At        time.Time
	Skipped   string
	Evaluated int
	Ran       int
	Failed    int
	Results   []runner.Result
}

type JobInfo struct {
	ID          string
	Label       string
	Granularity string
	Earliest    string
	Marker      string
	Period      string
	Eligible    bool
	Reason      string
	Error       string
}

type Snapshot struct {
	Enabled  bool
	Timezone string
	Running  bool
	Next     time.Time
	Prev     time.Time
	LastTick time.Time
	Ticks    uint64
	Skipped  uint64
	Jobs     []JobInfo
	History  []HistoryItem
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	jobs     *job.Registry
	eval     Evaluator
	run      Runner
	settings SettingsProvider
	rec      atomic.Pointer[Recorder]

	parser  cron.Parser
	c       *cron.Cron
	entryID cron.EntryID
	// parent gates new ticks; runCtx is what ticks execute under. runCtx is
	// detached from parent and only canceled once Stop gives up waiting.
	parent    context.Context
	runCtx    context.Context
	runCancel context.CancelFunc
	// draining holds the Stop contexts of crons retired by a timezone change
	// whose last tick may still be running.
	draining []context.Context

	ticking  atomic.Bool
	ticks    atomic.Uint64
	skipped  atomic.Uint64
	lastTick atomic.Int64 // unix nano of the last trigger, including skipped ones

	hmu      sync.Mutex
	history  []HistoryItem
	histSize int

	// Store warning throttling: key is job id.
	wmu      sync.Mutex
	warnRate map[string]*rate.Limiter
}
