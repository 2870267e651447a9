package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/job"
	logx "cronkeep/pkg/logx"
)

func New(cfg Config, jobs *job.Registry, eval Evaluator, run Runner, settings SettingsProvider, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if jobs == nil {
		jobs = job.NewRegistry()
	}
	s := &Service{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		jobs:     jobs,
		eval:     eval,
		run:      run,
		settings: settings,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		histSize: cfg.HistorySize,
		warnRate: map[string]*rate.Limiter{},
	}
	s.SetRecorder(nil)
	return s
}

// SetRecorder installs a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.rec.Store(&r)
}

func (s *Service) recorder() Recorder {
	if r := s.rec.Load(); r != nil {
		return *r
	}
	return nopRecorder{}
}

// Location returns the scheduler timezone.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

// Apply swaps the config. A timezone change restarts the cron trigger; a
// tick already running finishes on the retired trigger.
func (s *Service) Apply(cfg Config) {
	s.trimHistory(cfg.HistorySize)

	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil {
		s.loc = nil
		s.mu.Unlock()
		return
	}
	var retired *cron.Cron
	if oldTZ != newTZ {
		retired = s.swapCronLocked()
	}
	s.mu.Unlock()

	if retired != nil {
		done := retired.Stop()
		s.mu.Lock()
		s.draining = append(pruneDone(s.draining), done)
		s.mu.Unlock()
	}
}

// Start begins firing a tick every minute. Canceling ctx stops new ticks
// from starting but never interrupts a running job; use Stop for that.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.parent = ctx
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if err := s.addTickLocked(); err != nil {
		s.log.Error("tick register failed", logx.String("spec", TickSpec), logx.Err(err))
	}
	s.c.Start()
	args := []logx.Field{logx.String("tz", loc.String()), logx.Int("jobs", s.jobs.Len())}
	if next := s.previewNextRunsLocked(3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Info("service started", args...)
}

// Stop stops triggering and waits for the running tick. When ctx expires
// first, the tick's context is canceled and Stop waits a short grace period
// for it to unwind.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	waits := pruneDone(s.draining)
	s.c = nil
	s.runCancel = nil
	s.draining = nil
	s.entryID = 0
	s.mu.Unlock()

	if c != nil {
		waits = append(waits, c.Stop())
	}
	if !waitAll(ctx, waits) {
		s.log.Warn("stop timed out; canceling running tick", logx.Duration("waited", time.Since(start)))
		if cancel != nil {
			cancel()
		}
		grace, gcancel := context.WithTimeout(context.Background(), stopGrace)
		waitAll(grace, waits)
		gcancel()
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// waitAll reports whether every context in waits finished before ctx.
func waitAll(ctx context.Context, waits []context.Context) bool {
	for _, w := range waits {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func pruneDone(in []context.Context) []context.Context {
	out := in[:0]
	for _, c := range in {
		if c.Err() == nil {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) addTickLocked() error {
	loc, parent, runCtx := s.loc, s.parent, s.runCtx
	run := cron.FuncJob(func() {
		if parent.Err() != nil || runCtx.Err() != nil {
			return
		}
		s.Tick(runCtx, time.Now().In(loc))
	})
	id, err := s.c.AddJob(TickSpec, run)
	if err == nil {
		s.entryID = id
	}
	return err
}

// swapCronLocked installs a fresh cron for the current timezone and returns
// the previous one, still running. The caller stops it outside s.mu.
func (s *Service) swapCronLocked() *cron.Cron {
	old := s.c
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if err := s.addTickLocked(); err != nil {
		s.log.Error("tick register failed", logx.String("spec", TickSpec), logx.Err(err))
	}
	s.c.Start()
	s.log.Info("service restarted", logx.String("tz", loc.String()))
	return old
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewNextRunsLocked returns upcoming trigger times for debug logs.
func (s *Service) previewNextRunsLocked(n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(TickSpec)
	if err != nil {
		return ""
	}
	t := time.Now().In(s.loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
