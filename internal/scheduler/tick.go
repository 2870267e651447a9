package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/gate"
	"cronkeep/internal/job"
	"cronkeep/internal/runner"
	logx "cronkeep/pkg/logx"
)

// storeWarnEvery bounds how often an unreachable store is reported per job.
const storeWarnEvery = 5 * time.Minute

// Tick evaluates every registered job once at now. now must already be in
// the scheduler timezone. A tick that starts while another is still running
// returns immediately with Skipped set to SkipOverlap.
func (s *Service) Tick(ctx context.Context, now time.Time) TickReport {
	rep := TickReport{At: now}
	rec := s.recorder()
	s.lastTick.Store(now.UnixNano())

	if !s.ticking.CompareAndSwap(false, true) {
		rep.Skipped = SkipOverlap
		s.skipped.Add(1)
		s.log.Warn("tick skipped; previous tick still running", logx.Time("at", now))
		s.publishTick(eventbus.TickSkipped, rep, 0)
		rec.TickObserved(SkipOverlap)
		return rep
	}
	defer s.ticking.Store(false)
	s.ticks.Add(1)

	st, err := s.loadSettings(ctx)
	switch {
	case err != nil || st == nil:
		rep.Skipped = SkipConfigMissing
		s.log.Warn("settings unavailable; treating scheduler as disabled", logx.Err(err))
	case !st.Enabled:
		rep.Skipped = SkipDisabled
		s.log.Debug("scheduler disabled; no jobs evaluated")
	}
	if rep.Skipped != "" {
		s.skipped.Add(1)
		s.publishTick(eventbus.TickSkipped, rep, 0)
		rec.TickObserved(rep.Skipped)
		return rep
	}

	defs := s.jobs.All()
	s.publishTick(eventbus.TickStarted, rep, len(defs))
	for _, def := range defs {
		if ctx.Err() != nil {
			s.log.Info("tick interrupted", logx.Err(ctx.Err()))
			break
		}
		rep.Evaluated++
		res, ran := s.tickJob(ctx, def, st, now, rec)
		if !ran {
			continue
		}
		rep.Results = append(rep.Results, res)
		if res.Ran {
			rep.Ran++
			if !res.Succeeded {
				rep.Failed++
			}
		}
	}
	s.publishTick(eventbus.TickFinished, rep, len(defs))
	rec.TickObserved("")
	return rep
}

func (s *Service) loadSettings(ctx context.Context) (st *Settings, err error) {
	if s.settings == nil {
		return nil, errors.New("no settings provider")
	}
	defer func() {
		if p := recover(); p != nil {
			st, err = nil, fmt.Errorf("settings provider panic: %v", p)
		}
	}()
	return s.settings.Settings(ctx)
}

// tickJob gates and runs one job. Any panic is contained here so the
// remaining jobs of the tick still get evaluated.
func (s *Service) tickJob(ctx context.Context, def job.Definition, st *Settings, now time.Time, rec Recorder) (res runner.Result, ran bool) {
	log := s.log.ForJob(def.ID)
	defer func() {
		if p := recover(); p != nil {
			log.Error("job evaluation panicked", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			res = runner.Result{JobID: def.ID, Started: now, Err: fmt.Errorf("panic: %v", p)}
			ran = true
			s.record(res)
			rec.ResultObserved(res)
		}
	}()

	spec := def.Spec()
	if tod, ok := st.Thresholds[def.ID]; ok {
		spec.Earliest = tod
	}

	d, err := s.eval.Eligible(ctx, spec, now)
	if err != nil {
		rec.StoreErrorObserved(def.ID)
		if s.allowStoreWarn(def.ID) {
			log.Warn("gate check failed; job skipped this tick", logx.Err(err))
		}
		return runner.Result{}, false
	}
	rec.DecisionObserved(def.ID, string(d.Reason))
	if !d.Eligible {
		return runner.Result{}, false
	}

	res = s.run.Run(ctx, def, now)
	if res.Err != nil && errors.Is(res.Err, gate.ErrStoreUnavailable) {
		rec.StoreErrorObserved(def.ID)
	}
	s.record(res)
	rec.ResultObserved(res)
	return res, true
}

func (s *Service) allowStoreWarn(jobID string) bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	lim, ok := s.warnRate[jobID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(storeWarnEvery), 1)
		s.warnRate[jobID] = lim
	}
	return lim.Allow()
}

func (s *Service) publishTick(typ string, rep TickReport, jobs int) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: eventbus.TickEvent{
		At:     rep.At,
		Jobs:   jobs,
		Ran:    rep.Ran,
		Failed: rep.Failed,
		Reason: rep.Skipped,
	}})
}

func (s *Service) record(res runner.Result) {
	item := HistoryItem{
		RunID:         res.RunID,
		JobID:         res.JobID,
		Period:        res.Period,
		At:            res.Started,
		Duration:      res.Duration,
		MarkerWritten: res.MarkerWritten,
	}
	switch {
	case res.Skipped != "":
		item.Outcome = OutcomeSkipped
	case !res.Ran:
		item.Outcome = OutcomeError
	case res.Succeeded:
		item.Outcome = OutcomeSucceeded
	default:
		item.Outcome = OutcomeFailed
	}
	if res.Err != nil {
		item.Error = res.Err.Error()
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	s.trimHistoryLocked()
}

// trimHistory sets the history bound and drops the oldest items beyond it.
func (s *Service) trimHistory(size int) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.histSize = size
	s.trimHistoryLocked()
}

func (s *Service) trimHistoryLocked() {
	size := s.histSize
	if size <= 0 {
		size = defaultHistorySize
	}
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
}
