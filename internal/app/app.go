// Package app wires configuration, storage, jobs, the scheduler and the
// outer surfaces (notifications, status server) into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cronkeep/internal/config"
	"cronkeep/internal/eventbus"
	"cronkeep/internal/gate"
	"cronkeep/internal/job"
	"cronkeep/internal/logsink"
	"cronkeep/internal/metrics"
	"cronkeep/internal/notify"
	"cronkeep/internal/runner"
	"cronkeep/internal/runtime/supervisor"
	"cronkeep/internal/scheduler"
	"cronkeep/internal/storage"
	logx "cronkeep/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.MarkerStore
	sinks   *logsink.Pool
	closers []io.Closer

	jobs    *job.Registry
	sched   *scheduler.Service
	metrics *metrics.Collector
	sd      *notify.Systemd
}

// New loads cfgPath and builds every component. Nothing is started and no
// network connection is made; call Start for daemon mode or use Tick,
// Snapshot and Reset directly.
func New(cfgPath string) (_ *App, err error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	var undo []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			_ = undo[i]()
		}
	}()
	undo = append(undo, logSvc.Close)
	cfgm.SetLogger(log.Named("config"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("open marker store: %w", err)
	}
	undo = append(undo, store.Close)

	sinks := logsink.NewPool()
	undo = append(undo, sinks.Close)
	jobs, closers, err := buildJobs(cfg, sinks)
	if err != nil {
		return nil, err
	}
	for _, c := range closers {
		undo = append(undo, c.Close)
	}

	guard := runner.GuardNone
	if cfg.Scheduler != nil {
		if guard, err = runner.ParseGuard(cfg.Scheduler.Guard); err != nil {
			return nil, err
		}
	}

	bus := eventbus.New()
	run := runner.New(store, bus, log.Named("runner"), guard)
	sched := scheduler.New(mapSchedulerConfig(cfg), jobs, gate.NewEvaluator(store), run, cfgm,
		log.Named("scheduler"), bus)
	collector := metrics.NewCollector()
	sched.SetRecorder(collector)

	log.Named("app").Info("configured",
		logx.String("config", cfgPath),
		logx.String("storage", sc.Driver),
		logx.Int("jobs", jobs.Len()),
		logx.String("guard", guard.String()),
		logx.Bool("enabled", cfg.Scheduler != nil && cfg.Scheduler.Enabled),
	)

	return &App{
		cfgm:    cfgm,
		log:     log.Named("app"),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sinks:   sinks,
		closers: closers,
		jobs:    jobs,
		sched:   sched,
		metrics: collector,
		sd:      notify.NewSystemd(log.Named("systemd")),
	}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// ReopenLogs reopens the process log file and every job audit file after an
// external rotation.
func (a *App) ReopenLogs() {
	a.logs.Reopen()
	if err := a.sinks.Reopen(); err != nil {
		a.log.Warn("audit sinks reopen failed", logx.Err(err))
	}
	a.log.Info("log sinks reopened")
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the daemon: config watcher, notifiers, status server and the
// minute trigger.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.Named("supervisor")), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	if tg := cfg.Notify.Telegram; tg != nil && tg.Enabled {
		poll, err := config.ParseDurationField("notify.telegram.poll_timeout", tg.PollTimeout)
		if err != nil {
			return err
		}
		sender, err := notify.NewTelegramSender(notify.TelegramConfig{
			Token:       tg.Token,
			ChatID:      tg.ChatID,
			ThreadID:    tg.ThreadID,
			PollTimeout: poll,
		})
		if err != nil {
			// Notifications are optional; the scheduler still runs.
			a.log.Warn("telegram notifications disabled", logx.Err(err))
		} else {
			fw := notify.NewForwarder(a.bus, sender, tg.Events, tg.RatePerSec, a.log.Named("telegram"))
			a.sup.GoRestart("notify.telegram", fw.Run, time.Second, time.Minute)
		}
	}
	if cfg.Systemd.Notify {
		a.sup.Go("notify.systemd", func(c context.Context) error { return a.sd.Run(c, a.bus) })
	}
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr, Pprof: cfg.Metrics.Pprof}, a.metrics, a.sched, a.sup,
			a.log.Named("metrics"))
		a.sup.Go("metrics.server", srv.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, cfg)
		return nil
	})

	a.sched.Start(a.sup.Context())
	if cfg.Systemd.Notify {
		a.sd.Ready()
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config, last *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(last, next *config.Config) {
	if last.Systemd.Notify {
		a.sd.Reloading()
		defer a.sd.Ready()
	}
	changed, attrs, restart := config.SummarizeChange(last, next)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart {
		a.log.Warn("some config changes require a restart to take effect")
	}

	a.logs.Apply(mapLoggingConfig(next))
	a.sched.Apply(mapSchedulerConfig(next))
}

// Stop stops the trigger, waits for the current tick and shuts down the
// supervised goroutines.
func (a *App) Stop(ctx context.Context) error {
	if cfg := a.cfgm.Get(); cfg != nil && cfg.Systemd.Notify {
		a.sd.Stopping()
	}
	a.sched.Stop(ctx)
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	return errors.Join(err, a.Close())
}

// Close releases the store, log sinks and sql handles.
func (a *App) Close() error {
	errs := []error{a.sinks.Close()}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	errs = append(errs, a.store.Close(), a.logs.Close())
	return errors.Join(errs...)
}

// Tick runs one evaluation pass at now (in the scheduler timezone).
func (a *App) Tick(ctx context.Context, now time.Time) scheduler.TickReport {
	return a.sched.Tick(ctx, now.In(a.sched.Location()))
}

func (a *App) Snapshot(ctx context.Context) scheduler.Snapshot {
	return a.sched.Snapshot(ctx)
}

// Markers lists every stored marker.
func (a *App) Markers(ctx context.Context) ([]storage.Marker, error) {
	return a.store.List(ctx)
}

// ErrUnknownJob is returned by Reset for ids not in the registry.
var ErrUnknownJob = errors.New("unknown job")

// Reset deletes a job's marker so it becomes eligible again this period.
func (a *App) Reset(ctx context.Context, id string) error {
	if _, ok := a.jobs.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if err := a.store.Delete(ctx, gate.MarkerKey(id)); err != nil {
		return err
	}
	a.log.Info("marker reset", logx.Job(id))
	return nil
}
