package notify

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"cronkeep/internal/eventbus"
	"cronkeep/internal/scheduler"
	logx "cronkeep/pkg/logx"
)

// Systemd reports readiness, status and watchdog pings over sd_notify.
// Outside a systemd unit every call is a no-op.
type Systemd struct {
	log      logx.Logger
	notify   func(state string) (bool, error)
	watchdog func() (time.Duration, error)
	// stale is how long without a tick.* event before watchdog pings stop.
	stale time.Duration
}

func NewSystemd(log logx.Logger) *Systemd {
	return &Systemd{
		log: log,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
		stale: scheduler.StaleAfter,
	}
}

func (s *Systemd) send(state string) {
	if _, err := s.notify(state); err != nil {
		s.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}

func (s *Systemd) Ready()             { s.send(daemon.SdNotifyReady) }
func (s *Systemd) Stopping()          { s.send(daemon.SdNotifyStopping) }
func (s *Systemd) Reloading()         { s.send(daemon.SdNotifyReloading) }
func (s *Systemd) Status(line string) { s.send("STATUS=" + line) }

// Run mirrors bus events into STATUS= lines and, when the unit has
// WatchdogSec set, pings the watchdog at half the interval for as long as
// tick events keep arriving. A wedged cron loop stops the pings and lets
// systemd restart the unit.
func (s *Systemd) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	var watchdog <-chan time.Time
	if s.watchdog != nil {
		if interval, err := s.watchdog(); err == nil && interval > 0 {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			watchdog = t.C
		}
	}
	lastBeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watchdog:
			if s.stale > 0 && time.Since(lastBeat) > s.stale {
				s.log.Warn("no tick progress; withholding watchdog ping",
					logx.Time("last_tick_event", lastBeat))
				continue
			}
			s.send(daemon.SdNotifyWatchdog)
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if strings.HasPrefix(e.Type, "tick.") {
				lastBeat = time.Now()
			}
			if line, ok := StatusLine(e); ok {
				s.Status(line)
			}
		}
	}
}
