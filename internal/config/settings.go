package config

import (
	"context"
	"errors"
	"strings"

	"cronkeep/internal/gate"
	"cronkeep/internal/scheduler"
)

// ErrNoConfig is returned by Settings before a config has been committed.
var ErrNoConfig = errors.New("config not loaded")

// Settings implements scheduler.SettingsProvider over the committed config.
// A missing scheduler section yields nil settings (disabled). Earliest
// thresholds are read on every call so edits apply without a restart.
func (m *Manager) Settings(ctx context.Context) (*scheduler.Settings, error) {
	cfg := m.Get()
	if cfg == nil {
		return nil, ErrNoConfig
	}
	return SchedulerSettings(cfg), nil
}

// SchedulerSettings projects cfg onto the per-tick settings.
func SchedulerSettings(cfg *Config) *scheduler.Settings {
	if cfg == nil || cfg.Scheduler == nil {
		return nil
	}
	out := &scheduler.Settings{Enabled: cfg.Scheduler.Enabled, Thresholds: map[string]*gate.TimeOfDay{}}
	for _, jc := range cfg.Jobs {
		id := strings.TrimSpace(jc.ID)
		if strings.TrimSpace(jc.Earliest) == "" {
			out.Thresholds[id] = nil
			continue
		}
		tod, err := gate.ParseTimeOfDay(jc.Earliest)
		if err != nil {
			continue
		}
		out.Thresholds[id] = &tod
	}
	return out
}
