package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cronkeep/internal/gate"
	"cronkeep/internal/job"
	"cronkeep/internal/runner"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks cfg and returns all problems joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if sc := cfg.Scheduler; sc != nil {
		if tz := strings.TrimSpace(sc.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				add("scheduler.timezone: %v", err)
			}
		}
		if g, err := runner.ParseGuard(sc.Guard); err != nil {
			add("scheduler.guard: %v", err)
		} else if g == runner.GuardCAS && !isSQLite(cfg.Storage.Driver) {
			// Only sqlite makes the claim visible to other scheduler processes.
			add("scheduler.guard %q requires storage.driver sqlite, got %q", sc.Guard, cfg.Storage.Driver)
		}
		if sc.HistorySize < 0 {
			add("scheduler.history_size must be >= 0")
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add("storage.path is required for driver %q", cfg.Storage.Driver)
		}
	case "":
		add("storage.driver is required")
	default:
		add("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		add("%v", err)
	}

	seen := map[string]bool{}
	for i, jc := range cfg.Jobs {
		p := fmt.Sprintf("jobs[%d]", i)
		id := strings.TrimSpace(jc.ID)
		if id == "" {
			add("%s.id is required", p)
		} else {
			p = fmt.Sprintf("jobs[%s]", id)
			if seen[id] {
				add("%s: duplicate id", p)
			}
			seen[id] = true
		}
		g, err := gate.ParseGranularity(jc.Granularity)
		if err != nil {
			add("%s.granularity: %v", p, err)
		}
		if strings.TrimSpace(jc.Earliest) != "" {
			if _, err := gate.ParseTimeOfDay(jc.Earliest); err != nil {
				add("%s.earliest: %v", p, err)
			} else if g == gate.Hourly {
				add("%s.earliest applies to daily jobs only", p)
			}
		}
		if _, err := job.ParseMarkerPolicy(jc.MarkerPolicy); err != nil {
			add("%s.marker_policy: %v", p, err)
		}
		for _, e := range validateAction(p+".action", jc.Action) {
			add("%v", e)
		}
	}

	if tg := cfg.Notify.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			add("notify.telegram.token is required when enabled")
		}
		if tg.ChatID == 0 {
			add("notify.telegram.chat_id is required when enabled")
		}
		if _, err := ParseDurationField("notify.telegram.poll_timeout", tg.PollTimeout); err != nil {
			add("%v", err)
		}
	}
	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		add("metrics.addr is required when enabled")
	}
	return errors.Join(errs...)
}

func validateAction(p string, a ActionConfig) []error {
	var errs []error
	if _, err := ParseDurationField(p+".timeout", a.Timeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(a.Type)) {
	case "command":
		if strings.TrimSpace(a.Command) == "" {
			errs = append(errs, fmt.Errorf("%s.command is required", p))
		}
	case "sql":
		if strings.TrimSpace(a.DSN) == "" || strings.TrimSpace(a.Query) == "" {
			errs = append(errs, fmt.Errorf("%s: dsn and query are required", p))
		}
	case "http":
		u, err := url.Parse(strings.TrimSpace(a.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s.url must be an absolute URL", p))
		}
	case "":
		errs = append(errs, fmt.Errorf("%s.type is required", p))
	default:
		errs = append(errs, fmt.Errorf("%s.type: unknown action %q", p, a.Type))
	}
	return errs
}

func isSQLite(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
