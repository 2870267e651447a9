package config

import (
	"reflect"

	logx "cronkeep/pkg/logx"
)

// SummarizeChange lists changed top-level sections and safe log fields
// (never tokens). restart reports changes that only apply after a restart.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs, logx.String("logging.level", newCfg.Logging.Level))
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		if sc := newCfg.Scheduler; sc != nil {
			attrs = append(attrs, logx.Bool("scheduler.enabled", sc.Enabled), logx.String("scheduler.timezone", sc.Timezone))
			if o := oldCfg.Scheduler; o == nil || o.Guard != sc.Guard {
				restart = true
			}
		} else {
			attrs = append(attrs, logx.Bool("scheduler.enabled", false))
		}
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		restart = true
	}
	if !jobsEqualIgnoringEarliest(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
		attrs = append(attrs, logx.Int("jobs", len(newCfg.Jobs)))
		restart = true
	} else if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs.earliest")
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		tg := newCfg.Notify.Telegram
		attrs = append(attrs, logx.Bool("notify.telegram", tg != nil && tg.Enabled))
		restart = true
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		restart = true
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		restart = true
	}
	return changed, attrs, restart
}

func jobsEqualIgnoringEarliest(a, b []JobConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		x.Earliest, y.Earliest = "", ""
		if !reflect.DeepEqual(x, y) {
			return false
		}
	}
	return true
}
