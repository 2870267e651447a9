// Package gate decides whether a job may run at a given instant.
//
// A job is eligible when its persisted marker does not name the current period
// (calendar day or day+hour) and, for daily jobs, the wall clock has reached
// the job's earliest time of day. Comparison is string equality on period keys,
// never elapsed-time arithmetic, so there is no catch-up for missed periods.
package gate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Granularity is the recurrence period of a job.
type Granularity int

const (
	Daily Granularity = iota
	Hourly
)

const (
	dailyLayout  = "2006-01-02"
	hourlyLayout = "2006-01-02 15"
)

func (g Granularity) String() string {
	switch g {
	case Daily:
		return "daily"
	case Hourly:
		return "hourly"
	default:
		return "unknown"
	}
}

// ParseGranularity accepts "daily" or "hourly" (case-insensitive).
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day":
		return Daily, nil
	case "hourly", "hour":
		return Hourly, nil
	default:
		return 0, fmt.Errorf("invalid granularity %q, expected daily or hourly", s)
	}
}

// PeriodKey identifies the period containing now: "YYYY-MM-DD" for daily,
// "YYYY-MM-DD HH" for hourly. now must already be in the scheduler location.
func PeriodKey(g Granularity, now time.Time) string {
	if g == Hourly {
		return now.Format(hourlyLayout)
	}
	return now.Format(dailyLayout)
}

// MarkerKey derives the persisted marker key for a job id.
func MarkerKey(jobID string) string { return "last_run:" + jobID }

// TimeOfDay is a wall-clock threshold with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (00:00 .. 23:59).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Reached reports whether now's (hour, minute) is at or past t. Seconds are
// ignored, so the boundary minute is inclusive.
func (t TimeOfDay) Reached(now time.Time) bool {
	h := now.Hour()
	if h != t.Hour {
		return h > t.Hour
	}
	return now.Minute() >= t.Minute
}
