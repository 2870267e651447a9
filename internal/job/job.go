// Package job defines schedulable jobs: identity, recurrence, threshold and
// the opaque action invoked when the gate opens.
package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cronkeep/internal/gate"
	"cronkeep/internal/logsink"
)

var (
	ErrDuplicateJob = errors.New("duplicate job id")
	ErrInvalidJob   = errors.New("invalid job definition")
)

// Outcome is what an action reports back: whether it succeeded and any text
// it produced.
type Outcome struct {
	Succeeded bool
	Output    string
}

// Action is the external unit of work behind a job.
type Action interface {
	Run(ctx context.Context) Outcome
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) Outcome

func (f ActionFunc) Run(ctx context.Context) Outcome { return f(ctx) }

// MarkerPolicy controls when the runner persists the period marker.
type MarkerPolicy int

const (
	// MarkerAlways writes the marker after every attempt, failed or not.
	MarkerAlways MarkerPolicy = iota
	// MarkerOnSuccess leaves the marker untouched when the action fails, so
	// the next tick in the same period retries.
	MarkerOnSuccess
)

func (p MarkerPolicy) String() string {
	if p == MarkerOnSuccess {
		return "on_success"
	}
	return "always"
}

// ParseMarkerPolicy accepts "", "always" or "on_success".
func ParseMarkerPolicy(s string) (MarkerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return MarkerAlways, nil
	case "on_success", "on-success":
		return MarkerOnSuccess, nil
	default:
		return 0, fmt.Errorf("invalid marker_policy %q, expected always or on_success", s)
	}
}

// Definition is a job configured at startup.
type Definition struct {
	ID          string
	Label       string
	Granularity gate.Granularity
	// Earliest is meaningful for Daily jobs only.
	Earliest     *gate.TimeOfDay
	Action       Action
	Sink         logsink.Sink
	MarkerPolicy MarkerPolicy
}

// Spec returns the gate view of d.
func (d Definition) Spec() gate.Spec {
	return gate.Spec{ID: d.ID, Granularity: d.Granularity, Earliest: d.Earliest}
}

// DisplayLabel falls back to the id when no label is configured.
func (d Definition) DisplayLabel() string {
	if strings.TrimSpace(d.Label) != "" {
		return d.Label
	}
	return d.ID
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidJob)
	}
	if d.Action == nil {
		return fmt.Errorf("%w: %s: action required", ErrInvalidJob, d.ID)
	}
	return nil
}
