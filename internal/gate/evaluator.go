package gate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable wraps any marker store read failure.
var ErrStoreUnavailable = errors.New("marker store unavailable")

// MarkerReader is the read half of the marker store.
type MarkerReader interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Reason explains a gate decision.
type Reason string

const (
	ReasonEligible        Reason = "eligible"
	ReasonAlreadyRan      Reason = "already_ran"
	ReasonBeforeThreshold Reason = "before_threshold"
)

// Spec is the part of a job definition the gate needs.
type Spec struct {
	ID          string
	Granularity Granularity
	// Earliest applies to Daily jobs only; nil means any time after midnight.
	Earliest *TimeOfDay
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Eligible bool
	Reason   Reason
	Period   string
	// LastRun is the marker value read from the store ("" when absent).
	LastRun string
}

// Evaluator checks job eligibility against persisted markers.
type Evaluator struct {
	store MarkerReader
}

func NewEvaluator(store MarkerReader) *Evaluator {
	return &Evaluator{store: store}
}

// Eligible evaluates spec at now.
func (e *Evaluator) Eligible(ctx context.Context, spec Spec, now time.Time) (Decision, error) {
	period := PeriodKey(spec.Granularity, now)
	d := Decision{Period: period}

	last, ok, err := e.store.Get(ctx, MarkerKey(spec.ID))
	if err != nil {
		return d, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, MarkerKey(spec.ID), err)
	}
	if ok {
		d.LastRun = last
	}
	if ok && last == period {
		d.Reason = ReasonAlreadyRan
		return d, nil
	}
	if spec.Granularity == Daily && spec.Earliest != nil && !spec.Earliest.Reached(now) {
		d.Reason = ReasonBeforeThreshold
		return d, nil
	}
	d.Eligible = true
	d.Reason = ReasonEligible
	return d, nil
}
