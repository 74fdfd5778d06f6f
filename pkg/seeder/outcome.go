package seeder

import (
	"sync"
)

type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeErrored OutcomeKind = "errored"
)

// ReasonParentNotFound is the skip reason for chapters whose comic is
// missing.
const ReasonParentNotFound = "parent not found"

// Outcome is the single result reported for one input record.
type Outcome struct {
	Kind   OutcomeKind
	Label  string
	Reason string
	ID     int
}

func Created(label string, id int) Outcome {
	return Outcome{Kind: OutcomeCreated, Label: label, ID: id}
}

func Updated(label string, id int) Outcome {
	return Outcome{Kind: OutcomeUpdated, Label: label, ID: id}
}

func Skipped(label, reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Label: label, Reason: reason}
}

func Errored(label, reason string) Outcome {
	return Outcome{Kind: OutcomeErrored, Label: label, Reason: reason}
}

// Tracker receives exactly one outcome per record.
type Tracker interface {
	IncrementCreated(label string)
	IncrementUpdated(label string)
	IncrementSkipped(reason string)
	IncrementError(reason string)
	Complete()
}

// ProgressReporter is implemented by trackers that want batch progress.
type ProgressReporter interface {
	ReportProgress(processed, total int)
}

type labeledErrorTracker interface {
	IncrementErrorFor(label, reason string)
}

// Summary counts the outcomes of one Seed call.
type Summary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// reporter forwards outcomes to the tracker and tallies them. Safe for
// concurrent use.
type reporter struct {
	tracker Tracker

	mu      sync.Mutex
	summary Summary
}

func newReporter(tracker Tracker, total int) *reporter {
	if tracker == nil {
		tracker = nopTracker{}
	}
	return &reporter{tracker: tracker, summary: Summary{Total: total}}
}

func (r *reporter) report(o Outcome) {
	r.mu.Lock()
	switch o.Kind {
	case OutcomeCreated:
		r.summary.Created++
	case OutcomeUpdated:
		r.summary.Updated++
	case OutcomeSkipped:
		r.summary.Skipped++
	case OutcomeErrored:
		r.summary.Errored++
	}
	r.mu.Unlock()

	switch o.Kind {
	case OutcomeCreated:
		r.tracker.IncrementCreated(o.Label)
	case OutcomeUpdated:
		r.tracker.IncrementUpdated(o.Label)
	case OutcomeSkipped:
		r.tracker.IncrementSkipped(o.Reason)
	case OutcomeErrored:
		if lt, ok := r.tracker.(labeledErrorTracker); ok {
			lt.IncrementErrorFor(o.Label, o.Reason)
		} else {
			r.tracker.IncrementError(o.Reason)
		}
	}
}

func (r *reporter) progress(processed, total int) {
	if pr, ok := r.tracker.(ProgressReporter); ok {
		pr.ReportProgress(processed, total)
	}
}

func (r *reporter) result() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	return &s
}

type nopTracker struct{}

func (nopTracker) IncrementCreated(string) {}
func (nopTracker) IncrementUpdated(string) {}
func (nopTracker) IncrementSkipped(string) {}
func (nopTracker) IncrementError(string)   {}
func (nopTracker) Complete()               {}
