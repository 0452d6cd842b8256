package migration

import (
	"fmt"
	"time"
)

// Outcome classifies what happened to one imported record
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeErrored  Outcome = "errored"
)

// maxRecordedErrors caps the per-kind error messages kept for the summary
const maxRecordedErrors = 20

// KindStats aggregates the outcomes of one kind
type KindStats struct {
	Kind     string `json:"kind" yaml:"kind"`
	Total    int    `json:"total" yaml:"total"`
	Planned  int    `json:"planned,omitempty" yaml:"planned,omitempty"`
	Imported int    `json:"imported" yaml:"imported"`
	Updated  int    `json:"updated" yaml:"updated"`
	Skipped  int    `json:"skipped" yaml:"skipped"`
	Errored  int    `json:"errored" yaml:"errored"`
	DryRun   bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Aborted  bool   `json:"aborted,omitempty" yaml:"aborted,omitempty"`
	// Error is the reason the kind was aborted
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// Errors holds the first per-record failures, "key: reason"
	Errors   []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Duration time.Duration `json:"-" yaml:"-"`
}

// Processed is the number of records that reached an outcome
func (k *KindStats) Processed() int {
	return k.Imported + k.Updated + k.Skipped + k.Errored
}

// Succeeded counts records written by this run
func (k *KindStats) Succeeded() int {
	return k.Imported + k.Updated
}

func (k *KindStats) add(outcome Outcome, delta int) {
	switch outcome {
	case OutcomeImported:
		k.Imported += delta
	case OutcomeUpdated:
		k.Updated += delta
	case OutcomeSkipped:
		k.Skipped += delta
	case OutcomeErrored:
		k.Errored += delta
	}
}

func (k *KindStats) noteError(key string, err error) {
	if len(k.Errors) < maxRecordedErrors {
		k.Errors = append(k.Errors, fmt.Sprintf("%s: %v", key, err))
	}
}

// Totals sums the counters of every reported kind
type Totals struct {
	Kinds    int `json:"kinds" yaml:"kinds"`
	Total    int `json:"total" yaml:"total"`
	Planned  int `json:"planned,omitempty" yaml:"planned,omitempty"`
	Imported int `json:"imported" yaml:"imported"`
	Updated  int `json:"updated" yaml:"updated"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Errored  int `json:"errored" yaml:"errored"`
	Aborted  int `json:"aborted" yaml:"aborted"`
}

// Summary is the per-kind report of one import run. Kinds keep processing order.
type Summary struct {
	Kinds     []*KindStats  `json:"kinds" yaml:"kinds"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"-" yaml:"-"`
	DryRun    bool          `json:"dry_run" yaml:"dry_run"`
	Warnings  []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	index map[string]*KindStats
}

func NewSummary(dryRun bool) *Summary {
	return &Summary{
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
		index:     make(map[string]*KindStats),
	}
}

// Kind returns the stats of kind, adding an entry on first use
func (s *Summary) Kind(kind string) *KindStats {
	if s.index == nil {
		s.index = make(map[string]*KindStats)
	}
	if k, ok := s.index[kind]; ok {
		return k
	}
	k := &KindStats{Kind: kind, DryRun: s.DryRun}
	s.index[kind] = k
	s.Kinds = append(s.Kinds, k)
	return k
}

// Stats returns the stats of kind without adding it
func (s *Summary) Stats(kind string) (*KindStats, bool) {
	k, ok := s.index[kind]
	return k, ok
}

// Record counts one outcome for kind
func (s *Summary) Record(kind string, outcome Outcome) {
	s.Kind(kind).add(outcome, 1)
}

// RecordError counts an errored record and keeps its reason
func (s *Summary) RecordError(kind, key string, err error) {
	k := s.Kind(kind)
	k.add(OutcomeErrored, 1)
	k.noteError(key, err)
}

// Demote moves a record already counted as from to errored
func (s *Summary) Demote(kind string, from Outcome, key string, err error) {
	k := s.Kind(kind)
	k.add(from, -1)
	k.add(OutcomeErrored, 1)
	k.noteError(key, err)
}

// Abort marks kind as abandoned because of err
func (s *Summary) Abort(kind string, err error) {
	k := s.Kind(kind)
	k.Aborted = true
	k.Error = err.Error()
}

func (s *Summary) Warn(format string, args ...interface{}) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

func (s *Summary) Totals() Totals {
	var t Totals
	for _, k := range s.Kinds {
		t.Kinds++
		t.Total += k.Total
		t.Planned += k.Planned
		t.Imported += k.Imported
		t.Updated += k.Updated
		t.Skipped += k.Skipped
		t.Errored += k.Errored
		if k.Aborted {
			t.Aborted++
		}
	}
	return t
}

// HasErrors reports whether any record errored or any kind was aborted
func (s *Summary) HasErrors() bool {
	t := s.Totals()
	return t.Errored > 0 || t.Aborted > 0
}

// Finish stamps the run duration
func (s *Summary) Finish() {
	s.Duration = time.Since(s.StartedAt)
}
