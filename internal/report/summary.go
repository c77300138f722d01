// Package report collects per-category counts during a sync run and renders
// the end-of-run summary.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Counter names. Forward runs use the first group, reverse runs the second.
const (
	NodesDuplicate     = "nodes_duplicate"
	NodesInvalid       = "nodes_invalid"
	NodesUntitled      = "nodes_untitled"
	NodesDisambiguated = "nodes_disambiguated"
	PropertiesCreated  = "properties_created"
	PropertiesExisting = "properties_existing"
	PredicatesSkipped  = "predicates_skipped"
	ClassesCreated     = "classes_created"
	ClassesExisting    = "classes_existing"
	ItemsCreated       = "items_created"
	ItemsExisting      = "items_existing"
	ItemsMalformed     = "items_malformed"
	ItemsFailed        = "items_failed"
	TriplesDropped     = "triples_dropped"
	StatementsWritten  = "statements_written"
	StatementsFailed   = "statements_failed"
	Writes             = "writes"
	WriteSplits        = "write_splits"
	Unresolved         = "unresolved"

	ItemsRead         = "items_read"
	ClassesRead       = "classes_read"
	NodesWritten      = "nodes_written"
	NodesUntyped      = "nodes_untyped"
	NodesUnknownLabel = "nodes_unknown_label"
	EdgesWritten      = "edges_written"
	EdgesDropped      = "edges_dropped"
	ReloadFailed      = "reload_failed"
)

// SampleSize bounds the identifiers kept per counter.
const SampleSize = 10

// Summary is the outcome of one run.
type Summary struct {
	RunID      string              `json:"run_id"`
	Command    string              `json:"command"`
	Simulate   bool                `json:"simulate,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Error      string              `json:"error,omitempty"`
	Counts     map[string]int      `json:"counts"`
	Samples    map[string][]string `json:"samples,omitempty"`
}

func New(command string) *Summary {
	return &Summary{
		RunID:     uuid.New().String(),
		Command:   command,
		StartedAt: time.Now(),
		Counts:    make(map[string]int),
		Samples:   make(map[string][]string),
	}
}

// Add increases a counter by n.
func (s *Summary) Add(name string, n int) {
	s.Counts[name] += n
}

func (s *Summary) Inc(name string) {
	s.Counts[name]++
}

// Count returns a counter's value.
func (s *Summary) Count(name string) int {
	return s.Counts[name]
}

// Record increments a counter and keeps id as a sample of it.
func (s *Summary) Record(name, id string) {
	s.Counts[name]++
	if len(s.Samples[name]) < SampleSize {
		s.Samples[name] = append(s.Samples[name], id)
	}
}

// Finish stamps the end time and the fatal error, if any.
func (s *Summary) Finish(err error) {
	s.FinishedAt = time.Now()
	if err != nil {
		s.Error = err.Error()
	}
}

// Duration is the run's wall time.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Names returns the counter names that were touched, sorted.
func (s *Summary) Names() []string {
	names := make([]string, 0, len(s.Counts))
	for name := range s.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
