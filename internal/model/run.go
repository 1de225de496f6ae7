package model

import "time"

// RunStatus represents the state of an ingestion run.
type RunStatus string

const (
	RunStatusIdle       RunStatus = "idle"
	RunStatusRunning    RunStatus = "running"
	RunStatusPersisting RunStatus = "persisting"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// TermStatus represents the state of one search term within a run.
type TermStatus string

const (
	TermStatusPending   TermStatus = "pending"
	TermStatusRunning   TermStatus = "running"
	TermStatusCompleted TermStatus = "completed"
	TermStatusFailed    TermStatus = "failed"
	TermStatusSkipped   TermStatus = "skipped"
)

// Phase names a step of per-term processing.
type Phase string

const (
	PhaseFetching     Phase = "fetching"
	PhaseParsing      Phase = "parsing"
	PhaseResolving    Phase = "resolving"
	PhaseFiltering    Phase = "filtering"
	PhaseAccumulating Phase = "accumulating"
	PhasePersisting   Phase = "persisting"
)

// Counts tallies listings through the pipeline stages.
type Counts struct {
	Fetched    int `json:"fetched"`
	Duplicates int `json:"duplicates"`
	Resolved   int `json:"resolved"`
	Accepted   int `json:"accepted"`
	Rejected   int `json:"rejected"`
	Written    int `json:"written"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Fetched += other.Fetched
	c.Duplicates += other.Duplicates
	c.Resolved += other.Resolved
	c.Accepted += other.Accepted
	c.Rejected += other.Rejected
	c.Written += other.Written
}

// TermSummary reports the outcome of one search term.
type TermSummary struct {
	Term         string     `json:"term"`
	Status       TermStatus `json:"status"`
	Pages        int        `json:"pages"`
	PagesSkipped int        `json:"pages_skipped"`
	Counts
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RunSummary is the result of one ingestion cycle.
type RunSummary struct {
	ID          string                 `json:"id"`
	Status      RunStatus              `json:"status"`
	Interrupted bool                   `json:"interrupted,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	ElapsedMs   int64                  `json:"elapsed_ms"`
	Terms       []TermSummary          `json:"terms"`
	Totals      Counts                 `json:"totals"`
	Rejections  map[RejectCategory]int `json:"rejections"`
	Models      []PriceStats           `json:"models"`
	Ranking     []ValueRanking         `json:"ranking"`
	Error       string                 `json:"error,omitempty"`
}

// Tally recomputes Totals from the per-term summaries.
func (s *RunSummary) Tally() {
	s.Totals = Counts{}
	for _, t := range s.Terms {
		s.Totals.Add(t.Counts)
	}
}

// FailedTerms returns the number of terms whose batch did not commit.
func (s *RunSummary) FailedTerms() int {
	n := 0
	for _, t := range s.Terms {
		if t.Status == TermStatusFailed {
			n++
		}
	}
	return n
}
