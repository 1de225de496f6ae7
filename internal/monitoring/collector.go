// Package monitoring summarises recent ingestion runs and raises webhook
// alerts when their health degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/store"
)

// RunHealth is a point-in-time view of ingestion health.
type RunHealth struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Running     int     `json:"running"`
	Interrupted int     `json:"interrupted"`
	FailRate    float64 `json:"fail_rate"`
	AvgAccepted float64 `json:"avg_accepted"`
	AvgRejected float64 `json:"avg_rejected"`
	// ZeroAccepted counts completed runs that accepted nothing, the usual
	// sign of a changed page layout or a silent block.
	ZeroAccepted int `json:"zero_accepted"`

	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	LastStatus model.RunStatus `json:"last_status,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of the store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.RunSummary, error)
}

// Collector gathers run health from the store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new health collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarises the runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*RunHealth, error) {
	now := c.now().UTC()
	h := &RunHealth{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		StartedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	h.Total = len(runs)
	var accepted, rejected, finished int
	for i, r := range runs {
		// Runs are listed newest first.
		if i == 0 {
			started := r.StartedAt
			h.LastRunAt = &started
			h.LastStatus = r.Status
		}
		switch r.Status {
		case model.RunStatusCompleted:
			h.Completed++
			if r.Totals.Accepted == 0 {
				h.ZeroAccepted++
			}
		case model.RunStatusFailed:
			h.Failed++
		default:
			h.Running++
			continue
		}
		if r.Interrupted {
			h.Interrupted++
		}
		finished++
		accepted += r.Totals.Accepted
		rejected += r.Totals.Rejected
	}

	if finished > 0 {
		h.FailRate = float64(h.Failed) / float64(finished)
		h.AvgAccepted = float64(accepted) / float64(finished)
		h.AvgRejected = float64(rejected) / float64(finished)
	}
	return h, nil
}
