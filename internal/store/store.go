package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hwvalue/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	StartedAfter time.Time       `json:"started_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Listings
	UpsertListings(ctx context.Context, runID string, listings []model.AcceptedListing) (int, error)
	ListAccepted(ctx context.Context, runID string) ([]model.AcceptedListing, error)

	// Rejection log (current cycle only)
	ReplaceRejectedLog(ctx context.Context, runID string, rejected []model.RejectedListing) error
	ListRejected(ctx context.Context) ([]model.RejectedListing, error)

	// Runs
	SaveRun(ctx context.Context, run *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.RunSummary, error)
	LatestRun(ctx context.Context) (*model.RunSummary, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the backend named by driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "":
		s, err := NewPostgres(ctx, dsn, poolCfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func validateListing(l model.AcceptedListing) error {
	switch {
	case l.URL == "":
		return eris.Errorf("store: listing %q has no url", l.Title)
	case l.Model == "":
		return eris.Errorf("store: listing %s has no model", l.URL)
	case l.Price <= 0:
		return eris.Errorf("store: listing %s has non-positive price %v", l.URL, l.Price)
	}
	return nil
}

// RejectionCounts tallies a rejection log by category.
func RejectionCounts(rejected []model.RejectedListing) map[model.RejectCategory]int {
	counts := make(map[model.RejectCategory]int)
	for _, r := range rejected {
		counts[r.Category]++
	}
	return counts
}
