// Package value ranks models by benchmark performance per unit of price.
package value

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/stats"
)

// Benchmarks is the read-only benchmark table.
type Benchmarks interface {
	Benchmarks() map[string]float64
	TopBenchmark() float64
}

// Engine computes value rankings.
type Engine struct {
	scores map[string]float64
	top    float64
}

// NewEngine snapshots the benchmark table.
func NewEngine(b Benchmarks) *Engine {
	return &Engine{scores: b.Benchmarks(), top: b.TopBenchmark()}
}

// Rank returns one entry per model that has accepted listings, a known
// benchmark and a positive median, sorted by performance per currency
// (descending, ties by model id). Models failing a precondition are skipped.
func (e *Engine) Rank(st map[string]model.PriceStats) []model.ValueRanking {
	out := make([]model.ValueRanking, 0, len(st))
	for id, s := range st {
		score, ok := e.scores[id]
		if !ok || score <= 0 {
			continue
		}
		if s.Count == 0 || s.Median <= 0 || math.IsNaN(s.Median) || math.IsInf(s.Median, 0) {
			zap.L().Warn("value: skipping model without a usable median",
				zap.String("model", id), zap.Float64("median", s.Median), zap.Int("count", s.Count))
			continue
		}

		var rel float64
		if e.top > 0 {
			rel = 100 * score / e.top
		}
		out = append(out, model.ValueRanking{
			Model:           id,
			MedianPrice:     s.Median,
			Benchmark:       score,
			PerfPerCurrency: score / s.Median,
			RelativeScore:   rel,
			Listings:        s.Count,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PerfPerCurrency != out[j].PerfPerCurrency {
			return out[i].PerfPerCurrency > out[j].PerfPerCurrency
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// ListingSource is the slice of the store needed to recompute a ranking.
type ListingSource interface {
	LatestRun(ctx context.Context) (*model.RunSummary, error)
	ListAccepted(ctx context.Context, runID string) ([]model.AcceptedListing, error)
}

// RankFromStore recomputes the ranking from the latest completed run's
// persisted listings. The ranking a run summary carries is a copy taken
// when the run finished; this always recomputes from the listings.
func (e *Engine) RankFromStore(ctx context.Context, src ListingSource) ([]model.ValueRanking, error) {
	run, err := src.LatestRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "value: latest run")
	}
	if run == nil {
		return []model.ValueRanking{}, nil
	}

	listings, err := src.ListAccepted(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "value: list accepted for run %s", run.ID)
	}

	prices := make(map[string][]float64)
	for _, l := range listings {
		prices[l.Model] = append(prices[l.Model], l.Price)
	}
	return e.Rank(stats.FromPrices(prices)), nil
}
