// Package stats keeps the per-model price distributions of one ingestion cycle.
package stats

import (
	"slices"
	"sort"
	"sync"

	"github.com/sells-group/hwvalue/internal/model"
)

// Tracker holds one sorted price series per model. It is cycle-scoped:
// a new Tracker is created for every run. Different models never contend;
// updates to the same model are serialised by that model's lock.
type Tracker struct {
	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	mu     sync.Mutex
	prices []float64
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{series: make(map[string]*series)}
}

func (t *Tracker) get(id string) *series {
	t.mu.RLock()
	s, ok := t.series[id]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.series[id]; !ok {
		s = &series{}
		t.series[id] = s
	}
	return s
}

// Update records an accepted price for the model.
func (t *Tracker) Update(id string, price float64) {
	s := t.get(id)
	s.mu.Lock()
	s.insert(price)
	s.mu.Unlock()
}

// Query returns the model's current distribution. Count is zero for a
// model with no accepted prices.
func (t *Tracker) Query(id string) model.PriceStats {
	t.mu.RLock()
	s, ok := t.series[id]
	t.mu.RUnlock()
	if !ok {
		return model.PriceStats{Model: id}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats(id)
}

// Admit evaluates a candidate price against the model's current
// distribution and, when decide accepts it, records the price before any
// other candidate for the same model is evaluated.
func (t *Tracker) Admit(id string, price float64, decide func(model.PriceStats) model.Verdict) model.Verdict {
	s := t.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	v := decide(s.stats(id))
	if v.Accepted() {
		s.insert(price)
	}
	return v
}

// Snapshot returns an immutable copy of every model's distribution.
// Models without accepted prices are omitted.
func (t *Tracker) Snapshot() map[string]model.PriceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]model.PriceStats, len(t.series))
	for id, s := range t.series {
		s.mu.Lock()
		st := s.stats(id)
		s.mu.Unlock()
		if st.Count > 0 {
			out[id] = st
		}
	}
	return out
}

// Models returns the ids with at least one accepted price, sorted.
func (t *Tracker) Models() []string {
	snap := t.Snapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *series) insert(price float64) {
	i, _ := slices.BinarySearch(s.prices, price)
	s.prices = slices.Insert(s.prices, i, price)
}

func (s *series) stats(id string) model.PriceStats {
	n := len(s.prices)
	if n == 0 {
		return model.PriceStats{Model: id}
	}
	return model.PriceStats{
		Model:  id,
		Count:  n,
		Min:    s.prices[0],
		Max:    s.prices[n-1],
		Median: Median(s.prices),
	}
}

// Median returns the median of an ascending slice; the mean of the two
// middle values for an even count, zero for an empty slice.
func Median(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return sorted[n/2]
	default:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

// FromPrices builds distributions from already accepted prices, e.g.
// listings reloaded from storage.
func FromPrices(prices map[string][]float64) map[string]model.PriceStats {
	t := New()
	for id, ps := range prices {
		for _, p := range ps {
			t.Update(id, p)
		}
	}
	return t.Snapshot()
}
