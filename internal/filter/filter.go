// Package filter implements the two-phase listing quality filter: stateless
// keyword rejection followed by an adaptive statistical outlier test.
package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/hwvalue/internal/catalog"
	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/normalize"
	"github.com/sells-group/hwvalue/internal/stats"
)

// Config holds the global filter settings.
type Config struct {
	// Warmup is the accepted count a model needs before the median test applies.
	Warmup     int
	LowFactor  float64
	HighFactor float64
	// Floor is the absolute minimum price, applied during and after warm-up.
	Floor       float64
	MinTitleLen int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{Warmup: 5, LowFactor: 0.5, HighFactor: 3.0, Floor: 50, MinTitleLen: 10}
}

// Bounds are the effective outlier settings for one model.
type Bounds struct {
	Warmup     int
	LowFactor  float64
	HighFactor float64
}

// Filter is immutable and safe for concurrent use.
type Filter struct {
	cfg       Config
	cat       *catalog.Catalog
	blacklist []string
	computer  []string
	water     []string
}

// New builds a filter. cat supplies per-model overrides and may be nil.
func New(cfg Config, cat *catalog.Catalog) *Filter {
	return &Filter{
		cfg:       cfg,
		cat:       cat,
		blacklist: words(Blacklist),
		computer:  words(ComputerKeywords),
		water:     words(WaterCoolingKeywords),
	}
}

func words(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if w := normalize.Words(k); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// BoundsFor returns the model's outlier settings: catalog overrides where
// declared, the global config otherwise.
func (f *Filter) BoundsFor(id string) Bounds {
	b := Bounds{Warmup: f.cfg.Warmup, LowFactor: f.cfg.LowFactor, HighFactor: f.cfg.HighFactor}
	if f.cat == nil {
		return b
	}
	m, ok := f.cat.Lookup(id)
	if !ok {
		return b
	}
	if m.Warmup > 0 {
		b.Warmup = m.Warmup
	}
	if m.LowFactor > 0 {
		b.LowFactor = m.LowFactor
	}
	if m.HighFactor > 0 {
		b.HighFactor = m.HighFactor
	}
	return b
}

// Precheck rejects listings that are not a single card, or whose title is
// too short to trust. It runs before resolution.
func (f *Filter) Precheck(title string) model.Verdict {
	w := normalize.Words(title)
	if k, ok := firstMatch(w, f.computer); ok {
		return model.Reject(model.VerdictRejectedKeyword, model.RejectComputer,
			fmt.Sprintf("full computer listing: %q", k))
	}
	if k, ok := firstMatch(w, f.water); ok {
		return model.Reject(model.VerdictRejectedKeyword, model.RejectWaterCooling,
			fmt.Sprintf("water cooling part: %q", k))
	}
	if n := utf8.RuneCountInString(title); n < f.cfg.MinTitleLen {
		return model.Reject(model.VerdictRejectedKeyword, model.RejectTitleShort,
			fmt.Sprintf("title too short: %d < %d characters", n, f.cfg.MinTitleLen))
	}
	return model.Accept()
}

// Keywords is phase one: blacklist terms reject regardless of price. Terms
// match anywhere in the folded title, so inflected forms ("дефекти",
// "майнинга") are caught by their stem. The pre-checks above match whole
// words only.
func (f *Filter) Keywords(title string) model.Verdict {
	if k, ok := firstSubstring(normalize.Words(title), f.blacklist); ok {
		return model.Reject(model.VerdictRejectedKeyword, model.RejectBlacklist,
			fmt.Sprintf("blacklisted keyword: %q", k))
	}
	return model.Accept()
}

// Evaluate runs both phases for a resolved listing against the model's
// current distribution. It does not record anything.
func (f *Filter) Evaluate(l model.ResolvedListing, st model.PriceStats) model.Verdict {
	if !l.Resolved() {
		return model.Reject(model.VerdictUnresolved, model.RejectUnresolved, "unrecognized model")
	}
	if v := f.Keywords(l.Title); !v.Accepted() {
		return v
	}
	return f.priceCheck(l, st)
}

func (f *Filter) priceCheck(l model.ResolvedListing, st model.PriceStats) model.Verdict {
	if l.Price < f.cfg.Floor {
		return model.Reject(model.VerdictRejectedFloor, model.RejectFloor,
			fmt.Sprintf("price %.0f below floor %.0f", l.Price, f.cfg.Floor))
	}

	b := f.BoundsFor(l.Model)
	if st.Count < b.Warmup || st.Median <= 0 {
		return model.Accept()
	}

	low := b.LowFactor * st.Median
	if l.Price < low {
		return model.Reject(model.VerdictRejectedOutlier, model.RejectOutlierLow,
			fmt.Sprintf("price %.0f below %.0f (%.2f× median %.0f)", l.Price, low, b.LowFactor, st.Median))
	}
	high := b.HighFactor * st.Median
	if l.Price > high {
		return model.Reject(model.VerdictRejectedOutlier, model.RejectOutlierHigh,
			fmt.Sprintf("price %.0f above %.0f (%.2f× median %.0f)", l.Price, high, b.HighFactor, st.Median))
	}
	return model.Accept()
}

// Admit evaluates l and records an accepted price in tr as one step, so
// the next candidate for the same model sees the updated distribution.
func (f *Filter) Admit(tr *stats.Tracker, l model.ResolvedListing) model.Verdict {
	if !l.Resolved() {
		return f.Evaluate(l, model.PriceStats{})
	}
	if v := f.Keywords(l.Title); !v.Accepted() {
		return v
	}
	return tr.Admit(l.Model, l.Price, func(st model.PriceStats) model.Verdict {
		return f.priceCheck(l, st)
	})
}

func firstMatch(words string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if normalize.ContainsPhrase(words, p) {
			return p, true
		}
	}
	return "", false
}

func firstSubstring(words string, terms []string) (string, bool) {
	for _, t := range terms {
		if strings.Contains(words, t) {
			return t, true
		}
	}
	return "", false
}
