// Package model holds the data types shared across the ingestion pipeline.
package model

import "time"

// RawListing is one entry parsed from a fetched results page.
type RawListing struct {
	Title string  `json:"title"`
	Price float64 `json:"price"`
	URL   string  `json:"url"`
	Term  string  `json:"term"`
	Page  int     `json:"page"`
}

// Page is the parsed result of one fetch.
type Page struct {
	Term     string       `json:"term"`
	Number   int          `json:"number"`
	Status   int          `json:"status"`
	Listings []RawListing `json:"listings"`
	HasNext  bool         `json:"has_next"`
}

// ResolvedListing is a RawListing annotated with its canonical model.
// Model is empty when the title could not be resolved.
type ResolvedListing struct {
	RawListing
	Model string `json:"model,omitempty"`
	VRAM  int    `json:"vram_gb,omitempty"`
}

// Resolved reports whether the listing carries a canonical model.
func (r ResolvedListing) Resolved() bool {
	return r.Model != ""
}

// AcceptedListing is a listing that passed every filter stage.
type AcceptedListing struct {
	Model  string    `json:"model"`
	Price  float64   `json:"price"`
	URL    string    `json:"url"`
	Title  string    `json:"title"`
	Term   string    `json:"term"`
	RunID  string    `json:"run_id"`
	SeenAt time.Time `json:"seen_at"`
}

// RejectedListing is retained for operator visibility for the current cycle only.
type RejectedListing struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Title      string         `json:"title"`
	Price      float64        `json:"price"`
	URL        string         `json:"url"`
	Term       string         `json:"term"`
	Model      string         `json:"model,omitempty"`
	Category   RejectCategory `json:"category"`
	Reason     string         `json:"reason"`
	RejectedAt time.Time      `json:"rejected_at"`
}

// RejectCategory groups rejection reasons for summaries.
type RejectCategory string

const (
	RejectUnresolved   RejectCategory = "unresolved"
	RejectInvalidVRAM  RejectCategory = "invalid_vram"
	RejectComputer     RejectCategory = "computer"
	RejectWaterCooling RejectCategory = "water_cooling"
	RejectTitleShort   RejectCategory = "title_short"
	RejectBlacklist    RejectCategory = "blacklist"
	RejectFloor        RejectCategory = "floor"
	RejectOutlierLow   RejectCategory = "outlier_low"
	RejectOutlierHigh  RejectCategory = "outlier_high"
)

// VerdictKind is the closed set of filter outcomes.
type VerdictKind int

const (
	VerdictAccepted VerdictKind = iota
	// VerdictRejectedKeyword covers every stateless title check.
	VerdictRejectedKeyword
	VerdictRejectedFloor
	VerdictRejectedOutlier
	VerdictUnresolved
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictAccepted:
		return "accepted"
	case VerdictRejectedKeyword:
		return "rejected_keyword"
	case VerdictRejectedFloor:
		return "rejected_floor"
	case VerdictRejectedOutlier:
		return "rejected_outlier"
	case VerdictUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of evaluating one listing.
type Verdict struct {
	Kind     VerdictKind    `json:"kind"`
	Category RejectCategory `json:"category,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// Accept returns the accepting verdict.
func Accept() Verdict {
	return Verdict{Kind: VerdictAccepted}
}

// Reject returns a rejecting verdict of the given kind.
func Reject(kind VerdictKind, category RejectCategory, reason string) Verdict {
	return Verdict{Kind: kind, Category: category, Reason: reason}
}

// Accepted reports whether the verdict lets the listing through.
func (v Verdict) Accepted() bool {
	return v.Kind == VerdictAccepted
}

// Rejection converts a listing and its rejecting verdict into a log entry.
func (v Verdict) Rejection(l ResolvedListing, at time.Time) RejectedListing {
	return RejectedListing{
		Title:      l.Title,
		Price:      l.Price,
		URL:        l.URL,
		Term:       l.Term,
		Model:      l.Model,
		Category:   v.Category,
		Reason:     v.Reason,
		RejectedAt: at,
	}
}
