// Package resolver maps free-text listing titles onto canonical catalog models.
package resolver

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hwvalue/internal/catalog"
	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/normalize"
)

// Result is the outcome of resolving one title. Model is set and Category
// is empty for a clean resolution.
type Result struct {
	Model    string               `json:"model,omitempty"`
	Matched  string               `json:"matched,omitempty"`
	VRAM     int                  `json:"vram_gb,omitempty"`
	Category model.RejectCategory `json:"category,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// Resolved reports whether the title resolved to a usable model.
func (r Result) Resolved() bool {
	return r.Model != "" && r.Category == ""
}

// ValidVRAMSizes are the memory sizes (GB) recognised in titles.
var ValidVRAMSizes = []int{2, 3, 4, 6, 8, 10, 11, 12, 16, 20, 24, 32, 48}

// noiseTokens are brand and board-partner names that carry no model information.
var noiseTokens = map[string]bool{
	"amd": true, "nvidia": true, "geforce": true, "intel": true,
	"asus": true, "rog": true, "strix": true, "tuf": true, "msi": true,
	"gigabyte": true, "aorus": true, "zotac": true, "palit": true,
	"gainward": true, "sapphire": true, "powercolor": true, "evga": true,
	"xfx": true, "asrock": true, "pny": true, "inno3d": true, "kfa2": true,
	"galax": true, "colorful": true, "manli": true, "biostar": true,
}

var (
	seriesGlue = regexp.MustCompile(`\b(rtx|gtx|rx|vega)(\d)`)
	arcGlue    = regexp.MustCompile(`\barc([ab]\d{3})\b`)
	vramGlue   = regexp.MustCompile(`(ti|super|xtx|xt|gre)(\d{1,2}gb)\b`)
	suffixGlue = regexp.MustCompile(`(\d)(ti|super|xtx|xt|gre)\b`)
	vramSpaced = regexp.MustCompile(`\b(\d{1,2}) ?(?:gb|гб)( |$)`)

	warrantyAfter  = regexp.MustCompile(`\d{1,2}\s?г\.?\s*(?:гаранция|години|год)`)
	warrantyBefore = regexp.MustCompile(`(?:гаранция|години)\s*\d{1,2}\s?г`)
	vramMention    = regexp.MustCompile(`(\d{1,2})\s?(?:gb|гб|g|г)`)
)

type entry struct {
	model  int
	phrase string
}

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	cat     *catalog.Catalog
	entries []entry
}

// New compiles the catalog's patterns and corrections. Entries keep
// catalog declaration order, with corrections after every model.
func New(cat *catalog.Catalog) (*Resolver, error) {
	r := &Resolver{cat: cat}
	for i, m := range cat.Models {
		for _, p := range m.Patterns {
			phrase := Normalize(p)
			if phrase == "" {
				return nil, eris.Errorf("resolver: model %q: pattern %q is empty after normalisation", m.ID, p)
			}
			r.entries = append(r.entries, entry{model: i, phrase: phrase})
		}
	}
	for _, c := range cat.Corrections {
		phrase := Normalize(c.Pattern)
		if phrase == "" {
			return nil, eris.Errorf("resolver: correction %q is empty after normalisation", c.Pattern)
		}
		idx := slices.IndexFunc(cat.Models, func(m catalog.Model) bool { return m.ID == c.Model })
		if idx < 0 {
			return nil, eris.Errorf("resolver: correction %q targets unknown model %q", c.Pattern, c.Model)
		}
		r.entries = append(r.entries, entry{model: idx, phrase: phrase})
	}
	return r, nil
}

// Normalize folds a title, drops noise tokens and splits glued series
// tokens, e.g. "ASUS RTX3060Ti 8 GB" becomes "rtx 3060 ti 8gb".
func Normalize(title string) string {
	s := normalize.Words(title)
	s = seriesGlue.ReplaceAllString(s, "$1 $2")
	s = arcGlue.ReplaceAllString(s, "arc $1")
	s = vramGlue.ReplaceAllString(s, "$1 $2")
	s = suffixGlue.ReplaceAllString(s, "$1 $2")
	s = vramSpaced.ReplaceAllString(s, "${1}gb$2")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if !noiseTokens[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// ExtractVRAM returns the first plausible memory size stated in the
// title, ignoring warranty periods ("2 г. гаранция"). Zero means none.
func ExtractVRAM(title string) int {
	s := normalize.Fold(title)
	s = warrantyAfter.ReplaceAllString(s, " ")
	s = warrantyBefore.ReplaceAllString(s, " ")

	for _, loc := range vramMention.FindAllStringSubmatchIndex(s, -1) {
		if !boundaryBefore(s, loc[0]) || !boundaryAfter(s, loc[1]) {
			continue
		}
		n, err := strconv.Atoi(s[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		if slices.Contains(ValidVRAMSizes, n) {
			return n
		}
	}
	return 0
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Resolve maps title to a canonical model. The longest matching pattern
// wins; among equally long patterns the one declared first wins. Entries
// restricted to one memory size only match when the title states it.
func (r *Resolver) Resolve(title string) Result {
	words := Normalize(title)
	vram := ExtractVRAM(title)

	best, bestLen := -1, 0
	gatedPhrase, gatedLen := "", 0
	for i, e := range r.entries {
		if !normalize.ContainsPhrase(words, e.phrase) {
			continue
		}
		n := len(e.phrase)
		if v := r.cat.Models[e.model].VariantVRAM; v > 0 && v != vram {
			if n > gatedLen {
				gatedPhrase, gatedLen = e.phrase, n
			}
			continue
		}
		if n > bestLen {
			best, bestLen = i, n
		}
	}

	if gatedLen > bestLen {
		if vram == 0 {
			return Result{
				Matched:  gatedPhrase,
				Category: model.RejectUnresolved,
				Reason:   fmt.Sprintf("memory size required: %q is sold in several configurations", gatedPhrase),
			}
		}
		return Result{
			Matched:  gatedPhrase,
			VRAM:     vram,
			Category: model.RejectInvalidVRAM,
			Reason:   fmt.Sprintf("%dGB is not a known memory size for %q", vram, gatedPhrase),
		}
	}
	if best < 0 {
		return Result{Category: model.RejectUnresolved, Reason: "unrecognized model"}
	}

	e := r.entries[best]
	m := r.cat.Models[e.model]
	res := Result{Model: m.ID, Matched: e.phrase, VRAM: vram}
	if vram > 0 && !m.ValidVRAM(vram) {
		res.Category = model.RejectInvalidVRAM
		res.Reason = fmt.Sprintf("%dGB is not a known memory size for %s", vram, m.ID)
	}
	return res
}

// ResolveListing annotates raw with its resolution. Unresolved listings
// carry an empty model.
func (r *Resolver) ResolveListing(raw model.RawListing) (model.ResolvedListing, Result) {
	res := r.Resolve(raw.Title)
	out := model.ResolvedListing{RawListing: raw, VRAM: res.VRAM}
	if res.Resolved() {
		out.Model = res.Model
	}
	return out, res
}
