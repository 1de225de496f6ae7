// Package catalog holds the static table of known hardware models: the
// title patterns that identify each one and its benchmark score.
package catalog

import (
	_ "embed"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Model is one canonical catalog entry.
type Model struct {
	ID        string   `yaml:"id"`
	Benchmark float64  `yaml:"benchmark"`
	Patterns  []string `yaml:"patterns"`

	// VRAM lists the memory sizes (GB) the model ships with. Empty means any.
	VRAM []int `yaml:"vram,omitempty"`

	// VariantVRAM marks an entry that only matches listings stating this
	// memory size, for models sold in several memory configurations.
	VariantVRAM int `yaml:"variant_vram,omitempty"`

	// Optional filter overrides; zero keeps the global setting.
	Warmup     int     `yaml:"warmup,omitempty"`
	LowFactor  float64 `yaml:"low_factor,omitempty"`
	HighFactor float64 `yaml:"high_factor,omitempty"`
}

// Correction maps an incomplete or mistaken name to a catalog model.
type Correction struct {
	Pattern string `yaml:"pattern"`
	Model   string `yaml:"model"`
}

// Catalog is the ordered model table. Declaration order is significant:
// it breaks ties between equally specific patterns.
type Catalog struct {
	Models      []Model      `yaml:"models"`
	Corrections []Correction `yaml:"corrections"`

	index map[string]int
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Read(f)
}

// Read parses a catalog document from r.
func Read(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read")
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Models) == 0 {
		return eris.New("catalog: no models")
	}
	c.index = make(map[string]int, len(c.Models))
	for i, m := range c.Models {
		if strings.TrimSpace(m.ID) == "" {
			return eris.Errorf("catalog: model #%d has no id", i+1)
		}
		if _, dup := c.index[m.ID]; dup {
			return eris.Errorf("catalog: duplicate model %q", m.ID)
		}
		if m.Benchmark <= 0 {
			return eris.Errorf("catalog: model %q: benchmark must be positive", m.ID)
		}
		if len(m.Patterns) == 0 {
			return eris.Errorf("catalog: model %q has no patterns", m.ID)
		}
		for _, p := range m.Patterns {
			if strings.TrimSpace(p) == "" {
				return eris.Errorf("catalog: model %q has an empty pattern", m.ID)
			}
		}
		if m.LowFactor != 0 && m.HighFactor != 0 && m.LowFactor >= m.HighFactor {
			return eris.Errorf("catalog: model %q: low_factor must be below high_factor", m.ID)
		}
		c.index[m.ID] = i
	}
	for _, corr := range c.Corrections {
		if strings.TrimSpace(corr.Pattern) == "" {
			return eris.New("catalog: correction with empty pattern")
		}
		if _, ok := c.index[corr.Model]; !ok {
			return eris.Errorf("catalog: correction %q targets unknown model %q", corr.Pattern, corr.Model)
		}
	}
	return nil
}

// Lookup returns the model with the given id.
func (c *Catalog) Lookup(id string) (Model, bool) {
	i, ok := c.index[id]
	if !ok {
		return Model{}, false
	}
	return c.Models[i], true
}

// Benchmarks returns the model → score table.
func (c *Catalog) Benchmarks() map[string]float64 {
	out := make(map[string]float64, len(c.Models))
	for _, m := range c.Models {
		out[m.ID] = m.Benchmark
	}
	return out
}

// TopBenchmark returns the single highest score in the full catalog.
func (c *Catalog) TopBenchmark() float64 {
	var top float64
	for _, m := range c.Models {
		top = max(top, m.Benchmark)
	}
	return top
}

// IDs returns model ids in declaration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		ids = append(ids, m.ID)
	}
	return ids
}

// ValidVRAM reports whether size is a known memory configuration of the model.
func (m Model) ValidVRAM(size int) bool {
	if len(m.VRAM) == 0 {
		return true
	}
	return slices.Contains(m.VRAM, size)
}
