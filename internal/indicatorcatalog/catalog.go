// Package indicatorcatalog implements the pure-function indicator
// contract: Compute(config, bars, carry) -> (value, carry', ready),
// deliberately not the teacher's stateful Calculator interface, because
// SessionData (internal/sessiondata) must own all session state — an
// indicator's carry is stored back into models.IndicatorState rather than
// living inside a calculator struct, per the Open Question resolution in
// the design notes.
package indicatorcatalog

import (
	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// Result is what a catalog entry returns from one Compute call.
type Result struct {
	Value  *float64
	Values map[string]float64
	Ready  bool
	Carry  any
}

// ComputeFunc is a pure function over the bars accumulated so far for one
// (symbol, interval) pair and the entry's own opaque carry from the
// previous call.
type ComputeFunc func(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result

// Entry is one named catalog indicator.
type Entry struct {
	Name    string
	Compute ComputeFunc
}

// Catalog is the name -> Entry registry, grounded on the teacher's
// pkg/indicator/registry.go name->factory lookup.
type Catalog struct {
	entries map[string]Entry
}

// New constructs a Catalog pre-populated with every built-in entry.
func New() *Catalog {
	c := &Catalog{entries: make(map[string]Entry)}
	for _, e := range builtins() {
		c.entries[e.Name] = e
	}
	return c
}

// Register adds or overrides an entry, for tests and deployment-specific
// extensions.
func (c *Catalog) Register(e Entry) {
	c.entries[e.Name] = e
}

// Get looks up an entry by name.
func (c *Catalog) Get(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Names returns every registered indicator name.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	return out
}

func builtins() []Entry {
	return []Entry{
		{Name: "sma", Compute: computeSMATechan},
		{Name: "ema", Compute: computeEMATechan},
		{Name: "rsi", Compute: computeRSITechan},
		{Name: "macd", Compute: computeMACDTechan},
		{Name: "atr", Compute: computeATRTechan},
		{Name: "bollinger", Compute: computeBollingerTechan},
		{Name: "stochastic", Compute: computeStochasticTechan},
		{Name: "vwap", Compute: computeVWAP},
		{Name: "price_change", Compute: computePriceChange},
		{Name: "volume_sum", Compute: computeVolumeSum},
		{Name: "high_low", Compute: computeHighLow},
		{Name: "pivots", Compute: computePivots},
	}
}
