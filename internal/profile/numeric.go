// Package profile computes streaming column profiles of the product
// dataset: running count, sum, min and max plus DDSketch quantiles.
package profile

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Quantiles reported by Summary.
var Quantiles = []float64{0.25, 0.50, 0.75, 0.90}

// Numeric maintains running statistics of one numeric column.
// Quantiles are approximate, within the sketch's relative accuracy.
type Numeric struct {
	mu sync.Mutex

	count   int64
	nulls   int64
	invalid int64
	sum     float64
	min     float64
	max     float64

	accuracy float64
	sketch   *ddsketch.DDSketch
}

// NumericSummary is a point-in-time view of a Numeric.
type NumericSummary struct {
	Count   int64    `json:"count"`
	Nulls   int64    `json:"nulls"`
	Invalid int64    `json:"invalid"`
	Mean    *float64 `json:"mean"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	P25     *float64 `json:"p25"`
	P50     *float64 `json:"p50"`
	P75     *float64 `json:"p75"`
	P90     *float64 `json:"p90"`
}

// NewNumeric creates a Numeric with the given relative sketch accuracy.
// An accuracy outside (0,1) falls back to 1%.
func NewNumeric(accuracy float64) *Numeric {
	if accuracy <= 0 || accuracy >= 1 {
		accuracy = 0.01
	}
	n := &Numeric{
		accuracy: accuracy,
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
	}
	if sk, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		n.sketch = sk
	}
	return n
}

// Add records a value. NaN and Inf count as invalid.
func (n *Numeric) Add(v float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if math.IsNaN(v) || math.IsInf(v, 0) {
		n.invalid++
		return
	}

	n.count++
	n.sum += v
	if v < n.min {
		n.min = v
	}
	if v > n.max {
		n.max = v
	}
	if n.sketch != nil {
		n.sketch.Add(v)
	}
}

// AddNull records a missing value.
func (n *Numeric) AddNull() {
	n.mu.Lock()
	n.nulls++
	n.mu.Unlock()
}

// AddInvalid records an unparseable or out-of-range value.
func (n *Numeric) AddInvalid() {
	n.mu.Lock()
	n.invalid++
	n.mu.Unlock()
}

// Count returns the number of valid values.
func (n *Numeric) Count() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// Nulls returns the number of missing values.
func (n *Numeric) Nulls() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nulls
}

// Invalid returns the number of invalid values.
func (n *Numeric) Invalid() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.invalid
}

// Quantile returns the approximate value at q, or false when empty.
func (n *Numeric) Quantile(q float64) (float64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sketch == nil || n.count == 0 {
		return 0, false
	}
	v, err := n.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Merge folds other into n.
func (n *Numeric) Merge(other *Numeric) {
	if other == nil || other == n {
		return
	}

	n.mu.Lock()
	other.mu.Lock()
	defer n.mu.Unlock()
	defer other.mu.Unlock()

	n.nulls += other.nulls
	n.invalid += other.invalid
	if other.count == 0 {
		return
	}

	n.count += other.count
	n.sum += other.sum
	if other.min < n.min {
		n.min = other.min
	}
	if other.max > n.max {
		n.max = other.max
	}
	if n.sketch != nil && other.sketch != nil {
		n.sketch.MergeWith(other.sketch)
	}
}

// Summary returns the current statistics. Value fields are nil when no
// valid value was recorded.
func (n *Numeric) Summary() NumericSummary {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := NumericSummary{Count: n.count, Nulls: n.nulls, Invalid: n.invalid}
	if n.count == 0 {
		return s
	}

	mean := n.sum / float64(n.count)
	lo, hi := n.min, n.max
	s.Mean, s.Min, s.Max = &mean, &lo, &hi

	if n.sketch == nil {
		return s
	}
	qs, err := n.sketch.GetValuesAtQuantiles(Quantiles)
	if err != nil || len(qs) != len(Quantiles) {
		return s
	}
	// Sketch values carry relative error; keep them inside the observed range.
	for i := range qs {
		qs[i] = math.Min(math.Max(qs[i], lo), hi)
	}
	s.P25, s.P50, s.P75, s.P90 = &qs[0], &qs[1], &qs[2], &qs[3]
	return s
}
