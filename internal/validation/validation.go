// Package validation provides centralized validation for prodstats: data
// quality checks on the raw dataset and parsing of query parameters.
package validation

import (
	"fmt"
	"sort"
	"strings"

	defaults "github.com/xtxerr/prodstats/config"
	"github.com/xtxerr/prodstats/internal/dataset"
	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/profile"
	"github.com/xtxerr/prodstats/internal/store"
)

// =============================================================================
// Data Quality Rules
// =============================================================================

// Rules defines the data quality thresholds.
type Rules struct {
	// MinRows is the smallest acceptable row count.
	MinRows int

	// PriceMissingWarn is the missing price fraction above which a warning
	// is reported.
	PriceMissingWarn float64

	// NullRatingWarn is the null rating fraction above which a warning is
	// reported.
	NullRatingWarn float64

	// SketchAccuracy is the relative accuracy of profile quantiles.
	SketchAccuracy float64
}

// DefaultRules returns the default data quality rules.
func DefaultRules() Rules {
	return Rules{
		MinRows:          defaults.DefaultMinRows,
		PriceMissingWarn: defaults.DefaultPriceMissingWarn,
		NullRatingWarn:   defaults.DefaultNullRatingWarn,
		SketchAccuracy:   defaults.DefaultSketchAccuracy,
	}
}

// Report is the outcome of a validation pass.
type Report struct {
	Rows     int             `json:"rows"`
	Warnings []string        `json:"warnings,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	Profile  profile.Summary `json:"profile"`
}

// OK reports whether no fatal problem was found.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

// Validator checks a raw dataset table against a schema and Rules.
type Validator struct {
	rules  Rules
	schema dataset.Schema
}

// NewValidator creates a Validator for the product schema.
func NewValidator(rules Rules) *Validator {
	return &Validator{rules: rules, schema: dataset.ProductSchema()}
}

// Validate profiles t and checks it. It performs no I/O.
//
// Fatal problems are returned as a *errors.ValidationError listing every
// reason; the report is returned in both cases.
func (v *Validator) Validate(t *dataset.Table) (*Report, error) {
	rep := &Report{Rows: t.Len()}
	verr := perrors.NewValidation()

	if t.Len() < v.rules.MinRows {
		verr.Add("dataset has %d rows, at least %d required", t.Len(), v.rules.MinRows)
	}

	var missing []string
	for _, name := range v.schema.Required() {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		verr.Add("missing required columns: %s", strings.Join(missing, ", "))
	}

	p := v.profile(t)
	rep.Profile = p.Summary()

	if t.HasColumn(dataset.ColStars) && p.Rating.Count() == 0 {
		verr.Add("no rating within [%v, %v]", dataset.MinRating, dataset.MaxRating)
	}

	rep.Warnings = v.warnings(p)

	if verr.HasReasons() {
		rep.Errors = verr.Reasons
		return rep, verr
	}
	return rep, nil
}

// ValidateProducts checks products that were coerced earlier, as read back
// from a snapshot, against the current rules. rows is the raw row count
// they were coerced from.
func (v *Validator) ValidateProducts(rows int, products []store.Product) (*Report, error) {
	p := profile.New(v.rules.SketchAccuracy)
	for i := range products {
		pr := &products[i]
		p.AddRow(pr.ASIN, pr.Category)
		addValue(p.Rating, pr.Stars)
		addValue(p.Price, pr.Price)
	}

	rep := &Report{Rows: rows, Profile: p.Summary(), Warnings: v.warnings(p)}
	verr := perrors.NewValidation()
	if rows < v.rules.MinRows {
		verr.Add("dataset has %d rows, at least %d required", rows, v.rules.MinRows)
	}
	if p.Rating.Count() == 0 {
		verr.Add("no rating within [%v, %v]", dataset.MinRating, dataset.MaxRating)
	}

	if verr.HasReasons() {
		rep.Errors = verr.Reasons
		return rep, verr
	}
	return rep, nil
}

func addValue(n *profile.Numeric, v *float64) {
	if v == nil {
		n.AddNull()
		return
	}
	n.Add(*v)
}

// profile makes a single pass over the table.
func (v *Validator) profile(t *dataset.Table) *profile.Profile {
	p := profile.New(v.rules.SketchAccuracy)
	stars, hasStars := v.column(t, dataset.ColStars)
	price, hasPrice := v.column(t, dataset.ColPrice)

	for r := 0; r < t.Len(); r++ {
		p.AddRow(t.Value(r, dataset.ColASIN), t.Value(r, dataset.ColCategory))
		if hasStars {
			addCell(p.Rating, stars, t.Value(r, stars.Name))
		}
		if hasPrice {
			addCell(p.Price, price, t.Value(r, price.Name))
		}
	}
	return p
}

// column returns the declared column when the table carries it.
func (v *Validator) column(t *dataset.Table, name string) (dataset.Column, bool) {
	c, ok := v.schema.Lookup(name)
	return c, ok && t.HasColumn(name)
}

func addCell(n *profile.Numeric, col dataset.Column, raw string) {
	cell, err := col.Parse(raw)
	switch {
	case err != nil:
		n.AddInvalid()
	case cell.Null:
		n.AddNull()
	default:
		n.Add(cell.Float)
	}
}

func (v *Validator) warnings(p *profile.Profile) []string {
	if p.Rows == 0 {
		return nil
	}
	rows := float64(p.Rows)
	var w []string

	if frac := float64(p.Price.Nulls()) / rows; frac > v.rules.PriceMissingWarn {
		w = append(w, fmt.Sprintf("%.1f%% of prices are missing", frac*100))
	}
	if frac := float64(p.Rating.Nulls()) / rows; frac > v.rules.NullRatingWarn {
		w = append(w, fmt.Sprintf("%.1f%% of ratings are null", frac*100))
	}
	if n := p.Rating.Invalid(); n > 0 {
		w = append(w, fmt.Sprintf("%d ratings are unparseable or outside [%v, %v]",
			n, dataset.MinRating, dataset.MaxRating))
	}
	if n := p.DuplicateIDs(); n > 0 {
		w = append(w, fmt.Sprintf("%d rows repeat an existing %s", n, dataset.ColASIN))
	}
	if n := p.EmptyCategoryRows(); n > 0 {
		w = append(w, fmt.Sprintf("%d rows have an empty %s", n, dataset.ColCategory))
	}
	return w
}
