package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xtxerr/prodstats/internal/dataset"
	perrors "github.com/xtxerr/prodstats/internal/errors"
)

// Product is one coerced row of the products table. Immutable once loaded.
type Product struct {
	ASIN              string
	Title             string
	Stars             *float64
	Reviews           int64
	Price             *float64
	IsBestSeller      bool
	BoughtInLastMonth int64
	Category          string
}

// Coerced is the outcome of coercing a raw table.
type Coerced struct {
	Products []Product
	Total    int
	Rejected int64

	// Reasons counts rejections per cause.
	Reasons map[string]int64

	// Samples holds the first few rejection messages.
	Samples []string
}

// RejectRate returns Rejected / Total.
func (c *Coerced) RejectRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Rejected) / float64(c.Total)
}

const maxRejectSamples = 5

// Coerce converts every raw row to a Product. Rows failing coercion are
// excluded and counted; the whole table fails with a ValidationError when
// the rejected fraction exceeds maxRejectRate or nothing is left.
func Coerce(t *dataset.Table, maxRejectRate float64) (*Coerced, error) {
	c := &Coerced{
		Products: make([]Product, 0, t.Len()),
		Total:    t.Len(),
		Reasons:  make(map[string]int64),
	}

	for r := 0; r < t.Len(); r++ {
		p, cause, err := coerceRow(t, r)
		if err != nil {
			c.Rejected++
			c.Reasons[cause]++
			if len(c.Samples) < maxRejectSamples {
				c.Samples = append(c.Samples, fmt.Sprintf("row %d: %v", r+1, err))
			}
			continue
		}
		c.Products = append(c.Products, p)
	}

	if c.Rejected > 0 && c.RejectRate() > maxRejectRate {
		return c, perrors.NewValidation(fmt.Sprintf(
			"rejected %d of %d rows (%.2f%%), ceiling is %.2f%%: %s",
			c.Rejected, c.Total, c.RejectRate()*100, maxRejectRate*100, c.summary()))
	}
	if len(c.Products) == 0 {
		return c, perrors.NewValidation("no loadable rows")
	}
	return c, nil
}

// summary renders the per-cause counts in a stable order.
func (c *Coerced) summary() string {
	causes := make([]string, 0, len(c.Reasons))
	for k := range c.Reasons {
		causes = append(causes, k)
	}
	sort.Strings(causes)

	parts := make([]string, len(causes))
	for i, k := range causes {
		parts[i] = fmt.Sprintf("%s=%d", k, c.Reasons[k])
	}
	return strings.Join(parts, ", ")
}

// productColumns are the declared columns a Product is built from.
var productColumns = storedColumns(dataset.ProductSchema())

func storedColumns(s dataset.Schema) []dataset.Column {
	var cols []dataset.Column
	for _, c := range s.Columns {
		if c.Required {
			cols = append(cols, c)
		}
	}
	return cols
}

// coerceRow returns the product or the failing column and error.
func coerceRow(t *dataset.Table, r int) (Product, string, error) {
	var p Product
	for _, col := range productColumns {
		cell, err := col.Parse(t.Value(r, col.Name))
		if err != nil {
			return p, col.Name, err
		}
		p.set(col.Name, cell)
	}
	return p, "", nil
}

func (p *Product) set(column string, c dataset.Cell) {
	switch column {
	case dataset.ColASIN:
		p.ASIN = c.Str
	case dataset.ColTitle:
		p.Title = c.Str
	case dataset.ColStars:
		if !c.Null {
			v := c.Float
			p.Stars = &v
		}
	case dataset.ColReviews:
		p.Reviews = c.Int
	case dataset.ColPrice:
		if !c.Null {
			v := c.Float
			p.Price = &v
		}
	case dataset.ColBestSeller:
		p.IsBestSeller = c.Bool
	case dataset.ColBoughtLastMo:
		p.BoughtInLastMonth = c.Int
	case dataset.ColCategory:
		p.Category = c.Str
	}
}
