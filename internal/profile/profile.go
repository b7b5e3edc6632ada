package profile

import (
	"sort"
)

// Profile is a single-pass data quality profile of the products table.
type Profile struct {
	Rows int64

	Rating *Numeric
	Price  *Numeric

	// categories maps category name to row count.
	categories    map[string]int64
	emptyCategory int64

	seenIDs      map[string]struct{}
	duplicateIDs int64
}

// Summary is the serializable form of a Profile.
type Summary struct {
	Rows          int64          `json:"rows"`
	Rating        NumericSummary `json:"rating"`
	Price         NumericSummary `json:"price"`
	Categories    int            `json:"categories"`
	EmptyCategory int64          `json:"empty_category_rows"`
	DuplicateIDs  int64          `json:"duplicate_ids"`
	TopCategories []CategoryRows `json:"top_categories,omitempty"`
}

// CategoryRows is a category with its row count.
type CategoryRows struct {
	Category string `json:"category"`
	Rows     int64  `json:"rows"`
}

// New creates an empty Profile.
func New(accuracy float64) *Profile {
	return &Profile{
		Rating:     NewNumeric(accuracy),
		Price:      NewNumeric(accuracy),
		categories: make(map[string]int64),
		seenIDs:    make(map[string]struct{}),
	}
}

// AddRow records the identifier and category of one row. Rating and price
// are recorded through the Numeric fields.
// Not safe for concurrent use.
func (p *Profile) AddRow(id, category string) {
	p.Rows++

	if id != "" {
		if _, dup := p.seenIDs[id]; dup {
			p.duplicateIDs++
		} else {
			p.seenIDs[id] = struct{}{}
		}
	}

	if category == "" {
		p.emptyCategory++
		return
	}
	p.categories[category]++
}

// DistinctCategories returns the number of non-empty categories.
func (p *Profile) DistinctCategories() int {
	return len(p.categories)
}

// DuplicateIDs returns how many rows repeat an earlier identifier.
func (p *Profile) DuplicateIDs() int64 {
	return p.duplicateIDs
}

// EmptyCategoryRows returns how many rows have no category.
func (p *Profile) EmptyCategoryRows() int64 {
	return p.emptyCategory
}

// Top returns the n largest categories by row count, ties by name.
func (p *Profile) Top(n int) []CategoryRows {
	out := make([]CategoryRows, 0, len(p.categories))
	for c, rows := range p.categories {
		out = append(out, CategoryRows{Category: c, Rows: rows})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rows != out[j].Rows {
			return out[i].Rows > out[j].Rows
		}
		return out[i].Category < out[j].Category
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Summary returns the serializable profile.
func (p *Profile) Summary() Summary {
	return Summary{
		Rows:          p.Rows,
		Rating:        p.Rating.Summary(),
		Price:         p.Price.Summary(),
		Categories:    len(p.categories),
		EmptyCategory: p.emptyCategory,
		DuplicateIDs:  p.duplicateIDs,
		TopCategories: p.Top(5),
	}
}
