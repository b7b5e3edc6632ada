package testing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// ProductHeader is the header of the products CSV.
var ProductHeader = []string{
	"asin", "title", "imgUrl", "productURL", "stars", "reviews",
	"price", "isBestSeller", "boughtInLastMonth", "categoryName",
}

// Row is one synthetic product. A nil Stars writes an empty cell.
type Row struct {
	ASIN     string
	Category string
	Stars    *float64
	Price    string
	Reviews  string
	Bought   string
	Best     string
}

// Stars returns a pointer to v, for Row literals.
func Stars(v float64) *float64 {
	return &v
}

// Record renders the row as CSV fields.
func (r Row) Record(i int) []string {
	asin := r.ASIN
	if asin == "" {
		asin = fmt.Sprintf("B%09d", i)
	}
	stars := ""
	if r.Stars != nil {
		stars = strconv.FormatFloat(*r.Stars, 'f', -1, 64)
	}
	price := r.Price
	if price == "" {
		price = "9.99"
	}
	reviews := r.Reviews
	if reviews == "" {
		reviews = "10"
	}
	bought := r.Bought
	if bought == "" {
		bought = "0"
	}
	best := r.Best
	if best == "" {
		best = "False"
	}
	return []string{
		asin,
		"Product " + asin,
		"https://img.example/" + asin + ".jpg",
		"https://www.amazon.co.uk/dp/" + asin,
		stars,
		reviews,
		price,
		best,
		bought,
		r.Category,
	}
}

// ProductsCSV renders rows as a products CSV with header.
func ProductsCSV(rows []Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(ProductHeader)
	for i, r := range rows {
		w.Write(r.Record(i))
	}
	w.Flush()
	return buf.Bytes()
}

// SyntheticRows generates n rows spread round-robin over categories.
// Ratings cycle through 1.0..5.0 in steps of 0.5, shifted per category so
// category means differ.
func SyntheticRows(n int, categories ...string) []Row {
	if len(categories) == 0 {
		categories = []string{"Books", "Electronics", "Garden", "Toys"}
	}
	rows := make([]Row, n)
	for i := range rows {
		c := i % len(categories)
		v := 1.0 + float64((i/len(categories)+c)%9)*0.5
		rows[i] = Row{
			Category: categories[c],
			Stars:    Stars(v),
			Price:    fmt.Sprintf("£%d.99", 1+i%50),
		}
	}
	return rows
}

// ScenarioRows is the five-row fixture {A:[1,2], B:[4,5], C:[null]}.
func ScenarioRows() []Row {
	return []Row{
		{Category: "A", Stars: Stars(1)},
		{Category: "A", Stars: Stars(2)},
		{Category: "B", Stars: Stars(4)},
		{Category: "B", Stars: Stars(5)},
		{Category: "C"},
	}
}

// WriteCSV writes rows to name inside a fresh temp dir and returns the path.
func WriteCSV(t testing.TB, name string, rows []Row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, ProductsCSV(rows), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
