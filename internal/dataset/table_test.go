package dataset

import (
	"bytes"
	"strings"
	"testing"

	perrors "github.com/xtxerr/prodstats/internal/errors"
	testutil "github.com/xtxerr/prodstats/internal/testing"
)

func TestReadTable(t *testing.T) {
	data := testutil.ProductsCSV(testutil.ScenarioRows())

	tbl, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if tbl.Len() != 5 {
		t.Fatalf("Len = %d, want 5", tbl.Len())
	}
	for _, name := range ProductSchema().Required() {
		if !tbl.HasColumn(name) {
			t.Errorf("missing column %q", name)
		}
	}
	if got := tbl.Value(0, ColCategory); got != "A" {
		t.Errorf("row 0 category = %q", got)
	}
	if got := tbl.Value(4, ColStars); got != "" {
		t.Errorf("row 4 stars = %q, want empty", got)
	}
	if got := tbl.Value(0, "nope"); got != "" {
		t.Errorf("absent column = %q, want empty", got)
	}
}

func TestReadTable_BOMAndShortRows(t *testing.T) {
	in := "\ufeffasin, stars ,categoryName\nX1,4.5,Books\nX2\n"

	tbl, err := ReadTable(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if !tbl.HasColumn(ColASIN) || !tbl.HasColumn(ColStars) {
		t.Fatalf("header not normalized: %v", tbl.Header)
	}
	if len(tbl.Rows[1]) != 3 {
		t.Errorf("short row not padded: %v", tbl.Rows[1])
	}
	if got := tbl.Value(1, ColCategory); got != "" {
		t.Errorf("padded cell = %q", got)
	}
}

func TestReadTable_Empty(t *testing.T) {
	_, err := ReadTable(strings.NewReader(""))
	if !perrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		valid   bool
		wantErr bool
	}{
		{"4.5", 4.5, true, false},
		{"0", 0, true, false},
		{"5", 5, true, false},
		{"", 0, false, false},
		{"NaN", 0, false, false},
		{"5.1", 0, false, true},
		{"-1", 0, false, true},
		{"abc", 0, false, true},
	}

	for _, tt := range tests {
		v, valid, err := ParseRating(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRating(%q) err = %v", tt.in, err)
			continue
		}
		if valid != tt.valid || v != tt.want {
			t.Errorf("ParseRating(%q) = %v, %v", tt.in, v, valid)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		valid   bool
		wantErr bool
	}{
		{"£1,299.50", 1299.5, true, false},
		{"21.99", 21.99, true, false},
		{"", 0, false, false},
		{"£", 0, false, false},
		{"-3", 0, false, true},
		{"free", 0, false, true},
		{"Inf", 0, false, true},
		{"+Inf", 0, false, true},
		{"£-Inf", 0, false, true},
	}

	for _, tt := range tests {
		v, valid, err := ParsePrice(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePrice(%q) err = %v", tt.in, err)
			continue
		}
		if valid != tt.valid || v != tt.want {
			t.Errorf("ParsePrice(%q) = %v, %v", tt.in, v, valid)
		}
	}
}

func TestParseCountAndBool(t *testing.T) {
	if n, err := ParseCount("12.0"); err != nil || n != 12 {
		t.Errorf("ParseCount(12.0) = %d, %v", n, err)
	}
	if n, err := ParseCount(""); err != nil || n != 0 {
		t.Errorf("ParseCount('') = %d, %v", n, err)
	}
	if _, err := ParseCount("1.5"); err == nil {
		t.Error("ParseCount(1.5) should fail")
	}
	if _, err := ParseCount("-2"); err == nil {
		t.Error("ParseCount(-2) should fail")
	}

	if b, err := ParseBool("True"); err != nil || !b {
		t.Errorf("ParseBool(True) = %v, %v", b, err)
	}
	if b, err := ParseBool(""); err != nil || b {
		t.Errorf("ParseBool('') = %v, %v", b, err)
	}
	if _, err := ParseBool("maybe"); err == nil {
		t.Error("ParseBool(maybe) should fail")
	}
}

func TestColumnParse(t *testing.T) {
	schema := ProductSchema()
	col := func(name string) Column {
		c, ok := schema.Lookup(name)
		if !ok {
			t.Fatalf("column %s not declared", name)
		}
		return c
	}

	tests := []struct {
		column  string
		raw     string
		want    Cell
		wantErr bool
	}{
		{ColASIN, "B01", Cell{Str: "B01"}, false},
		{ColASIN, "", Cell{}, true},
		{ColTitle, "", Cell{Null: true}, false},
		{ColCategory, "", Cell{}, true},
		{ColStars, "4.5", Cell{Float: 4.5}, false},
		{ColStars, "", Cell{Null: true}, false},
		{ColStars, "7", Cell{}, true},
		{ColPrice, "£3.50", Cell{Float: 3.5}, false},
		{ColPrice, "Inf", Cell{}, true},
		{ColReviews, "", Cell{}, false},
		{ColReviews, "12", Cell{Int: 12}, false},
		{ColBestSeller, "True", Cell{Bool: true}, false},
		{ColBestSeller, "maybe", Cell{}, true},
	}

	for _, tt := range tests {
		got, err := col(tt.column).Parse(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Parse(%q) err = %v", tt.column, tt.raw, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("%s.Parse(%q) = %+v, want %+v", tt.column, tt.raw, got, tt.want)
		}
	}
}

func TestColumnParse_NotNullable(t *testing.T) {
	c := Column{Name: "score", Type: TypeRating}
	if _, err := c.Parse(""); err == nil {
		t.Error("null in a non-nullable rating column should fail")
	}
	if _, err := (Column{Name: "x", Type: ColumnType(99)}).Parse("1"); err == nil {
		t.Error("unknown type should fail")
	}
}
