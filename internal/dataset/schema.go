// Package dataset acquires the raw product dataset and reads it against an
// explicitly declared schema.
//
// Column types are declared here rather than inferred from the file, so
// coercion failures are deterministic: the same file always rejects the
// same rows.
package dataset

import "fmt"

// ColumnType is the declared type of a dataset column.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeRating
	TypeInt
	TypeBool
	TypePrice
)

// String returns the type name.
func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeRating:
		return "rating"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypePrice:
		return "price"
	default:
		return "unknown"
	}
}

// Column declares one column of the dataset.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
	Nullable bool
}

// Cell is a cell parsed according to its column's declared type. Only the
// field matching the type is set.
type Cell struct {
	Str   string
	Float float64
	Int   int64
	Bool  bool
	Null  bool
}

// Parse converts a raw cell to the column's declared type.
//
// A null cell in a nullable column yields Null. In a non-nullable string
// column it is an error; counts and booleans read it as zero.
func (c Column) Parse(raw string) (Cell, error) {
	var cell Cell
	switch c.Type {
	case TypeString:
		if raw == "" {
			if !c.Nullable {
				return cell, fmt.Errorf("empty %s", c.Name)
			}
			cell.Null = true
		}
		cell.Str = raw
	case TypeRating:
		v, ok, err := ParseRating(raw)
		if err != nil {
			return cell, err
		}
		cell.Float, cell.Null = v, !ok
	case TypePrice:
		v, ok, err := ParsePrice(raw)
		if err != nil {
			return cell, err
		}
		cell.Float, cell.Null = v, !ok
	case TypeInt:
		n, err := ParseCount(raw)
		if err != nil {
			return cell, err
		}
		cell.Int = n
	case TypeBool:
		b, err := ParseBool(raw)
		if err != nil {
			return cell, err
		}
		cell.Bool = b
	default:
		return cell, fmt.Errorf("column %s: unsupported type %s", c.Name, c.Type)
	}
	if cell.Null && !c.Nullable {
		return Cell{}, fmt.Errorf("%s column %s is not nullable", c.Type, c.Name)
	}
	return cell, nil
}

// Column names of the Amazon UK products file.
const (
	ColASIN         = "asin"
	ColTitle        = "title"
	ColImgURL       = "imgUrl"
	ColProductURL   = "productURL"
	ColStars        = "stars"
	ColReviews      = "reviews"
	ColPrice        = "price"
	ColBestSeller   = "isBestSeller"
	ColBoughtLastMo = "boughtInLastMonth"
	ColCategory     = "categoryName"
)

// Rating bounds.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Schema is the declared column set.
type Schema struct {
	Columns []Column
}

// ProductSchema returns the declared schema of the products dataset.
func ProductSchema() Schema {
	return Schema{Columns: []Column{
		{Name: ColASIN, Type: TypeString, Required: true},
		{Name: ColTitle, Type: TypeString, Required: true, Nullable: true},
		{Name: ColImgURL, Type: TypeString, Nullable: true},
		{Name: ColProductURL, Type: TypeString, Nullable: true},
		{Name: ColStars, Type: TypeRating, Required: true, Nullable: true},
		{Name: ColReviews, Type: TypeInt, Required: true},
		{Name: ColPrice, Type: TypePrice, Required: true, Nullable: true},
		{Name: ColBestSeller, Type: TypeBool, Required: true},
		{Name: ColBoughtLastMo, Type: TypeInt, Required: true},
		{Name: ColCategory, Type: TypeString, Required: true},
	}}
}

// Required returns the names of required columns in declaration order.
func (s Schema) Required() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Required {
			names = append(names, c.Name)
		}
	}
	return names
}

// Lookup returns the column declaration by name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
