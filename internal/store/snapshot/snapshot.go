// Package snapshot persists coerced products as a Parquet file so a restart
// with an unchanged dataset skips CSV parsing and validation.
//
// The file carries the dataset fingerprint in its key-value metadata; a
// snapshot is only used when that fingerprint matches the acquired dataset.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/prodstats/internal/store"
)

// Metadata keys.
const (
	KeyVersion     = "prodstats.version"
	KeyFingerprint = "prodstats.fingerprint"
	KeyRejected    = "prodstats.rejected"
	KeyRows        = "prodstats.rows"
	KeyCreated     = "prodstats.created"
)

// Version is bumped whenever Row or the metadata keys change.
const Version = "2"

// ErrStale is returned when a snapshot does not match the wanted dataset.
var ErrStale = errors.New("snapshot is stale")

// Row is a product in Parquet format.
type Row struct {
	ASIN              string   `parquet:"asin,zstd"`
	Title             string   `parquet:"title,zstd"`
	Stars             *float64 `parquet:"stars,optional"`
	Reviews           int64    `parquet:"reviews"`
	Price             *float64 `parquet:"price,optional"`
	IsBestSeller      bool     `parquet:"is_best_seller"`
	BoughtInLastMonth int64    `parquet:"bought_in_last_month"`
	Category          string   `parquet:"category_name,dict,zstd"`
}

// Meta describes a snapshot.
type Meta struct {
	Fingerprint uint64
	Rejected    int64

	// Rows is the number of products written. Write sets it.
	Rows    int64
	Created time.Time
}

// Total returns the raw row count the products were coerced from.
func (m Meta) Total() int64 {
	return m.Rows + m.Rejected
}

// ProductToRow converts a Product to a Row.
func ProductToRow(p *store.Product) Row {
	return Row{
		ASIN:              p.ASIN,
		Title:             p.Title,
		Stars:             p.Stars,
		Reviews:           p.Reviews,
		Price:             p.Price,
		IsBestSeller:      p.IsBestSeller,
		BoughtInLastMonth: p.BoughtInLastMonth,
		Category:          p.Category,
	}
}

// RowToProduct converts a Row to a Product.
func RowToProduct(r *Row) store.Product {
	return store.Product{
		ASIN:              r.ASIN,
		Title:             r.Title,
		Stars:             r.Stars,
		Reviews:           r.Reviews,
		Price:             r.Price,
		IsBestSeller:      r.IsBestSeller,
		BoughtInLastMonth: r.BoughtInLastMonth,
		Category:          r.Category,
	}
}

// Write stores products at path. The file is written next to path and
// renamed into place.
func Write(path string, products []store.Product, meta Meta) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmpName := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpName)
		}
	}()

	if meta.Created.IsZero() {
		meta.Created = time.Now()
	}
	meta.Rows = int64(len(products))

	w := parquet.NewGenericWriter[Row](f,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(KeyVersion, Version),
		parquet.KeyValueMetadata(KeyFingerprint, strconv.FormatUint(meta.Fingerprint, 16)),
		parquet.KeyValueMetadata(KeyRejected, strconv.FormatInt(meta.Rejected, 10)),
		parquet.KeyValueMetadata(KeyRows, strconv.FormatInt(meta.Rows, 10)),
		parquet.KeyValueMetadata(KeyCreated, meta.Created.UTC().Format(time.RFC3339)),
	)

	const batch = 8192
	rows := make([]Row, 0, batch)
	for i := range products {
		rows = append(rows, ProductToRow(&products[i]))
		if len(rows) == batch {
			if _, err = w.Write(rows); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err = w.Write(rows); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ReadMeta reads only the metadata of the snapshot at path.
func ReadMeta(path string) (Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, err
	}
	defer f.Close()

	pf, err := openFile(f)
	if err != nil {
		return Meta{}, err
	}
	return parseMeta(pf)
}

// Read loads the snapshot at path if its fingerprint equals want.
// A mismatch returns ErrStale.
func Read(path string, want uint64) ([]store.Product, Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Meta{}, err
	}
	defer f.Close()

	pf, err := openFile(f)
	if err != nil {
		return nil, Meta{}, err
	}
	meta, err := parseMeta(pf)
	if err != nil {
		return nil, Meta{}, err
	}
	if meta.Fingerprint != want {
		return nil, meta, ErrStale
	}

	if n := pf.NumRows(); n != meta.Rows {
		return nil, meta, fmt.Errorf("snapshot truncated: file holds %d of %d rows", n, meta.Rows)
	}

	r := parquet.NewGenericReader[Row](f)
	defer r.Close()

	rows := make([]Row, meta.Rows)
	total := 0
	for total < len(rows) {
		n, err := r.Read(rows[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, meta, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if int64(total) != meta.Rows {
		return nil, meta, fmt.Errorf("snapshot truncated: read %d of %d rows", total, meta.Rows)
	}

	products := make([]store.Product, total)
	for i := 0; i < total; i++ {
		products[i] = RowToProduct(&rows[i])
	}
	return products, meta, nil
}

// Remove deletes the snapshot. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns the snapshot file size and whether it exists.
func Size(path string) (int64, bool) {
	if path == "" {
		return 0, false
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return 0, false
	}
	return fi.Size(), true
}

func openFile(f *os.File) (*parquet.File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return pf, nil
}

func parseMeta(pf *parquet.File) (Meta, error) {
	if v, _ := pf.Lookup(KeyVersion); v != Version {
		return Meta{}, fmt.Errorf("%w: version %q, want %q", ErrStale, v, Version)
	}

	var meta Meta

	fp, ok := pf.Lookup(KeyFingerprint)
	if !ok {
		return Meta{}, fmt.Errorf("%w: no fingerprint", ErrStale)
	}
	var err error
	if meta.Fingerprint, err = strconv.ParseUint(fp, 16, 64); err != nil {
		return Meta{}, fmt.Errorf("parse fingerprint: %w", err)
	}

	rows, ok := pf.Lookup(KeyRows)
	if !ok {
		return Meta{}, fmt.Errorf("%w: no row count", ErrStale)
	}
	if meta.Rows, err = strconv.ParseInt(rows, 10, 64); err != nil {
		return Meta{}, fmt.Errorf("parse row count: %w", err)
	}

	if v, ok := pf.Lookup(KeyRejected); ok {
		meta.Rejected, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := pf.Lookup(KeyCreated); ok {
		meta.Created, _ = time.Parse(time.RFC3339, v)
	}
	return meta, nil
}
