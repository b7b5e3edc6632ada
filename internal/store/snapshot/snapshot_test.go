package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/prodstats/internal/store"
)

func products() []store.Product {
	four, price := 4.0, 12.5
	return []store.Product{
		{ASIN: "B1", Title: "One", Stars: &four, Reviews: 3, Price: &price, Category: "Books"},
		{ASIN: "B2", Title: "Two", Reviews: 0, IsBestSeller: true, BoughtInLastMonth: 50, Category: "Toys"},
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "products.parquet")

	if err := Write(path, products(), Meta{Fingerprint: 0xdeadbeef, Rejected: 7}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	size, ok := Size(path)
	if !ok || size == 0 {
		t.Fatalf("Size = %d, %v", size, ok)
	}

	meta, err := ReadMeta(path)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.Fingerprint != 0xdeadbeef || meta.Rejected != 7 || meta.Rows != 2 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Total() != 9 {
		t.Errorf("Total = %d, want 9", meta.Total())
	}
	if meta.Created.IsZero() {
		t.Error("created time not recorded")
	}

	got, _, err := Read(path, 0xdeadbeef)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d products", len(got))
	}
	if got[0].Stars == nil || *got[0].Stars != 4 || got[0].Price == nil || *got[0].Price != 12.5 {
		t.Errorf("product 0 = %+v", got[0])
	}
	if got[1].Stars != nil || got[1].Price != nil {
		t.Error("nulls not preserved")
	}
	if !got[1].IsBestSeller || got[1].BoughtInLastMonth != 50 || got[1].Category != "Toys" {
		t.Errorf("product 1 = %+v", got[1])
	}
}

func TestRead_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.parquet")
	if err := Write(path, products(), Meta{Fingerprint: 1}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Read(path, 2); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

// writeRaw writes rows with hand-picked metadata.
func writeRaw(t *testing.T, path string, rows []Row, kv ...string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	opts := []parquet.WriterOption{parquet.KeyValueMetadata(KeyVersion, Version)}
	for i := 0; i+1 < len(kv); i += 2 {
		opts = append(opts, parquet.KeyValueMetadata(kv[i], kv[i+1]))
	}
	w := parquet.NewGenericWriter[Row](f, opts...)
	if _, err := w.Write(rows); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRead_RowCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.parquet")
	p := products()
	writeRaw(t, path, []Row{ProductToRow(&p[0]), ProductToRow(&p[1])},
		KeyFingerprint, "1", KeyRows, "5")

	_, _, err := Read(path, 1)
	if err == nil || !strings.Contains(err.Error(), "truncated") {
		t.Fatalf("expected truncation error, got %v", err)
	}
}

func TestRead_MissingRowCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.parquet")
	p := products()
	writeRaw(t, path, []Row{ProductToRow(&p[0])}, KeyFingerprint, "1")

	if _, _, err := Read(path, 1); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestRead_NotParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.parquet")
	if err := os.WriteFile(path, []byte("asin,stars\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Read(path, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.parquet")
	if err := Write(path, products(), Meta{}); err != nil {
		t.Fatal(err)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := Size(path); ok {
		t.Error("snapshot should be gone")
	}
	if err := Remove(path); err != nil {
		t.Errorf("second Remove: %v", err)
	}

	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 0 {
		t.Errorf("dir has %d entries", len(entries))
	}
}
