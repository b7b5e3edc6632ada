package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/prodstats/internal/profile"
)

// Table is the name of the products table.
const Table = "products"

const createTable = `
	CREATE TABLE products (
		asin                 VARCHAR NOT NULL,
		title                VARCHAR,
		stars                DOUBLE,
		reviews              BIGINT  NOT NULL,
		price                DOUBLE,
		is_best_seller       BOOLEAN NOT NULL,
		bought_in_last_month BIGINT  NOT NULL,
		category_name        VARCHAR NOT NULL
	)`

var postLoad = []string{
	"CREATE INDEX idx_products_category ON products (category_name)",
	"CREATE INDEX idx_products_stars ON products (stars)",
	"ANALYZE",
}

// ctxCheckEvery is how many appended rows pass between context checks.
const ctxCheckEvery = 1 << 16

// Build creates a fresh in-memory DuckDB holding products. The handle is
// not published; see Swap.
func (s *Store) Build(ctx context.Context, products []Product, rejected int64) (*Handle, error) {
	start := time.Now()

	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db := sql.OpenDB(connector)

	h := &Handle{
		db:       db,
		rows:     int64(len(products)),
		rejected: rejected,
		ratings:  profile.NewNumeric(s.opts.SketchAccuracy),
	}

	if s.opts.Threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads = %d", s.opts.Threads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if err := appendProducts(ctx, connector, products, h.ratings); err != nil {
		db.Close()
		return nil, err
	}

	for _, stmt := range postLoad {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
	}

	h.loadedAt = time.Now()
	s.log.Debug("store built",
		"rows", h.rows,
		"rejected", rejected,
		"duration", time.Since(start).Round(time.Millisecond))

	return h, nil
}

// appendProducts bulk-inserts through the DuckDB appender and feeds the
// rating sketch in the same pass.
func appendProducts(ctx context.Context, connector *duckdb.Connector, products []Product, ratings *profile.Numeric) error {
	conn, err := connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	app, err := duckdb.NewAppenderFromConn(conn, "", Table)
	if err != nil {
		return fmt.Errorf("create appender: %w", err)
	}

	for i := range products {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				app.Close()
				return err
			}
		}

		p := &products[i]
		if err := app.AppendRow(
			p.ASIN,
			p.Title,
			nullFloat(p.Stars),
			p.Reviews,
			nullFloat(p.Price),
			p.IsBestSeller,
			p.BoughtInLastMonth,
			p.Category,
		); err != nil {
			app.Close()
			return fmt.Errorf("append row %d: %w", i, err)
		}

		if p.Stars != nil {
			ratings.Add(*p.Stars)
		} else {
			ratings.AddNull()
		}
	}

	if err := app.Close(); err != nil {
		return fmt.Errorf("flush appender: %w", err)
	}
	return nil
}

func nullFloat(v *float64) driver.Value {
	if v == nil {
		return nil
	}
	return *v
}
