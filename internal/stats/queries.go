package stats

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
)

const categoryStatsQuery = `
	SELECT
		category_name,
		COUNT(*)       AS n,
		COUNT(stars)   AS rated,
		AVG(stars)     AS mean,
		VAR_POP(stars) AS variance,
		MIN(stars)     AS min_rating,
		MAX(stars)     AS max_rating
	FROM products
	GROUP BY category_name
	ORDER BY category_name
`

const globalStatsQuery = `
	SELECT
		COUNT(*),
		COUNT(DISTINCT category_name),
		COUNT(stars),
		AVG(stars),
		VAR_POP(stars),
		MIN(stars),
		MAX(stars)
	FROM products
`

const distributionQuery = `
	SELECT
		category_name,
		COUNT(*)   AS n,
		AVG(stars) AS mean,
		MIN(stars) AS min_rating,
		MAX(stars) AS max_rating
	FROM products
	GROUP BY category_name
	ORDER BY n DESC, category_name ASC
`

func queryCategoryStats(ctx context.Context, db *sql.DB) ([]CategorySummary, error) {
	rows, err := db.QueryContext(ctx, categoryStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("query category stats: %w", err)
	}
	defer rows.Close()

	var out []CategorySummary
	for rows.Next() {
		var (
			c                        CategorySummary
			mean, variance, min, max sql.NullFloat64
		)
		if err := rows.Scan(&c.Category, &c.Count, &c.RatedCount, &mean, &variance, &min, &max); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		c.Mean = ptr(mean)
		c.Variance, c.Std = spread(variance)
		c.Min = ptr(min)
		c.Max = ptr(max)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category stats: %w", err)
	}
	return out, nil
}

func queryGlobalStats(ctx context.Context, db *sql.DB) (GlobalStats, error) {
	var (
		g                        GlobalStats
		mean, variance, min, max sql.NullFloat64
	)
	err := db.QueryRowContext(ctx, globalStatsQuery).Scan(
		&g.TotalProducts, &g.Categories, &g.RatedProducts, &mean, &variance, &min, &max)
	if err != nil {
		return g, fmt.Errorf("query global stats: %w", err)
	}
	g.Mean = ptr(mean)
	g.Variance, g.Std = spread(variance)
	g.Min = ptr(min)
	g.Max = ptr(max)
	return g, nil
}

func queryDistribution(ctx context.Context, db *sql.DB) ([]DistributionEntry, error) {
	rows, err := db.QueryContext(ctx, distributionQuery)
	if err != nil {
		return nil, fmt.Errorf("query distribution: %w", err)
	}
	defer rows.Close()

	var (
		out   []DistributionEntry
		total int64
	)
	for rows.Next() {
		var (
			d              DistributionEntry
			mean, min, max sql.NullFloat64
		)
		if err := rows.Scan(&d.Category, &d.Count, &mean, &min, &max); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		d.Mean, d.Min, d.Max = ptr(mean), ptr(min), ptr(max)
		total += d.Count
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distribution: %w", err)
	}

	for i := range out {
		out[i].Share = float64(out[i].Count) / float64(total)
	}
	return out, nil
}

// zScoreOutliers evaluates categories against the distribution of their
// means. minSize excludes small categories from both the distribution and
// the result.
func zScoreOutliers(cats []CategorySummary, threshold float64, minSize int) []Outlier {
	var eligible []CategorySummary
	for _, c := range cats {
		if c.Mean != nil && c.Count >= int64(minSize) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) < 2 {
		return []Outlier{}
	}

	var sum float64
	for _, c := range eligible {
		sum += *c.Mean
	}
	mu := sum / float64(len(eligible))

	var sq float64
	for _, c := range eligible {
		d := *c.Mean - mu
		sq += d * d
	}
	sigma := math.Sqrt(sq / float64(len(eligible)))
	if sigma == 0 {
		return []Outlier{}
	}

	out := []Outlier{}
	for _, c := range eligible {
		z := (*c.Mean - mu) / sigma
		if math.Abs(z) < threshold {
			continue
		}
		out = append(out, Outlier{
			Category:     c.Category,
			MeanRating:   *c.Mean,
			ZScore:       z,
			GlobalMean:   mu,
			GlobalStd:    sigma,
			Threshold:    threshold,
			ProductCount: c.Count,
			IsHigh:       z > 0,
			IsLow:        z < 0,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].ZScore), math.Abs(out[j].ZScore)
		if ai != aj {
			return ai > aj
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// lowVariability returns every eligible category ordered by (std asc,
// category asc).
func lowVariability(cats []CategorySummary, minSize int) []Variability {
	out := []Variability{}
	for _, c := range cats {
		if c.Std == nil || c.Count < int64(minSize) {
			continue
		}
		out = append(out, Variability{
			Category:   c.Category,
			Std:        *c.Std,
			Variance:   *c.Variance,
			Mean:       *c.Mean,
			Count:      c.Count,
			RatedCount: c.RatedCount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Std != out[j].Std {
			return out[i].Std < out[j].Std
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func reverse(v []Variability) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

func truncate(v []Variability, limit int) []Variability {
	if limit < len(v) {
		return v[:limit]
	}
	return v
}

func ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// spread derives std from the population variance so variance == std².
func spread(v sql.NullFloat64) (variance, std *float64) {
	if !v.Valid {
		return nil, nil
	}
	vr := math.Max(v.Float64, 0)
	sd := math.Sqrt(vr)
	return &vr, &sd
}
