package stats

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/xtxerr/prodstats/internal/dataset"
	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/store"
	testutil "github.com/xtxerr/prodstats/internal/testing"
)

const eps = 1e-9

func loaded(t *testing.T, rows []testutil.Row, opts Options) *Engine {
	t.Helper()

	tbl, err := dataset.ReadTable(bytes.NewReader(testutil.ProductsCSV(rows)))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}

	s := store.New(store.DefaultOptions())
	t.Cleanup(func() { s.Close() })
	if _, err := s.Load(context.Background(), tbl); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return NewEngine(s, opts, nil)
}

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestScenario_CategoryStats(t *testing.T) {
	e := loaded(t, testutil.ScenarioRows(), Options{})

	cats, err := e.CategoryStats(context.Background())
	if err != nil {
		t.Fatalf("CategoryStats: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("got %d categories", len(cats))
	}

	a, b, c := cats[0], cats[1], cats[2]
	if a.Category != "A" || b.Category != "B" || c.Category != "C" {
		t.Fatalf("order = %s,%s,%s", a.Category, b.Category, c.Category)
	}
	if a.Count != 2 || !near(*a.Mean, 1.5) || !near(*a.Std, 0.5) || !near(*a.Variance, 0.25) {
		t.Errorf("A = %+v", a)
	}
	if *a.Min != 1 || *a.Max != 2 {
		t.Errorf("A min/max = %v/%v", *a.Min, *a.Max)
	}
	if !near(*b.Mean, 4.5) || !near(*b.Std, 0.5) {
		t.Errorf("B = %+v", b)
	}
	if c.Count != 1 || c.RatedCount != 0 || c.Mean != nil || c.Std != nil || c.Variance != nil {
		t.Errorf("C should have null statistics: %+v", c)
	}
}

func TestScenario_GlobalStats(t *testing.T) {
	e := loaded(t, testutil.ScenarioRows(), Options{})

	g, err := e.GlobalStats(context.Background())
	if err != nil {
		t.Fatalf("GlobalStats: %v", err)
	}
	if g.TotalProducts != 5 || g.Categories != 3 || g.RatedProducts != 4 {
		t.Errorf("counts = %+v", g)
	}
	if !near(*g.Mean, 3) || !near(*g.Variance, 2.5) || !near(*g.Std, math.Sqrt(2.5)) {
		t.Errorf("mean/var/std = %v/%v/%v", *g.Mean, *g.Variance, *g.Std)
	}
	if *g.Min != 1 || *g.Max != 5 {
		t.Errorf("min/max = %v/%v", *g.Min, *g.Max)
	}
	if g.P50 == nil || *g.P50 < 1 || *g.P50 > 5 {
		t.Errorf("median = %v", g.P50)
	}
	if g.Generation != 1 {
		t.Errorf("generation = %d", g.Generation)
	}
}

func TestScenario_ZScoreOutliers(t *testing.T) {
	e := loaded(t, testutil.ScenarioRows(), Options{})
	ctx := context.Background()

	out, err := e.ZScoreOutliers(ctx, 1)
	if err != nil {
		t.Fatalf("ZScoreOutliers: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d outliers, want 2", len(out))
	}
	if out[0].Category != "A" || out[1].Category != "B" {
		t.Errorf("order = %s,%s", out[0].Category, out[1].Category)
	}
	if !near(out[0].ZScore, -1) || !near(out[1].ZScore, 1) {
		t.Errorf("z = %v,%v", out[0].ZScore, out[1].ZScore)
	}
	if !out[0].IsLow || out[0].IsHigh || !out[1].IsHigh {
		t.Error("high/low flags wrong")
	}
	if !near(out[0].GlobalMean, 3) || !near(out[0].GlobalStd, 1.5) {
		t.Errorf("global mean/std = %v/%v", out[0].GlobalMean, out[0].GlobalStd)
	}

	out, err = e.ZScoreOutliers(ctx, 1.01)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("threshold above |z| should yield nothing, got %d", len(out))
	}
}

func TestScenario_Variability(t *testing.T) {
	e := loaded(t, testutil.ScenarioRows(), Options{})
	ctx := context.Background()

	low, err := e.LowVariability(ctx, Unlimited)
	if err != nil {
		t.Fatal(err)
	}
	high, err := e.HighVariability(ctx, Unlimited)
	if err != nil {
		t.Fatal(err)
	}

	if len(low) != 2 || low[0].Category != "A" || low[1].Category != "B" {
		t.Errorf("low = %+v", low)
	}
	if len(high) != 2 || high[0].Category != "B" || high[1].Category != "A" {
		t.Errorf("high = %+v", high)
	}

	one, err := e.HighVariability(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].Category != "B" {
		t.Errorf("high(1) = %+v", one)
	}
}

func TestScenario_Distribution(t *testing.T) {
	e := loaded(t, testutil.ScenarioRows(), Options{})

	d, err := e.CategoryDistribution(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		cat   string
		count int64
		share float64
	}{{"A", 2, 0.4}, {"B", 2, 0.4}, {"C", 1, 0.2}}

	if len(d) != len(want) {
		t.Fatalf("got %d entries", len(d))
	}
	for i, w := range want {
		if d[i].Category != w.cat || d[i].Count != w.count || !near(d[i].Share, w.share) {
			t.Errorf("entry %d = %+v, want %+v", i, d[i], w)
		}
	}
	if d[2].Mean != nil {
		t.Error("C mean should be nil")
	}
}

func TestMinCategorySize(t *testing.T) {
	e := loaded(t, testutil.ScenarioRows(), Options{MinCategorySize: 3})
	ctx := context.Background()

	out, err := e.ZScoreOutliers(ctx, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("outliers = %+v", out)
	}

	low, err := e.LowVariability(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 0 {
		t.Errorf("low = %+v", low)
	}

	// category stats are not filtered
	cats, _ := e.CategoryStats(ctx)
	if len(cats) != 3 {
		t.Errorf("category stats = %d", len(cats))
	}
}

func TestInvalidParameters(t *testing.T) {
	e := loaded(t, testutil.ScenarioRows(), Options{})
	ctx := context.Background()

	for _, th := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := e.ZScoreOutliers(ctx, th); !perrors.IsInvalidParameter(err) {
			t.Errorf("threshold %v: expected invalid parameter, got %v", th, err)
		}
	}
	for _, l := range []int{0, -5} {
		if _, err := e.HighVariability(ctx, l); !perrors.IsInvalidParameter(err) {
			t.Errorf("limit %d: expected invalid parameter, got %v", l, err)
		}
		if _, err := e.LowVariability(ctx, l); !perrors.IsInvalidParameter(err) {
			t.Errorf("limit %d: expected invalid parameter, got %v", l, err)
		}
	}
}

func TestNotLoaded(t *testing.T) {
	s := store.New(store.DefaultOptions())
	defer s.Close()
	e := NewEngine(s, Options{Workers: 1}, nil)
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["category"] = e.CategoryStats(ctx)
	_, checks["outliers"] = e.ZScoreOutliers(ctx, 1.75)
	_, checks["high"] = e.HighVariability(ctx, 5)
	_, checks["low"] = e.LowVariability(ctx, 5)
	_, checks["global"] = e.GlobalStats(ctx)
	_, checks["distribution"] = e.CategoryDistribution(ctx)
	_, checks["summary"] = e.Summary(ctx)

	for name, err := range checks {
		if !perrors.IsNotLoaded(err) {
			t.Errorf("%s: expected StoreNotLoaded, got %v", name, err)
		}
	}
}

func TestProperties(t *testing.T) {
	cats := []string{"Books", "Electronics", "Garden", "Toys", "Music", "Baby", "Sports"}
	rows := testutil.SyntheticRows(700, cats...)
	for i := 0; i < 30; i++ {
		rows = append(rows, testutil.Row{Category: cats[i%len(cats)]})
	}
	e := loaded(t, rows, Options{Workers: 2})
	ctx := context.Background()

	g, err := e.GlobalStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := e.CategoryStats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("counts sum to total", func(t *testing.T) {
		var sum int64
		for _, c := range cs {
			sum += c.Count
		}
		if sum != g.TotalProducts || g.TotalProducts != 730 {
			t.Errorf("sum=%d total=%d", sum, g.TotalProducts)
		}
	})

	t.Run("variance is std squared", func(t *testing.T) {
		for _, c := range cs {
			if c.Std == nil {
				continue
			}
			if *c.Std < 0 || math.Abs(*c.Variance-*c.Std**c.Std) > 1e-12 {
				t.Errorf("%s: std=%v var=%v", c.Category, *c.Std, *c.Variance)
			}
		}
	})

	t.Run("outliers shrink with threshold", func(t *testing.T) {
		prev := map[string]bool{}
		first := true
		for _, th := range []float64{0.1, 0.5, 1, 1.5, 2, 3} {
			out, err := e.ZScoreOutliers(ctx, th)
			if err != nil {
				t.Fatal(err)
			}
			cur := map[string]bool{}
			for _, o := range out {
				cur[o.Category] = true
				if math.Abs(o.ZScore) < th {
					t.Errorf("threshold %v admitted z=%v", th, o.ZScore)
				}
				if !first && !prev[o.Category] {
					t.Errorf("threshold %v added %s", th, o.Category)
				}
			}
			prev, first = cur, false
		}
	})

	t.Run("high is reverse of low", func(t *testing.T) {
		low, err := e.LowVariability(ctx, Unlimited)
		if err != nil {
			t.Fatal(err)
		}
		high, err := e.HighVariability(ctx, Unlimited)
		if err != nil {
			t.Fatal(err)
		}
		if len(low) != len(high) || len(low) != len(cats) {
			t.Fatalf("len low=%d high=%d", len(low), len(high))
		}
		for i := range low {
			if low[i].Category != high[len(high)-1-i].Category {
				t.Errorf("position %d: low=%s high=%s", i, low[i].Category, high[len(high)-1-i].Category)
			}
		}
	})

	t.Run("summary agrees", func(t *testing.T) {
		s, err := e.Summary(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if s.Global.TotalProducts != g.TotalProducts || len(s.Categories) != len(cs) {
			t.Errorf("summary = %+v", s.Global)
		}
		var share float64
		for _, d := range s.Distribution {
			share += d.Share
		}
		if math.Abs(share-1) > 1e-9 {
			t.Errorf("shares sum to %v", share)
		}
	})
}
