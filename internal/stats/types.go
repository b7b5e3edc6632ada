package stats

import "math"

// Unlimited disables the result limit of the variability queries.
const Unlimited = math.MaxInt

// CategorySummary holds the rating statistics of one category. Value
// fields are nil when the category has no non-null rating.
type CategorySummary struct {
	Category   string   `json:"category"`
	Count      int64    `json:"count"`
	RatedCount int64    `json:"rated_count"`
	Mean       *float64 `json:"mean_rating"`
	Std        *float64 `json:"std_rating"`
	Variance   *float64 `json:"variance"`
	Min        *float64 `json:"min_rating"`
	Max        *float64 `json:"max_rating"`
}

// Outlier is a category whose mean rating deviates from the mean of all
// category means by at least the threshold, in standard deviations.
type Outlier struct {
	Category     string  `json:"category"`
	MeanRating   float64 `json:"mean_rating"`
	ZScore       float64 `json:"z_score"`
	GlobalMean   float64 `json:"global_mean"`
	GlobalStd    float64 `json:"global_std"`
	Threshold    float64 `json:"threshold"`
	ProductCount int64   `json:"product_count"`
	IsHigh       bool    `json:"is_high_outlier"`
	IsLow        bool    `json:"is_low_outlier"`
}

// Variability is the rating spread of one category.
type Variability struct {
	Category   string  `json:"category"`
	Std        float64 `json:"std_rating"`
	Variance   float64 `json:"variance"`
	Mean       float64 `json:"mean_rating"`
	Count      int64   `json:"count"`
	RatedCount int64   `json:"rated_count"`
}

// GlobalStats holds dataset-wide rating statistics.
type GlobalStats struct {
	TotalProducts int64    `json:"total_products"`
	Categories    int64    `json:"total_categories"`
	RatedProducts int64    `json:"rated_products"`
	Mean          *float64 `json:"mean_rating"`
	Std           *float64 `json:"std_rating"`
	Variance      *float64 `json:"variance"`
	Min           *float64 `json:"min_rating"`
	Max           *float64 `json:"max_rating"`
	P25           *float64 `json:"p25_rating"`
	P50           *float64 `json:"median_rating"`
	P75           *float64 `json:"p75_rating"`
	P90           *float64 `json:"p90_rating"`
	Rejected      int64    `json:"rejected_rows"`
	Generation    uint64   `json:"generation"`
}

// DistributionEntry is the share of products in one category.
type DistributionEntry struct {
	Category string   `json:"category"`
	Count    int64    `json:"count"`
	Share    float64  `json:"share"`
	Mean     *float64 `json:"mean_rating"`
	Min      *float64 `json:"min_rating"`
	Max      *float64 `json:"max_rating"`
}

// Summary combines the dataset-wide queries, all from one generation.
type Summary struct {
	Global       GlobalStats         `json:"global"`
	Categories   []CategorySummary   `json:"categories"`
	Distribution []DistributionEntry `json:"distribution"`
}
