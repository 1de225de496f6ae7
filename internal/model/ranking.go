package model

// PriceStats is the per-model price distribution of one cycle.
type PriceStats struct {
	Model  string  `json:"model"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// ValueRanking is one row of the performance-per-currency ranking.
type ValueRanking struct {
	Model           string  `json:"model"`
	MedianPrice     float64 `json:"median_price"`
	Benchmark       float64 `json:"benchmark"`
	PerfPerCurrency float64 `json:"perf_per_currency"`
	RelativeScore   float64 `json:"relative_score"`
	Listings        int     `json:"listings"`
}
