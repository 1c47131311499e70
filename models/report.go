package models

import (
	"encoding/json"
	"time"
)

// Float is an optional scalar. Aggregates over groups with no usable values
// produce an invalid Float rather than zero.
type Float struct {
	Value float64
	Valid bool
}

// Some wraps a known value.
func Some(v float64) Float { return Float{Value: v, Valid: true} }

func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// PriceRange is the min/max price observed for one company. The flags mark
// the companies holding the catalogue-wide extremes.
type PriceRange struct {
	Company     string `json:"company"`
	Min         Float  `json:"min_price"`
	Max         Float  `json:"max_price"`
	IsGlobalMin bool   `json:"is_global_min"`
	IsGlobalMax bool   `json:"is_global_max"`
}

// CompanyCount is the number of products offered by one company.
type CompanyCount struct {
	Company string `json:"company"`
	Count   int    `json:"count"`
}

// CompanyAverage holds the mean price and mean data allowance of one company.
type CompanyAverage struct {
	Company  string `json:"company"`
	AvgPrice Float  `json:"avg_price"`
	AvgData  Float  `json:"avg_data"`
}

// UnitPrice is the average price per GB of one company.
type UnitPrice struct {
	Company         string `json:"company"`
	AvgPricePerUnit Float  `json:"avg_price_per_unit"`
}

// CountryCount is how many products cover one country.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// GlobalStats are catalogue-wide reference values used for flags and reference lines.
type GlobalStats struct {
	MinPrice  Float `json:"min_price"`
	MaxPrice  Float `json:"max_price"`
	MeanPrice Float `json:"mean_price"`
	MeanData  Float `json:"mean_data"`
}

// PriceBands splits priced products around a threshold (≤ threshold / > threshold).
type PriceBands struct {
	Threshold float64 `json:"threshold"`
	AtOrBelow int     `json:"at_or_below"`
	Above     int     `json:"above"`
}

// DiagnosticKind classifies a user-visible pipeline message.
type DiagnosticKind string

const (
	DiagnosticDiscoveryFailure  DiagnosticKind = "discovery_failure"
	DiagnosticSourceLoadFailure DiagnosticKind = "source_load_failure"
	DiagnosticEmptyDataset      DiagnosticKind = "empty_dataset"
)

// Diagnostic is a message surfaced to the dashboard user, not only logged.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Source  string         `json:"source,omitempty"`
	Message string         `json:"message"`
}

// Report holds everything the presentation layer consumes for one refresh.
type Report struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	Sources       []ProviderFile   `json:"sources"`
	TotalProducts int              `json:"total_products"`
	PriceBands    PriceBands       `json:"price_bands"`
	PriceRanges   []PriceRange     `json:"price_ranges"`
	Counts        []CompanyCount   `json:"counts"`
	Averages      []CompanyAverage `json:"averages"`
	UnitPrices    []UnitPrice      `json:"unit_prices"`
	TopCountries  []CountryCount   `json:"top_countries"`
	Global        GlobalStats      `json:"global"`
	Diagnostics   []Diagnostic     `json:"diagnostics"`
}
