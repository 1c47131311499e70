package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"esim-dashboard/config"
	"esim-dashboard/models"
	"esim-dashboard/utils"
)

type companyGroup struct {
	company string
	rows    []models.Row
}

// groupByCompany buckets rows by company name, sorted by name. Rows without a
// company take part in no grouped aggregate.
func groupByCompany(ds *models.Dataset, col string) []companyGroup {
	if ds == nil {
		return nil
	}
	idx := make(map[string]int)
	var groups []companyGroup

	for _, r := range ds.Rows {
		name, ok := r.Text(col)
		if !ok {
			continue
		}
		i, ok := idx[name]
		if !ok {
			i = len(groups)
			idx[name] = i
			groups = append(groups, companyGroup{company: name})
		}
		groups[i].rows = append(groups[i].rows, r)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].company < groups[j].company })
	return groups
}

func mean(rows []models.Row, col string) models.Float {
	var sum float64
	n := 0
	for _, r := range rows {
		if v, ok := r.Number(col); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return models.Float{}
	}
	return models.Some(sum / float64(n))
}

// PriceRanges returns the min and max price per company. Every company whose
// min equals the catalogue minimum is flagged, and likewise for the maximum.
func PriceRanges(ds *models.Dataset, cols config.Columns) []models.PriceRange {
	groups := groupByCompany(ds, cols.Company)
	out := make([]models.PriceRange, 0, len(groups))

	var globalMin, globalMax models.Float
	for _, g := range groups {
		pr := models.PriceRange{Company: g.company}
		for _, r := range g.rows {
			v, ok := r.Number(cols.Price)
			if !ok {
				continue
			}
			if !pr.Min.Valid || v < pr.Min.Value {
				pr.Min = models.Some(v)
			}
			if !pr.Max.Valid || v > pr.Max.Value {
				pr.Max = models.Some(v)
			}
		}
		if pr.Min.Valid && (!globalMin.Valid || pr.Min.Value < globalMin.Value) {
			globalMin = pr.Min
		}
		if pr.Max.Valid && (!globalMax.Valid || pr.Max.Value > globalMax.Value) {
			globalMax = pr.Max
		}
		out = append(out, pr)
	}

	for i := range out {
		out[i].IsGlobalMin = globalMin.Valid && out[i].Min.Valid && out[i].Min.Value == globalMin.Value
		out[i].IsGlobalMax = globalMax.Valid && out[i].Max.Valid && out[i].Max.Value == globalMax.Value
	}
	return out
}

// CountsPerCompany returns the number of products per company.
func CountsPerCompany(ds *models.Dataset, cols config.Columns) []models.CompanyCount {
	groups := groupByCompany(ds, cols.Company)
	out := make([]models.CompanyCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.CompanyCount{Company: g.company, Count: len(g.rows)})
	}
	return out
}

// AveragesPerCompany returns the mean price and mean data allowance per company.
func AveragesPerCompany(ds *models.Dataset, cols config.Columns) []models.CompanyAverage {
	groups := groupByCompany(ds, cols.Company)
	out := make([]models.CompanyAverage, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.CompanyAverage{
			Company:  g.company,
			AvgPrice: mean(g.rows, cols.Price),
			AvgData:  mean(g.rows, cols.Data),
		})
	}
	return out
}

// UnitPriceRanking returns the mean price per GB per company, cheapest first.
// Companies without any usable value come last.
func UnitPriceRanking(ds *models.Dataset, cols config.Columns) []models.UnitPrice {
	groups := groupByCompany(ds, cols.Company)
	out := make([]models.UnitPrice, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.UnitPrice{Company: g.company, AvgPricePerUnit: mean(g.rows, cols.PricePerUnit)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].AvgPricePerUnit, out[j].AvgPricePerUnit
		if a.Valid != b.Valid {
			return a.Valid
		}
		return a.Valid && a.Value < b.Value
	})
	return out
}

// TopCountries counts every country listed in the comma-separated coverage
// column and returns the n most frequent. Equal counts keep the order in
// which countries were first seen.
func TopCountries(ds *models.Dataset, cols config.Columns, n int) []models.CountryCount {
	out := []models.CountryCount{}
	if ds == nil || n <= 0 {
		return out
	}

	idx := make(map[string]int)
	for _, r := range ds.Rows {
		raw, ok := r.Text(cols.Coverage)
		if !ok {
			continue
		}
		for _, tok := range strings.Split(raw, ",") {
			country := strings.TrimSpace(tok)
			if country == "" {
				continue
			}
			i, ok := idx[country]
			if !ok {
				i = len(out)
				idx[country] = i
				out = append(out, models.CountryCount{Country: country})
			}
			out[i].Count++
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Globals derives the catalogue-wide reference values. Extremes come from the
// price-range table, means from every row of the dataset.
func Globals(ds *models.Dataset, cols config.Columns, ranges []models.PriceRange) models.GlobalStats {
	var g models.GlobalStats
	for _, pr := range ranges {
		if pr.Min.Valid && (!g.MinPrice.Valid || pr.Min.Value < g.MinPrice.Value) {
			g.MinPrice = pr.Min
		}
		if pr.Max.Valid && (!g.MaxPrice.Valid || pr.Max.Value > g.MaxPrice.Value) {
			g.MaxPrice = pr.Max
		}
	}
	if ds != nil {
		g.MeanPrice = mean(ds.Rows, cols.Price)
		g.MeanData = mean(ds.Rows, cols.Data)
	}
	return g
}

// PriceBandsFor splits priced products into ≤ threshold and > threshold.
func PriceBandsFor(ds *models.Dataset, cols config.Columns, threshold float64) models.PriceBands {
	b := models.PriceBands{Threshold: threshold}
	if ds == nil {
		return b
	}
	for _, r := range ds.Rows {
		v, ok := r.Number(cols.Price)
		if !ok {
			continue
		}
		if v > threshold {
			b.Above++
		} else {
			b.AtOrBelow++
		}
	}
	return b
}

// InsightService turns a normalized dataset into a Report.
type InsightService struct {
	cols      config.Columns
	topN      int
	threshold float64
	logger    *utils.Logger
	now       func() time.Time
}

// NewInsightService creates an InsightService keeping the topN countries
// and splitting price bands at threshold.
func NewInsightService(cols config.Columns, topN int, threshold float64, logger *utils.Logger) *InsightService {
	return &InsightService{
		cols:      cols,
		topN:      topN,
		threshold: threshold,
		logger:    logger.Named("insights"),
		now:       time.Now,
	}
}

// Generate computes every aggregate over a normalized dataset.
func (s *InsightService) Generate(ds *models.Dataset, sources []models.ProviderFile, diags []models.Diagnostic) *models.Report {
	if ds == nil {
		ds = models.NewDataset()
	}
	if sources == nil {
		sources = []models.ProviderFile{}
	}
	if diags == nil {
		diags = []models.Diagnostic{}
	}

	for _, col := range []string{s.cols.Company, s.cols.Price, s.cols.Data, s.cols.PricePerUnit, s.cols.Coverage} {
		if ds.Len() > 0 && !ds.HasColumn(col) {
			s.logger.Warn("Column %q missing from every source; aggregates using it will be empty", col)
		}
	}

	ranges := PriceRanges(ds, s.cols)
	report := &models.Report{
		GeneratedAt:   s.now(),
		Sources:       sources,
		TotalProducts: ds.Len(),
		PriceBands:    PriceBandsFor(ds, s.cols, s.threshold),
		PriceRanges:   ranges,
		Counts:        CountsPerCompany(ds, s.cols),
		Averages:      AveragesPerCompany(ds, s.cols),
		UnitPrices:    UnitPriceRanking(ds, s.cols),
		TopCountries:  TopCountries(ds, s.cols, s.topN),
		Global:        Globals(ds, s.cols, ranges),
		Diagnostics:   diags,
	}

	s.logger.Info("Report ready: %d products, %d providers", report.TotalProducts, len(report.Counts))
	return report
}

// Print writes a human-readable report to stdout.
func (s *InsightService) Print(r *models.Report) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 ESIM PLANS DASHBOARD\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	if len(r.Diagnostics) > 0 {
		fmt.Printf("\033[1;31m  Diagnostics\033[0m\n")
		fmt.Printf("  %s\n", thin)
		for _, d := range r.Diagnostics {
			fmt.Printf("  ❌ %s\n", d.Message)
		}
		fmt.Println()
	}

	// Overview
	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Sources loaded         : \033[1m%d\033[0m\n", len(r.Sources))
	fmt.Printf("  Total products         : \033[1m%d\033[0m\n", r.TotalProducts)
	fmt.Printf("  ≤ %-6.0f €             : \033[1m%d\033[0m\n", r.PriceBands.Threshold, r.PriceBands.AtOrBelow)
	fmt.Printf("  > %-6.0f €             : \033[1m%d\033[0m\n", r.PriceBands.Threshold, r.PriceBands.Above)
	fmt.Printf("  Average price          : \033[1;32m%s\033[0m\n", formatEuro(r.Global.MeanPrice))
	fmt.Printf("  Average data           : \033[1;32m%s\033[0m\n", formatNumber(r.Global.MeanData, " GB"))
	fmt.Println()

	// Price range per provider
	fmt.Printf("\033[1;33m  Price range per provider\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.PriceRanges) == 0 {
		fmt.Printf("  No price data available\n")
	}
	for _, pr := range r.PriceRanges {
		minStr, maxStr := formatEuro(pr.Min), formatEuro(pr.Max)
		if pr.IsGlobalMin {
			minStr = "\033[1;32m" + minStr + "\033[0m"
		}
		if pr.IsGlobalMax {
			maxStr = "\033[1;31m" + maxStr + "\033[0m"
		}
		fmt.Printf("  %-24s %12s  →  %s\n", truncate(pr.Company, 24), minStr, maxStr)
	}
	fmt.Println()

	// Products per provider
	fmt.Printf("\033[1;33m  Products per provider\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, c := range r.Counts {
		fmt.Printf("  %-24s %5d\n", truncate(c.Company, 24), c.Count)
	}
	fmt.Println()

	// Averages per provider
	fmt.Printf("\033[1;33m  Averages per provider\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, a := range r.Averages {
		fmt.Printf("  %-24s %12s  %10s\n", truncate(a.Company, 24), formatEuro(a.AvgPrice), formatNumber(a.AvgData, " GB"))
	}
	fmt.Println()

	// Cheapest per GB
	fmt.Printf("\033[1;33m  Average price per GB (cheapest first)\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for i, u := range r.UnitPrices {
		fmt.Printf("  \033[1m%2d.\033[0m %-24s %s\n", i+1, truncate(u.Company, 24), formatEuro(u.AvgPricePerUnit))
	}
	fmt.Println()

	// Top countries
	fmt.Printf("\033[1;33m  Top %d covered countries\033[0m\n", len(r.TopCountries))
	fmt.Printf("  %s\n", thin)
	if len(r.TopCountries) == 0 {
		fmt.Printf("  No coverage data\n")
	}
	for _, c := range r.TopCountries {
		bar := strings.Repeat("█", barWidth(c.Count, r.TopCountries[0].Count, 30))
		fmt.Printf("  %-24s %s (%d)\n", truncate(c.Country, 24), bar, c.Count)
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func formatEuro(f models.Float) string {
	return formatNumber(f, " €")
}

func formatNumber(f models.Float, unit string) string {
	if !f.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%s", f.Value, unit)
}

func barWidth(count, max, width int) int {
	if max <= 0 {
		return 0
	}
	w := count * width / max
	if w < 1 && count > 0 {
		w = 1
	}
	return w
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
