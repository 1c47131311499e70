package services

import (
	"math"
	"strconv"
	"strings"

	"esim-dashboard/models"
	"esim-dashboard/utils"
)

// NumericParser parses numbers written with a locale-specific decimal separator.
type NumericParser struct {
	DecimalSeparator string
}

// Parse returns the numeric value of raw, or false when raw is empty or not a number.
//
//	"0,45" → 0.45
//	"0.45" → 0.45
//	"n/c"  → missing
func (p NumericParser) Parse(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if p.DecimalSeparator != "" && p.DecimalSeparator != "." {
		s = strings.ReplaceAll(s, p.DecimalSeparator, ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Normalizer coerces one column of the dataset to canonical numeric form.
type Normalizer struct {
	column string
	parser NumericParser
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer for column.
func NewNormalizer(column string, parser NumericParser, logger *utils.Logger) *Normalizer {
	return &Normalizer{column: column, parser: parser, logger: logger.Named("normalizer")}
}

// Normalize returns a copy of ds where every value of the target column is
// either a parsed number or missing. The input is left untouched and the
// operation is idempotent.
func (n *Normalizer) Normalize(ds *models.Dataset) *models.Dataset {
	out := ds.Clone()
	parsed, gaps := 0, 0

	for _, row := range out.Rows {
		cell, ok := row[n.column]
		if !ok {
			continue
		}
		v, ok := n.parser.Parse(cell.Text)
		if !ok {
			n.logger.Debug("Unparsable %s value %q treated as missing", n.column, cell.Text)
			delete(row, n.column)
			gaps++
			continue
		}
		row[n.column] = models.Cell{Text: strconv.FormatFloat(v, 'f', -1, 64), Num: v, IsNum: true}
		parsed++
	}

	if gaps > 0 {
		n.logger.Warn("Normalized %d %s values, %d left missing", parsed, n.column, gaps)
	} else {
		n.logger.Debug("Normalized %d %s values", parsed, n.column)
	}
	return out
}
