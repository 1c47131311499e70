package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ProviderFile identifies one plans CSV published for a provider.
type ProviderFile struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// Cell is a single non-missing CSV value. Num is only meaningful when IsNum is set.
type Cell struct {
	Text  string
	Num   float64
	IsNum bool
}

// NewCell builds a Cell from raw CSV text, detecting plain (dot-decimal) numbers.
func NewCell(text string) Cell {
	c := Cell{Text: text}
	if n, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		c.Num = n
		c.IsNum = true
	}
	return c
}

// Row maps a column name to its value. An absent key is a missing value.
type Row map[string]Cell

// Text returns the raw text of a column and whether it is present.
func (r Row) Text(col string) (string, bool) {
	c, ok := r[col]
	if !ok {
		return "", false
	}
	return c.Text, true
}

// Number returns the numeric value of a column. Present but non-numeric
// values are reported as missing.
func (r Row) Number(col string) (float64, bool) {
	c, ok := r[col]
	if !ok || !c.IsNum {
		return 0, false
	}
	return c.Num, true
}

// MarshalJSON renders the row as a flat object of raw values.
func (r Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r))
	for k, c := range r {
		if c.IsNum {
			out[k] = c.Num
		} else {
			out[k] = c.Text
		}
	}
	return json.Marshal(out)
}

// Dataset is the unified, schema-less product table built from every loaded source.
type Dataset struct {
	// Columns is the union of all source headers, in first-seen order.
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewDataset returns an empty dataset with zero rows and zero columns.
func NewDataset() *Dataset {
	return &Dataset{Columns: []string{}, Rows: []Row{}}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// HasColumn reports whether any source contributed the named column.
func (d *Dataset) HasColumn(name string) bool {
	if d == nil {
		return false
	}
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends name to the column set unless it is already there.
func (d *Dataset) AddColumn(name string) {
	if !d.HasColumn(name) {
		d.Columns = append(d.Columns, name)
	}
}

// Clone returns a deep copy; rows in the copy can be changed freely.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return NewDataset()
	}
	out := &Dataset{
		Columns: append([]string{}, d.Columns...),
		Rows:    make([]Row, len(d.Rows)),
	}
	for i, r := range d.Rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}
