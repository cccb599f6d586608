package models

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"Nowcast/pkg/util"
)

// Panel is the immutable, time-indexed table of target and indicator columns
// produced by the upstream feature pipeline. Missing values are NaN.
type Panel struct {
	index   []time.Time
	rowOf   map[time.Time]int
	columns map[string][]float64
	names   []string
}

// NewPanel validates and copies the inputs. The index must be strictly increasing
// and every column must have one value per index entry.
func NewPanel(index []time.Time, columns map[string][]float64) (*Panel, error) {
	p := &Panel{
		index:   make([]time.Time, len(index)),
		rowOf:   make(map[time.Time]int, len(index)),
		columns: make(map[string][]float64, len(columns)),
		names:   make([]string, 0, len(columns)),
	}
	for i, t := range index {
		d := util.NormalizeDate(t)
		if i > 0 && !d.After(p.index[i-1]) {
			return nil, fmt.Errorf("panel index not strictly increasing at %s", d.Format(util.DateLayout))
		}
		p.index[i] = d
		p.rowOf[d] = i
	}
	for name, vals := range columns {
		if len(vals) != len(index) {
			return nil, fmt.Errorf("column %s has %d values, index has %d", name, len(vals), len(index))
		}
		p.columns[name] = append([]float64(nil), vals...)
		p.names = append(p.names, name)
	}
	sort.Strings(p.names)
	return p, nil
}

// Index returns a copy of the timestamps.
func (p *Panel) Index() []time.Time { return append([]time.Time(nil), p.index...) }

// Len returns the number of rows.
func (p *Panel) Len() int { return len(p.index) }

// Columns returns the sorted column names.
func (p *Panel) Columns() []string { return append([]string(nil), p.names...) }

// Has reports whether the panel carries a column.
func (p *Panel) Has(name string) bool {
	_, ok := p.columns[name]
	return ok
}

// Row returns the row position of a date (any time on that calendar day).
func (p *Panel) Row(t time.Time) (int, bool) {
	i, ok := p.rowOf[util.NormalizeDate(t)]
	return i, ok
}

// Value returns one cell; NaN-valued when missing.
func (p *Panel) Value(name string, row int) (float64, bool) {
	col, ok := p.columns[name]
	if !ok || row < 0 || row >= len(col) {
		return 0, false
	}
	return col[row], true
}

// Column returns a copy of one column.
func (p *Panel) Column(name string) ([]float64, bool) {
	col, ok := p.columns[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), col...), true
}

// ColumnRef is a parsed panel column name of the form base[_m<s>][_lag<k>].
type ColumnRef struct {
	Name      string
	Base      string
	SubPeriod int // 1..3 for monthly/daily blocks, 0 for quarterly
	Lag       int // quarters of lag, 0 for the current quarter
}

var columnRe = regexp.MustCompile(`^(.+?)(?:_m([1-3]))?(?:_lag([0-9]+))?$`)

// ParseColumn splits a column name into its base indicator, sub-period and lag.
func ParseColumn(name string) ColumnRef {
	ref := ColumnRef{Name: name, Base: name}
	m := columnRe.FindStringSubmatch(name)
	if m == nil {
		return ref
	}
	ref.Base = m[1]
	if m[2] != "" {
		ref.SubPeriod, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		ref.Lag, _ = strconv.Atoi(m[3])
	}
	return ref
}

// IsLag reports whether the column holds a previous quarter's value.
func (r ColumnRef) IsLag() bool { return r.Lag > 0 }

// ColumnName builds a column name following the panel convention.
func ColumnName(base string, subPeriod, lag int) string {
	name := base
	if subPeriod > 0 {
		name += "_m" + strconv.Itoa(subPeriod)
	}
	if lag > 0 {
		name += "_lag" + strconv.Itoa(lag)
	}
	return name
}
