package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"time"

	"Nowcast/internal/domain/models"
	pkgch "Nowcast/pkg/clickhouse"
	applogger "Nowcast/pkg/logger"
	"Nowcast/pkg/util"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHPanelSource reads the panel from a long table (ts Date, column String,
// value Nullable(Float64)) and the releases from a table
// (indicator String, quarter Date, sub_period UInt8, released_on Date).
type CHPanelSource struct {
	db           *sql.DB
	panelTable   string
	releaseTable string
	l            *applogger.Logger
}

func NewCHPanelSource(ch *pkgch.Client, panelTable, releaseTable string) (*CHPanelSource, error) {
	return newCHPanelSource(ch.DB(), panelTable, releaseTable)
}

func newCHPanelSource(db *sql.DB, panelTable, releaseTable string) (*CHPanelSource, error) {
	for _, t := range []string{panelTable, releaseTable} {
		if !tableName.MatchString(t) {
			return nil, models.NewConfigurationError("inputs", "invalid table name %q", t)
		}
	}
	return &CHPanelSource{db: db, panelTable: panelTable, releaseTable: releaseTable}, nil
}

// SetLogger injects a structured logger.
func (s *CHPanelSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHPanelSource) LoadPanel(ctx context.Context) (*models.Panel, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, column, value
        FROM %s
        ORDER BY ts ASC, column ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.panelTable))
	if err != nil {
		s.logErr("clickhouse load_panel query error", s.panelTable, err)
		return nil, fmt.Errorf("load panel: %w", err)
	}
	defer rows.Close()

	type cell struct {
		row  int
		name string
		v    float64
	}
	var (
		index []time.Time
		cells []cell
		names = map[string]bool{}
	)
	for rows.Next() {
		var (
			ts   time.Time
			name string
			v    sql.NullFloat64
		)
		if err := rows.Scan(&ts, &name, &v); err != nil {
			s.logErr("clickhouse load_panel scan error", s.panelTable, err)
			return nil, fmt.Errorf("scan panel row: %w", err)
		}
		d := util.NormalizeDate(ts)
		if len(index) == 0 || !index[len(index)-1].Equal(d) {
			index = append(index, d)
		}
		val := math.NaN()
		if v.Valid {
			val = v.Float64
		}
		cells = append(cells, cell{row: len(index) - 1, name: name, v: val})
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		s.logErr("clickhouse load_panel rows error", s.panelTable, err)
		return nil, fmt.Errorf("rows: %w", err)
	}

	cols := make(map[string][]float64, len(names))
	for n := range names {
		col := make([]float64, len(index))
		for i := range col {
			col[i] = math.NaN()
		}
		cols[n] = col
	}
	for _, c := range cells {
		cols[c.name][c.row] = c.v
	}
	p, err := models.NewPanel(index, cols)
	if err != nil {
		return nil, fmt.Errorf("build panel: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse load_panel ok",
			applogger.String("table", s.panelTable),
			applogger.Int("rows", p.Len()),
			applogger.Int("columns", len(names)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return p, nil
}

func (s *CHPanelSource) LoadReleases(ctx context.Context) ([]models.ReleaseRecord, error) {
	start := time.Now()
	const qtpl = `
        SELECT indicator, quarter, sub_period, released_on
        FROM %s
        ORDER BY indicator ASC, quarter ASC, sub_period ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.releaseTable))
	if err != nil {
		s.logErr("clickhouse load_releases query error", s.releaseTable, err)
		return nil, fmt.Errorf("load releases: %w", err)
	}
	defer rows.Close()

	out := make([]models.ReleaseRecord, 0, 1024)
	for rows.Next() {
		var r models.ReleaseRecord
		if err := rows.Scan(&r.Indicator, &r.Quarter, &r.SubPeriod, &r.ReleasedOn); err != nil {
			s.logErr("clickhouse load_releases scan error", s.releaseTable, err)
			return nil, fmt.Errorf("scan release: %w", err)
		}
		r.Quarter = util.QuarterStart(r.Quarter)
		r.ReleasedOn = util.NormalizeDate(r.ReleasedOn)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.logErr("clickhouse load_releases rows error", s.releaseTable, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse load_releases ok",
			applogger.String("table", s.releaseTable),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHPanelSource) logErr(msg, table string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("table", table), applogger.Error(err))
	}
}

// Schema is the DDL of both input tables; CREATE IF NOT EXISTS keeps it idempotent.
func (s *CHPanelSource) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (ts Date, column String, value Nullable(Float64)) ENGINE = ReplacingMergeTree ORDER BY (column, ts)`, s.panelTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (indicator String, quarter Date, sub_period UInt8, released_on Date) ENGINE = ReplacingMergeTree ORDER BY (indicator, quarter, sub_period)`, s.releaseTable),
	}
}
