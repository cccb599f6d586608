package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"Nowcast/internal/domain/models"
	applogger "Nowcast/pkg/logger"
	"Nowcast/pkg/util"
)

// CSVPanelSource reads a wide panel file (date,col1,col2,..., empty cell =
// missing) and a release file (indicator,quarter,sub_period,released_on).
type CSVPanelSource struct {
	panelPath    string
	releasesPath string
	l            *applogger.Logger
}

func NewCSVPanelSource(panelPath, releasesPath string, l *applogger.Logger) *CSVPanelSource {
	return &CSVPanelSource{panelPath: panelPath, releasesPath: releasesPath, l: l}
}

func (s *CSVPanelSource) LoadPanel(_ context.Context) (*models.Panel, error) {
	f, err := os.Open(s.panelPath)
	if err != nil {
		return nil, fmt.Errorf("open panel: %w", err)
	}
	defer f.Close()
	p, err := ReadPanelCSV(f)
	if err != nil {
		return nil, fmt.Errorf("panel %s: %w", s.panelPath, err)
	}
	if s.l != nil {
		s.l.Info("panel loaded",
			applogger.String("path", s.panelPath),
			applogger.Int("rows", p.Len()),
			applogger.Int("columns", len(p.Columns())))
	}
	return p, nil
}

func (s *CSVPanelSource) LoadReleases(_ context.Context) ([]models.ReleaseRecord, error) {
	f, err := os.Open(s.releasesPath)
	if err != nil {
		return nil, fmt.Errorf("open releases: %w", err)
	}
	defer f.Close()
	out, err := ReadReleasesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("releases %s: %w", s.releasesPath, err)
	}
	return out, nil
}

// ReadPanelCSV parses a wide panel. Empty cells and "NA"/"NaN" are missing.
func ReadPanelCSV(r io.Reader) (*models.Panel, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header needs a date column and at least one series")
	}

	var index []time.Time
	cols := make(map[string][]float64, len(header)-1)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, ok := util.ParseTime(rec[0])
		if !ok {
			return nil, fmt.Errorf("line %d: bad date %q", line, rec[0])
		}
		index = append(index, t)
		for j, name := range header[1:] {
			v, err := parseCell(rec[j+1])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			cols[name] = append(cols[name], v)
		}
	}
	return models.NewPanel(index, cols)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadReleasesCSV parses release records. The quarter accepts "2020Q1" or any
// date inside the quarter.
func ReadReleasesCSV(r io.Reader) ([]models.ReleaseRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 4
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var out []models.ReleaseRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		q, ok := util.ParseTime(rec[1])
		if !ok {
			return nil, fmt.Errorf("line %d: bad quarter %q", line, rec[1])
		}
		released, ok := util.ParseTime(rec[3])
		if !ok {
			return nil, fmt.Errorf("line %d: bad release date %q", line, rec[3])
		}
		out = append(out, models.ReleaseRecord{
			Indicator:  strings.TrimSpace(rec[0]),
			Quarter:    util.QuarterStart(q),
			SubPeriod:  util.ParseIntDefault(strings.TrimSpace(rec[2]), 0),
			ReleasedOn: released,
		})
	}
	return out, nil
}
