// Package ingest loads bar data from CSV files and computes the
// deterministic dataset/strategy hashes used to key stored runs.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/algoforge/backtest/pkg/types"
)

const csvTimeLayout = "2006-01-02 15:04:05"

var requiredColumns = []string{"dt", "do", "dh", "dl", "dc", "dv", "dd"}

// LoadCSV reads a bar series from path. Expected header: dt,do,dh,dl,dc,dv,dd
// with dt formatted "2006-01-02 15:04:05" and interpreted as UTC. Bars are
// returned strictly ascending by timestamp; duplicate timestamps are
// rejected rather than silently dropped.
func LoadCSV(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV file: %w", err)
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]types.Bar, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", types.ErrInvalidInput, col)
		}
	}

	var bars []types.Bar
	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", rowNum+1, err)
		}
		rowNum++

		bar, err := parseRow(row, colIdx)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: CSV has no data rows", types.ErrInvalidInput)
	}

	sortBarsByTimestamp(bars)
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Timestamp.Before(bars[i].Timestamp) {
			return nil, fmt.Errorf("%w: duplicate timestamp %s", types.ErrInvalidInput, bars[i].Timestamp)
		}
	}
	if err := types.ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseRow(row []string, colIdx map[string]int) (types.Bar, error) {
	dtStr := strings.TrimSpace(row[colIdx["dt"]])
	ts, err := time.Parse(csvTimeLayout, dtStr)
	if err != nil {
		return types.Bar{}, fmt.Errorf("parsing dt %q: %w", dtStr, err)
	}

	open, err := strconv.ParseFloat(row[colIdx["do"]], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("parsing do: %w", err)
	}
	high, err := strconv.ParseFloat(row[colIdx["dh"]], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("parsing dh: %w", err)
	}
	low, err := strconv.ParseFloat(row[colIdx["dl"]], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("parsing dl: %w", err)
	}
	closeVal, err := strconv.ParseFloat(row[colIdx["dc"]], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("parsing dc: %w", err)
	}
	volume, err := strconv.ParseFloat(row[colIdx["dv"]], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("parsing dv: %w", err)
	}
	direction, err := strconv.Atoi(strings.TrimSpace(row[colIdx["dd"]]))
	if err != nil {
		return types.Bar{}, fmt.Errorf("parsing dd: %w", err)
	}

	return types.Bar{
		Timestamp:    ts.UTC(),
		Open:         open,
		High:         high,
		Low:          low,
		Close:        closeVal,
		Volume:       volume,
		BarDirection: direction,
	}, nil
}

func sortBarsByTimestamp(bars []types.Bar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}
