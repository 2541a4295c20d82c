// Package data loads the aligned energy frames that back portfolio
// environments.
package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gridtwin/gridtwin/core/env"
)

// requiredColumns must all be present in a frame.
var requiredColumns = []string{"wind", "solar", "hydro", "price", "load"}

// Installed capacities in MW used to convert capacity-factor data to raw
// power.
var capacityMW = map[string]float64{
	"wind":  1103,
	"solar": 100,
	"hydro": 534,
	"load":  2999,
}

// timestampLayouts are tried in order when parsing timestamp cells.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadFrame reads a CSV frame with the required wind/solar/hydro/price/load
// columns and an optional timestamp (or date + time) column. Rows with
// unparseable required values are dropped. When every energy column looks
// like capacity factors (max <= 2.0) the series are scaled to raw MW.
func LoadFrame(path string) (env.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return env.Series{}, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return env.Series{}, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 1 {
		return env.Series{}, fmt.Errorf("empty data file: %s", path)
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return env.Series{}, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	tsCol, hasTS := col["timestamp"]
	dateCol, hasDate := col["date"]
	timeCol, hasTime := col["time"]

	var series env.Series
	for _, row := range rows[1:] {
		values := make(map[string]float64, len(requiredColumns))
		valid := true
		for _, name := range requiredColumns {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col[name]]), 64)
			if err != nil {
				valid = false
				break
			}
			values[name] = v
		}
		if !valid {
			continue
		}

		series.Wind = append(series.Wind, values["wind"])
		series.Solar = append(series.Solar, values["solar"])
		series.Hydro = append(series.Hydro, values["hydro"])
		series.Price = append(series.Price, values["price"])
		series.Load = append(series.Load, values["load"])

		switch {
		case hasTS:
			series.Timestamps = append(series.Timestamps, parseTimestamp(row[tsCol]))
		case hasDate && hasTime:
			series.Timestamps = append(series.Timestamps,
				parseTimestamp(strings.TrimSpace(row[dateCol])+" "+strings.TrimSpace(row[timeCol])))
		}
	}

	if isCapacityFactor(series) {
		scale(series.Wind, capacityMW["wind"])
		scale(series.Solar, capacityMW["solar"])
		scale(series.Hydro, capacityMW["hydro"])
		scale(series.Load, capacityMW["load"])
	}
	return series, nil
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// isCapacityFactor reports whether the energy columns look normalized:
// raw MW data always exceeds 2.0 somewhere.
func isCapacityFactor(s env.Series) bool {
	for _, col := range [][]float64{s.Wind, s.Solar, s.Hydro, s.Load} {
		for _, v := range col {
			if v > 2.0 {
				return false
			}
		}
	}
	return true
}

func scale(col []float64, factor float64) {
	for i := range col {
		col[i] *= factor
	}
}
