// Package export serializes dispatch results for downstream tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/gridtwin/gridtwin/core/dispatch"
)

// WriteJSON writes the full dispatch result to w in JSON format.
func WriteJSON(w io.Writer, result dispatch.Result) error {
	enc := json.NewEncoder(w)
	return enc.Encode(result)
}

// WriteCSV writes the per-step MWh series to w as one row per timestep,
// with a leading step column. Columns are sorted by name for stable
// output.
func WriteCSV(w io.Writer, result dispatch.Result) error {
	names := make([]string, 0, len(result.SeriesMWh))
	for name := range result.SeriesMWh {
		names = append(names, name)
	}
	sort.Strings(names)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"step"}, names...)); err != nil {
		return err
	}

	n := 0
	if len(names) > 0 {
		n = len(result.SeriesMWh[names[0]])
	}
	for i := 0; i < n; i++ {
		rec := make([]string, 0, len(names)+1)
		rec = append(rec, strconv.Itoa(i))
		for _, name := range names {
			rec = append(rec, strconv.FormatFloat(result.SeriesMWh[name][i], 'f', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
