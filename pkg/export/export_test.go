package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gridtwin/gridtwin/core/dispatch"
)

func sampleResult(t *testing.T) dispatch.Result {
	t.Helper()
	res, err := dispatch.Evaluate(dispatch.DefaultConfig(), []float64{5, 0}, []float64{2, 3})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return res
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResult(t)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, key := range []string{"config", "kpis", "series_mwh", "series_mw", "dt_hours"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %s in %v", key, decoded)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleResult(t)); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "step" {
		t.Fatalf("missing step column: %v", rows[0])
	}
	if len(rows[0]) != 8 {
		t.Fatalf("expected 8 columns, got %v", rows[0])
	}
	// Column names are sorted, so deferred_charge_mwh comes first.
	if rows[0][1] != "deferred_charge_mwh" {
		t.Fatalf("columns not sorted: %v", rows[0])
	}
	if rows[1][0] != "0" || rows[2][0] != "1" {
		t.Fatalf("step indices wrong: %v %v", rows[1], rows[2])
	}
}

func TestWriteCSVEmptyResult(t *testing.T) {
	res, err := dispatch.Evaluate(dispatch.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, res); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}
