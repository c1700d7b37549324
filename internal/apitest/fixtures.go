package apitest

import (
	"os"
	"path/filepath"
	"testing"

	"chemviz/internal/types"
)

// SampleCSV is a small valid equipment file: 4 rows across 3 types.
const SampleCSV = `Equipment Name,Type,Flowrate,Pressure,Temperature
Pump-1,Pump,120.5,5.2,110.0
Pump-2,Pump,130.5,5.8,115.0
Valve-1,Valve,60.0,4.1,105.0
HX-1,HeatExchanger,150.0,6.9,130.0
`

// SampleSummary is a summary-only dataset as history returns it.
func SampleSummary() types.Summary {
	return types.Summary{
		TotalCount:       8,
		AvgFlowrate:      110.25,
		AvgPressure:      5.5,
		AvgTemperature:   115.75,
		TypeDistribution: map[string]int{"Pump": 3, "Valve": 3, "Reactor": 2},
	}
}

// WriteFile creates name under a temp dir with content and returns its path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
