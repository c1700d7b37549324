package flows

import (
	"fmt"
	"strconv"

	"chemviz/internal/staging"
	"chemviz/internal/types"
)

// NoRowsMessage replaces the equipment table when no row detail exists.
const NoRowsMessage = "No data available"

// Card is one headline figure on the dashboard.
type Card struct {
	Label string
	Value string
}

type Dashboard struct {
	staging *staging.Store
}

func NewDashboard(st *staging.Store) *Dashboard {
	return &Dashboard{staging: st}
}

// Load returns the staged dataset or staging.ErrEmpty.
func (d *Dashboard) Load() (types.StagedDataset, error) {
	return d.staging.Load()
}

func Cards(s types.Summary) []Card {
	return []Card{
		{Label: "Total Equipment", Value: strconv.Itoa(s.TotalCount)},
		{Label: "Avg Flowrate", Value: FormatAverage(s.AvgFlowrate)},
		{Label: "Avg Pressure", Value: FormatAverage(s.AvgPressure)},
		{Label: "Avg Temperature", Value: FormatAverage(s.AvgTemperature)},
	}
}

func FormatAverage(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// TableRows renders the equipment rows as strings in column order, or nil
// when the dataset carries no row detail.
func TableRows(d types.StagedDataset) [][]string {
	if !d.HasRowDetail() {
		return nil
	}
	out := make([][]string, 0, len(d.Rows))
	for _, r := range d.Rows {
		out = append(out, []string{
			r.Name,
			r.Type,
			FormatAverage(r.Flowrate),
			FormatAverage(r.Pressure),
			FormatAverage(r.Temperature),
		})
	}
	return out
}

// TableColumns are the equipment table headings.
var TableColumns = []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}
