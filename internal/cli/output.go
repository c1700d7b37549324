package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"chemviz/internal/flows"
	"chemviz/internal/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

func (e Env) printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		e.errorf("encode output: %v", err)
		return
	}
	fmt.Fprintln(e.Stdout, string(data))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func (e Env) printHistory(records []types.HistoryRecord) {
	if len(records) == 0 {
		fmt.Fprintln(e.Stdout, "No datasets uploaded yet")
		return
	}
	t := newTable("ID", "Filename", "Uploaded", "Total", "Avg Flowrate", "Avg Pressure", "Avg Temperature")
	for _, r := range records {
		t.Row(
			strconv.Itoa(r.ID),
			r.Filename,
			r.Timestamp.Display(),
			strconv.Itoa(r.Summary.TotalCount),
			flows.FormatAverage(r.Summary.AvgFlowrate),
			flows.FormatAverage(r.Summary.AvgPressure),
			flows.FormatAverage(r.Summary.AvgTemperature),
		)
	}
	fmt.Fprintln(e.Stdout, t.String())
}

func (e Env) printCards(s types.Summary) {
	t := newTable("Metric", "Value")
	for _, c := range flows.Cards(s) {
		t.Row(c.Label, c.Value)
	}
	fmt.Fprintln(e.Stdout, t.String())
}

func (e Env) printDistribution(s types.Summary) {
	sorted := s.SortedTypes()
	if len(sorted) == 0 {
		return
	}
	t := newTable("Type", "Count")
	for _, tc := range sorted {
		t.Row(tc.Type, strconv.Itoa(tc.Count))
	}
	fmt.Fprintln(e.Stdout, t.String())
}

func (e Env) printDataset(ds types.StagedDataset) {
	fmt.Fprintln(e.Stdout, titleStyle.Render(fmt.Sprintf("%s (#%d, %s)", ds.Filename, ds.DatasetID, ds.Timestamp.Display())))
	e.printCards(ds.Summary)
	e.printDistribution(ds.Summary)
	rows := flows.TableRows(ds)
	if rows == nil {
		fmt.Fprintln(e.Stdout, flows.NoRowsMessage)
		return
	}
	t := newTable(flows.TableColumns...).Rows(rows...)
	fmt.Fprintln(e.Stdout, t.String())
}
