package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"chemviz/internal/flows"
	"chemviz/internal/types"
)

type historyItem struct {
	data types.HistoryRecord
}

func (i historyItem) Title() string { return i.data.Filename }
func (i historyItem) Description() string {
	return fmt.Sprintf("%s - %d items", i.data.Timestamp.Display(), i.data.Summary.TotalCount)
}
func (i historyItem) FilterValue() string { return i.data.Filename }

func buildHistoryItems(in []types.HistoryRecord) []list.Item {
	items := make([]list.Item, 0, len(in))
	for _, rec := range in {
		items = append(items, historyItem{data: rec})
	}
	return items
}

func renderHistoryDetail(rec types.HistoryRecord) string {
	lines := []string{
		fmt.Sprintf("File: %s", rec.Filename),
		fmt.Sprintf("Uploaded: %s", rec.Timestamp.Display()),
		"",
	}
	for _, c := range flows.Cards(rec.Summary) {
		lines = append(lines, fmt.Sprintf("%s: %s", c.Label, c.Value))
	}
	lines = append(lines, "", "Types:")
	for _, tc := range rec.Summary.SortedTypes() {
		lines = append(lines, fmt.Sprintf("  %s: %d", tc.Type, tc.Count))
	}
	return strings.Join(lines, "\n")
}

// renderDistribution draws one bar per type scaled to width.
func renderDistribution(s types.Summary, width int) string {
	sorted := s.SortedTypes()
	if len(sorted) == 0 {
		return dimStyle.Render("No type data")
	}
	labelWidth := 0
	maxCount := 0
	for _, tc := range sorted {
		if len(tc.Type) > labelWidth {
			labelWidth = len(tc.Type)
		}
		if tc.Count > maxCount {
			maxCount = tc.Count
		}
	}
	barSpace := width - labelWidth - 8
	if barSpace < 10 {
		barSpace = 10
	}
	lines := make([]string, 0, len(sorted))
	for _, tc := range sorted {
		n := 0
		if maxCount > 0 {
			n = tc.Count * barSpace / maxCount
		}
		if n == 0 && tc.Count > 0 {
			n = 1
		}
		lines = append(lines, fmt.Sprintf("%-*s %s %d", labelWidth, tc.Type, barStyle.Render(strings.Repeat("█", n)), tc.Count))
	}
	return strings.Join(lines, "\n")
}
