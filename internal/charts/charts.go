// Package charts renders a dataset summary as PNG images: the equipment
// type distribution as a pie and the parameter averages as bars.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"chemviz/internal/types"
	"chemviz/internal/utils"
)

const (
	DistributionFile = "type_distribution.png"
	AveragesFile     = "averages.png"

	width  = 640
	height = 480
)

// ErrNoDistribution is returned when a summary has no type counts to draw.
var ErrNoDistribution = errors.New("charts: summary has no type distribution")

var palette = []drawing.Color{
	drawing.ColorFromHex("36a2eb"),
	drawing.ColorFromHex("ff6384"),
	drawing.ColorFromHex("ffce56"),
	drawing.ColorFromHex("4bc0c0"),
	drawing.ColorFromHex("9966ff"),
	drawing.ColorFromHex("ff9f40"),
}

func fill(i int) chart.Style {
	c := palette[i%len(palette)]
	return chart.Style{FillColor: c, StrokeColor: c}
}

// Distribution draws the type distribution pie.
func Distribution(s types.Summary, w io.Writer) error {
	var values []chart.Value
	for i, tc := range s.SortedTypes() {
		if tc.Count <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Value: float64(tc.Count),
			Label: fmt.Sprintf("%s (%d)", tc.Type, tc.Count),
			Style: fill(i),
		})
	}
	if len(values) == 0 {
		return ErrNoDistribution
	}
	pie := chart.PieChart{
		Title:  "Equipment Type Distribution",
		Width:  width,
		Height: height,
		Values: values,
	}
	return pie.Render(chart.PNG, w)
}

// Averages draws average flowrate, pressure and temperature as bars.
func Averages(s types.Summary, w io.Writer) error {
	bars := []chart.Value{
		{Label: "Flowrate", Value: s.AvgFlowrate, Style: fill(0)},
		{Label: "Pressure", Value: s.AvgPressure, Style: fill(1)},
		{Label: "Temperature", Value: s.AvgTemperature, Style: fill(2)},
	}
	lo, hi := 0.0, 0.0
	for _, b := range bars {
		lo = math.Min(lo, b.Value)
		hi = math.Max(hi, b.Value)
	}
	if hi-lo == 0 {
		hi = 1
	}
	bc := chart.BarChart{
		Title:      "Average Parameters",
		Width:      width,
		Height:     height,
		BarWidth:   100,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 28}},
		YAxis: chart.YAxis{
			Name:  "Value",
			Range: &chart.ContinuousRange{Min: lo, Max: hi * 1.1},
		},
		Bars: bars,
	}
	return bc.Render(chart.PNG, w)
}

// Render writes both charts into dir and returns the written paths. A
// summary without a distribution still gets the averages chart.
func Render(s types.Summary, dir string) ([]string, error) {
	var written []string

	var buf bytes.Buffer
	err := Distribution(s, &buf)
	switch {
	case errors.Is(err, ErrNoDistribution):
	case err != nil:
		return written, fmt.Errorf("render distribution: %w", err)
	default:
		path := filepath.Join(dir, DistributionFile)
		if err := utils.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	buf.Reset()
	if err := Averages(s, &buf); err != nil {
		return written, fmt.Errorf("render averages: %w", err)
	}
	path := filepath.Join(dir, AveragesFile)
	if err := utils.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return written, err
	}
	return append(written, path), nil
}
