package types

import "sort"

// Summary is the aggregate computed by the backend for one dataset.
type Summary struct {
	TotalCount       int            `json:"total_count"       validate:"gte=0"`
	AvgFlowrate      float64        `json:"avg_flowrate"`
	AvgPressure      float64        `json:"avg_pressure"`
	AvgTemperature   float64        `json:"avg_temperature"`
	TypeDistribution map[string]int `json:"type_distribution" validate:"required"`
}

// TypeCount is one entry of a Summary's type distribution.
type TypeCount struct {
	Type  string
	Count int
}

// SortedTypes returns the distribution ordered by count descending, then name.
func (s Summary) SortedTypes() []TypeCount {
	out := make([]TypeCount, 0, len(s.TypeDistribution))
	for name, count := range s.TypeDistribution {
		out = append(out, TypeCount{Type: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func (s Summary) clone() Summary {
	c := s
	if s.TypeDistribution != nil {
		c.TypeDistribution = make(map[string]int, len(s.TypeDistribution))
		for k, v := range s.TypeDistribution {
			c.TypeDistribution[k] = v
		}
	}
	return c
}

// EquipmentRow mirrors one CSV row as returned by the upload endpoint.
type EquipmentRow struct {
	Name        string  `json:"Equipment Name"`
	Type        string  `json:"Type"`
	Flowrate    float64 `json:"Flowrate"`
	Pressure    float64 `json:"Pressure"`
	Temperature float64 `json:"Temperature"`
}

type Source string

const (
	SourceUpload  Source = "upload"
	SourceHistory Source = "history"
)

// StagedDataset is the payload handed from Upload or History to the
// Dashboard. Rows is empty when the dataset came from history.
type StagedDataset struct {
	DatasetID int            `json:"dataset_id"`
	Filename  string         `json:"filename"`
	Timestamp Timestamp      `json:"timestamp"`
	Summary   Summary        `json:"summary"`
	Rows      []EquipmentRow `json:"data"`
	Source    Source         `json:"source"`
}

// HasRowDetail reports whether per-equipment rows are available. An empty
// row set means the detail is unknown, not that there is no equipment.
func (d StagedDataset) HasRowDetail() bool {
	return len(d.Rows) > 0
}

// Clone returns a deep copy.
func (d StagedDataset) Clone() StagedDataset {
	c := d
	c.Summary = d.Summary.clone()
	if d.Rows != nil {
		c.Rows = make([]EquipmentRow, len(d.Rows))
		copy(c.Rows, d.Rows)
	}
	return c
}

// HistoryRecord is the summary-only projection of a previous upload.
type HistoryRecord struct {
	ID        int       `json:"id"`
	Filename  string    `json:"filename"`
	Timestamp Timestamp `json:"timestamp"`
	Summary   Summary   `json:"summary"`
}

// MaxHistory bounds the history list returned by the backend.
const MaxHistory = 5
