package staging

import (
	"errors"
	"reflect"
	"testing"

	"chemviz/internal/types"
)

func sampleDataset(id int) types.StagedDataset {
	return types.StagedDataset{
		DatasetID: id,
		Filename:  "plant.csv",
		Summary: types.Summary{
			TotalCount:       2,
			AvgFlowrate:      10,
			TypeDistribution: map[string]int{"Pump": 2},
		},
		Rows: []types.EquipmentRow{
			{Name: "P1", Type: "Pump", Flowrate: 9},
			{Name: "P2", Type: "Pump", Flowrate: 11},
		},
		Source: types.SourceUpload,
	}
}

func TestGetReturnsWhatWasPut(t *testing.T) {
	s := NewStore()
	d := sampleDataset(1)
	s.Put(d)

	got, ok := s.Get()
	if !ok {
		t.Fatalf("expected staged dataset")
	}
	if !reflect.DeepEqual(got, d) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", d, got)
	}
}

func TestEmptyStore(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get(); ok {
		t.Fatalf("new store should be empty")
	}
	if _, err := s.Load(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if s.Has() {
		t.Fatalf("Has should be false")
	}
}

func TestPutOverwritesWithoutMerging(t *testing.T) {
	s := NewStore()
	s.Put(sampleDataset(1))

	next := types.StagedDataset{
		DatasetID: 2,
		Filename:  "old.csv",
		Summary:   types.Summary{TotalCount: 8, TypeDistribution: map[string]int{"Valve": 8}},
		Source:    types.SourceHistory,
	}
	s.Put(next)

	got, _ := s.Get()
	if got.DatasetID != 2 || got.Filename != "old.csv" {
		t.Fatalf("expected second dataset, got %+v", got)
	}
	if len(got.Rows) != 0 {
		t.Fatalf("rows from the first dataset leaked: %+v", got.Rows)
	}
	if _, ok := got.Summary.TypeDistribution["Pump"]; ok {
		t.Fatalf("distribution merged with previous dataset")
	}
}

func TestProducerMutationDoesNotLeak(t *testing.T) {
	s := NewStore()
	d := sampleDataset(1)
	s.Put(d)

	d.Rows[0].Name = "mutated"
	d.Summary.TypeDistribution["Pump"] = 100

	got, _ := s.Get()
	if got.Rows[0].Name != "P1" || got.Summary.TypeDistribution["Pump"] != 2 {
		t.Fatalf("staged copy changed after producer mutation: %+v", got)
	}

	got.Rows[1].Name = "reader-mutated"
	again, _ := s.Get()
	if again.Rows[1].Name != "P2" {
		t.Fatalf("reader mutation leaked into store")
	}
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Put(sampleDataset(1))
	s.Clear()
	if _, ok := s.Get(); ok {
		t.Fatalf("expected empty after Clear")
	}
}

func TestRowSetIsReturnedExactly(t *testing.T) {
	for _, rows := range [][]types.EquipmentRow{nil, {}} {
		s := NewStore()
		d := types.StagedDataset{
			DatasetID: 3,
			Filename:  "hist.csv",
			Summary:   types.Summary{TotalCount: 8, TypeDistribution: map[string]int{"Valve": 8}},
			Rows:      rows,
			Source:    types.SourceHistory,
		}
		s.Put(d)
		got, _ := s.Get()
		if !reflect.DeepEqual(got, d) {
			t.Fatalf("round trip mismatch for rows %#v:\nwant %+v\ngot  %+v", rows, d, got)
		}
	}
}
