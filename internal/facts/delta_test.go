package facts

import "testing"

func TestComputeDeltaAddsAndRemoves(t *testing.T) {
	prev := Tables{
		Messages: []MessageRow{
			{Name: "a", ID: 1, DLC: 8, File: "f.dbc"},
		},
		Signals: []SignalRow{
			{Message: "a", Name: "x", Length: 8, Scaling: 1, File: "f.dbc"},
		},
	}
	next := Tables{
		Messages: []MessageRow{
			{Name: "b", ID: 2, DLC: 8, File: "f.dbc"},
		},
		Signals: []SignalRow{
			{Message: "a", Name: "x", Length: 8, Scaling: 0.5, File: "f.dbc"},
		},
	}

	delta := ComputeDelta(prev, next)

	if len(delta.Added.Messages) != 1 || delta.Added.Messages[0].Name != "b" {
		t.Fatalf("expected message b added, got %+v", delta.Added.Messages)
	}
	if len(delta.Removed.Messages) != 1 || delta.Removed.Messages[0].Name != "a" {
		t.Fatalf("expected message a removed, got %+v", delta.Removed.Messages)
	}
	if len(delta.Added.Signals) != 1 || delta.Added.Signals[0].Scaling != 0.5 {
		t.Fatalf("expected rescaled signal added, got %+v", delta.Added.Signals)
	}
	if len(delta.Removed.Signals) != 1 || delta.Removed.Signals[0].Scaling != 1 {
		t.Fatalf("expected old signal removed, got %+v", delta.Removed.Signals)
	}
	if len(delta.Added.Values) != 0 || delta.Added.Values == nil {
		t.Fatalf("untouched relations should be empty, got %+v", delta.Added.Values)
	}
}

func TestComputeDeltaIdentical(t *testing.T) {
	tables := BuildTables(nil)
	tables.Nodes = append(tables.Nodes, NodeRow{Name: "ECU", File: "f.dbc"})
	delta := ComputeDelta(tables, tables)
	if len(delta.Added.Nodes) != 0 || len(delta.Removed.Nodes) != 0 {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
}
