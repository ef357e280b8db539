package alerts

import (
	"testing"
	"time"

	"auction-market-bot/internal/database"
)

var alertTime = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func TestCollectLVNsDedupesAndSorts(t *testing.T) {
	rows := []database.ProfileMetrics{
		{LVNs: []float64{105.5, 99.0}},
		{LVNs: []float64{99.0, 101.25}},
		{LVNs: nil},
	}

	nodes := CollectLVNs(rows)
	want := []float64{99.0, 101.25, 105.5}
	if len(nodes) != len(want) {
		t.Fatalf("nodes = %v, want %v", nodes, want)
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Errorf("nodes[%d] = %v, want %v", i, nodes[i], want[i])
		}
	}
}

func TestNearestPicksClosestNode(t *testing.T) {
	nodes := []float64{95, 100, 110}

	lvn, dist, ok := Nearest(100.3, nodes)
	if !ok {
		t.Fatal("expected a nearest node")
	}
	if lvn != 100 {
		t.Errorf("nearest = %v, want 100", lvn)
	}
	if dist < 0.29 || dist > 0.31 {
		t.Errorf("distance = %v, want ~0.3", dist)
	}

	if _, _, ok := Nearest(100, nil); ok {
		t.Error("empty node set should report no nearest")
	}
}

func TestEvaluateDirections(t *testing.T) {
	nodes := []float64{100}

	// price below the node: would cross moving up
	a := Evaluate("AAPL", 99.7, nodes, 0.5, alertTime)
	if a == nil {
		t.Fatal("expected an alert at 0.3% proximity")
	}
	if a.Direction != DirectionUp {
		t.Errorf("direction = %s, want UP", a.Direction)
	}

	// price above the node
	a = Evaluate("AAPL", 100.3, nodes, 0.5, alertTime)
	if a == nil || a.Direction != DirectionDown {
		t.Errorf("alert = %+v, want DOWN direction", a)
	}

	// too far away
	if a := Evaluate("AAPL", 101, nodes, 0.5, alertTime); a != nil {
		t.Errorf("alert fired at 1%% distance: %+v", a)
	}
}

func TestEvaluateMessageMentionsSymbol(t *testing.T) {
	a := Evaluate("TSLA", 199.5, []float64{200}, 0.5, alertTime)
	if a == nil {
		t.Fatal("expected alert")
	}
	if a.Message == "" || a.Symbol != "TSLA" {
		t.Errorf("alert = %+v, want populated message and symbol", a)
	}
}
