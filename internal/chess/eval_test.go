package chess

import (
	"math"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestNormalizeFlipsForBlack(t *testing.T) {
	if ev := Normalize(intPtr(35), nil, White); ev.Pawns != 0.35 {
		t.Fatalf("white to move: %v", ev.Pawns)
	}
	if ev := Normalize(intPtr(35), nil, Black); ev.Pawns != -0.35 {
		t.Fatalf("black to move: %v", ev.Pawns)
	}
	if ev := Normalize(nil, nil, White); ev.Pawns != 0 || ev.Mate != nil {
		t.Fatalf("empty input: %+v", ev)
	}
}

func TestNormalizeMateDominates(t *testing.T) {
	ev := Normalize(intPtr(-50), intPtr(3), Black)
	if ev.Mate == nil || *ev.Mate != -3 {
		t.Fatalf("black mates in 3 should be -3: %+v", ev)
	}
	if ev.Pawns != -MatePawns {
		t.Fatalf("pawns = %v", ev.Pawns)
	}
	if ev.Percentage() != 0 {
		t.Fatalf("percentage = %v", ev.Percentage())
	}

	ev = Normalize(nil, intPtr(-2), Black)
	if *ev.Mate != 2 || ev.Percentage() != 100 {
		t.Fatalf("black mated in 2: %+v", ev)
	}

	ev = Normalize(nil, intPtr(0), White)
	if ev.Pawns != -MatePawns || ev.Percentage() != 0 {
		t.Fatalf("white already mated: %+v", ev)
	}
}

func TestDisplayPercentageClamps(t *testing.T) {
	cases := []struct {
		pawns float64
		want  float64
	}{
		{-100, 5},
		{100, 95},
		{0, 50},
	}
	for _, c := range cases {
		if got := DisplayPercentage(c.pawns); got != c.want {
			t.Fatalf("DisplayPercentage(%v) = %v, want %v", c.pawns, got, c.want)
		}
	}
	got := DisplayPercentage(1)
	want := 100 / (1 + math.Exp(-0.4))
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("DisplayPercentage(1) = %v, want %v", got, want)
	}
	if DisplayPercentage(math.Inf(1)) != 95 || DisplayPercentage(math.NaN()) != 50 {
		t.Fatalf("non-finite pawns should stay on the bar")
	}
}

func TestMatePercentageFollowsMatingSide(t *testing.T) {
	cases := []struct {
		name string
		ev   Evaluation
		want float64
	}{
		{"white mates in 4", Normalize(nil, intPtr(4), White), 100},
		{"black mates in 4", Normalize(nil, intPtr(4), Black), 0},
		{"black already mated", Normalize(nil, intPtr(0), Black), 100},
		{"white already mated", Normalize(nil, intPtr(0), White), 0},
	}
	for _, c := range cases {
		if !c.ev.IsMate() {
			t.Fatalf("%s: not reported as mate", c.name)
		}
		if got := c.ev.Percentage(); got != c.want {
			t.Fatalf("%s: Percentage() = %v, want %v", c.name, got, c.want)
		}
	}
	if Normalize(intPtr(120), nil, White).IsMate() {
		t.Fatalf("centipawn score reported as mate")
	}
}

func TestEvaluationText(t *testing.T) {
	cases := []struct {
		ev   Evaluation
		want string
	}{
		{Evaluation{Pawns: 0.01}, "0.0"},
		{Evaluation{Pawns: 1.24}, "+1.2"},
		{Evaluation{Pawns: -0.6}, "-0.6"},
		{Evaluation{Pawns: 12.4}, "+12"},
		{Evaluation{Pawns: -MatePawns, Mate: intPtr(-3)}, "M3"},
	}
	for _, c := range cases {
		if got := c.ev.Text(); got != c.want {
			t.Fatalf("Text(%+v) = %q, want %q", c.ev, got, c.want)
		}
	}
}

func TestEvaluationDescription(t *testing.T) {
	cases := []struct {
		ev   Evaluation
		want string
	}{
		{Evaluation{Pawns: 0.3}, "Equal position"},
		{Evaluation{Pawns: 0.8}, "White: Slight advantage"},
		{Evaluation{Pawns: -2}, "Black: Clear advantage"},
		{Evaluation{Pawns: 3.5}, "White: Major advantage"},
		{Evaluation{Pawns: -6}, "Black: Decisive advantage"},
		{Evaluation{Pawns: 15}, "White: Completely winning"},
		{Evaluation{Pawns: MatePawns, Mate: intPtr(2)}, "Checkmate in 2"},
	}
	for _, c := range cases {
		if got := c.ev.Description(); got != c.want {
			t.Fatalf("Description(%+v) = %q, want %q", c.ev, got, c.want)
		}
	}
}
