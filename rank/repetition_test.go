package rank_test

import (
	"testing"

	"github.com/nightjar-organ/virga/rank"
)

func TestParseRepetitionsNoProgram(t *testing.T) {
	points, err := rank.ParseRepetitions("an ordinary comment with no dollar signs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if points != nil {
		t.Fatalf("points = %v, want nil", points)
	}
}

func TestParseRepetitionsBareIntegerAndFraction(t *testing.T) {
	points, err := rank.ParseRepetitions("voiced by hand $ 48:2 60:3/2 $ trailing notes ignored")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []rank.RepetitionPoint{
		{Note: 48, Num: 2, Den: 1},
		{Note: 60, Num: 3, Den: 2},
	}
	if len(points) != len(want) {
		t.Fatalf("len(points) = %d, want %d", len(points), len(want))
	}
	for i, p := range points {
		if p != want[i] {
			t.Fatalf("points[%d] = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestParseRepetitionsMixedNumber(t *testing.T) {
	points, err := rank.ParseRepetitions("$ 72:1+1/2 $")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("len(points) = %d, want 1", len(points))
	}
	if got := points[0]; got.Num != 3 || got.Den != 2 {
		t.Fatalf("points[0] = %+v, want Num=3 Den=2", got)
	}
}

func TestParseRepetitionsMalformedToken(t *testing.T) {
	_, err := rank.ParseRepetitions("$ nope $")
	if err == nil {
		t.Fatal("expected an error for a token with no ':'")
	}
}

func TestParseRepetitionsMalformedPitch(t *testing.T) {
	_, err := rank.ParseRepetitions("$ 60:abc $")
	if err == nil {
		t.Fatal("expected an error for a non-numeric pitch")
	}
}
