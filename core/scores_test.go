package core

import (
	"testing"
)

func TestScoreMap_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b ScoreMap
		want bool
	}{
		{name: "both nil", a: nil, b: nil, want: true},
		{name: "nil vs empty", a: nil, b: ScoreMap{}, want: true},
		{name: "same values", a: ScoreMap{"Q1": 10, "Q2": 5}, b: ScoreMap{"Q2": 5, "Q1": 10}, want: true},
		{name: "different value", a: ScoreMap{"Q1": 10}, b: ScoreMap{"Q1": 9}, want: false},
		{name: "missing key", a: ScoreMap{"Q1": 10, "Q2": 5}, b: ScoreMap{"Q1": 10}, want: false},
		{name: "extra key", a: ScoreMap{"Q1": 10}, b: ScoreMap{"Q1": 10, "Q2": 5}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestScoreMap_ValidateAgainst(t *testing.T) {
	rubric := ScoreMap{"Q1": 10, "Q2": 5}

	tests := []struct {
		name    string
		marks   ScoreMap
		wantErr bool
	}{
		{name: "empty", marks: ScoreMap{}},
		{name: "subset", marks: ScoreMap{"Q1": 7}},
		{name: "full", marks: ScoreMap{"Q1": 7, "Q2": 3}},
		{name: "above max allowed", marks: ScoreMap{"Q1": 12}},
		{name: "unknown criterion", marks: ScoreMap{"Q3": 1}, wantErr: true},
		{name: "negative score", marks: ScoreMap{"Q1": -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.marks.ValidateAgainst(rubric, "marks")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainst() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if _, ok := err.(*ValidationError); !ok {
					t.Errorf("ValidateAgainst() error type = %T; want *ValidationError", err)
				}
			}
		})
	}
}

func TestScoreMap_ScanValue(t *testing.T) {
	var m ScoreMap
	if err := m.Scan([]byte(`{"Q1":7.5,"Q2":3}`)); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if !m.Equal(ScoreMap{"Q1": 7.5, "Q2": 3}) {
		t.Errorf("Scan() = %v", m)
	}

	var empty ScoreMap
	if err := empty.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Scan(nil) = %v; want empty map", empty)
	}

	val, err := ScoreMap(nil).Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if string(val.([]byte)) != "{}" {
		t.Errorf("Value() of nil map = %s; want {}", val)
	}
}
