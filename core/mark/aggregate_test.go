package mark

import (
	"testing"

	"github.com/trezcool/alama/core"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name      string
		marks     []Mark
		wantCount int
		wantAvg   float64
	}{
		{name: "no marks"},
		{
			name:      "empty drafts only",
			marks:     []Mark{{Marks: core.ScoreMap{}}, {Marks: core.ScoreMap{}}},
			wantCount: 2,
		},
		{
			name: "single marker",
			marks: []Mark{
				{Marks: core.ScoreMap{"Content": 8, "Style": 6}},
			},
			wantCount: 1,
			wantAvg:   7,
		},
		{
			name: "flattened mean across markers",
			marks: []Mark{
				{Marks: core.ScoreMap{"Content": 8, "Style": 6}},
				{Marks: core.ScoreMap{"Content": 10}},
			},
			wantCount: 2,
			wantAvg:   8,
		},
		{
			name: "empty draft counts as marker but not in mean",
			marks: []Mark{
				{Marks: core.ScoreMap{"Content": 4}},
				{Marks: core.ScoreMap{}},
			},
			wantCount: 2,
			wantAvg:   4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.marks)
			if got.MarkerCount != tt.wantCount {
				t.Errorf("MarkerCount = %d; want %d", got.MarkerCount, tt.wantCount)
			}
			if got.Average != tt.wantAvg {
				t.Errorf("Average = %v; want %v", got.Average, tt.wantAvg)
			}
		})
	}
}
