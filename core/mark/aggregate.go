package mark

// Summary aggregates the scores of several markers over one submission.
type Summary struct {
	MarkerCount int     `json:"marker_count"`
	Average     float64 `json:"average"`
}

// Summarize averages every criterion score of every mark as one flat pool of
// numbers. Non-finalized marks count the same as finalized ones; marks with an
// empty score map contribute nothing to the pool but still count as markers.
func Summarize(marks []Mark) Summary {
	s := Summary{MarkerCount: len(marks)}
	var sum float64
	var n int
	for _, m := range marks {
		for _, v := range m.Marks {
			sum += v
			n++
		}
	}
	if n > 0 {
		s.Average = sum / float64(n)
	}
	return s
}
