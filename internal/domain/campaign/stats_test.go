package campaign

import "testing"

func TestProgress(t *testing.T) {
	tests := []struct {
		total, completed int
		want             float64
	}{
		{0, 0, 0},
		{10, 0, 0},
		{10, 10, 100},
		{3, 1, 33.33},
		{3, 2, 66.67},
		{7, 5, 71.43},
		{200, 1, 0.5},
	}
	for _, tc := range tests {
		if got := Progress(tc.total, tc.completed); got != tc.want {
			t.Errorf("Progress(%d, %d) = %v, want %v", tc.total, tc.completed, got, tc.want)
		}
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(DecisionCounts{
		"pending":   4,
		"approved":  3,
		"revoked":   2,
		"exception": 1,
	}, 2)

	if stats.TotalReviews != 10 {
		t.Fatalf("total = %d", stats.TotalReviews)
	}
	if stats.CompletedReviews != 6 {
		t.Fatalf("completed = %d", stats.CompletedReviews)
	}
	if stats.ProgressPct != 60 {
		t.Fatalf("pct = %v", stats.ProgressPct)
	}
	if stats.Approved != 3 || stats.Revoked != 2 || stats.Exceptions != 1 || stats.Delegated != 0 {
		t.Fatalf("breakdown = %+v", stats)
	}
	if stats.Flagged != 2 {
		t.Fatalf("flagged = %d", stats.Flagged)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(DecisionCounts{}, 0)
	if stats.TotalReviews != 0 || stats.ProgressPct != 0 {
		t.Fatalf("empty stats = %+v", stats)
	}
}

func TestComputeStatsIdempotent(t *testing.T) {
	counts := DecisionCounts{"pending": 1, "approved": 5}
	first := ComputeStats(counts, 1)
	second := ComputeStats(counts, 1)
	if first != second {
		t.Fatalf("recompute diverged: %+v vs %+v", first, second)
	}
}
