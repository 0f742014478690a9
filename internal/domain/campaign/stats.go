package campaign

import "math"

// Progress returns completion as a percentage rounded to two decimals.
// A campaign with no reviews is 0% complete, never a division error.
func Progress(total, completed int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*10000) / 100
}

// DecisionCounts is the per-decision breakdown of a campaign's items,
// keyed by decision value.
type DecisionCounts map[string]int

// ComputeStats derives campaign statistics from raw decision counts.
// Counters are always derived from items, never incremented in place,
// so a recompute after any decision converges to the truth.
func ComputeStats(counts DecisionCounts, flagged int) Stats {
	total := 0
	for _, n := range counts {
		total += n
	}
	pending := counts["pending"]
	completed := total - pending
	return Stats{
		TotalReviews:     total,
		CompletedReviews: completed,
		ProgressPct:      Progress(total, completed),
		Approved:         counts["approved"],
		Revoked:          counts["revoked"],
		Exceptions:       counts["exception"],
		Delegated:        counts["delegated"],
		Pending:          pending,
		Flagged:          flagged,
	}
}
