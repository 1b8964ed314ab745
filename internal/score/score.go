// Package score computes improvement metrics between two analysis results.
package score

import "github.com/sprite-ai/revu/internal/model"

// Delta summarizes the effect of a fix, measured by re-analysis.
type Delta struct {
	// Measured is false when no re-analysis has run yet; all other fields
	// are then zero and must not be displayed as a real improvement.
	Measured bool `json:"measured"`

	// ScoreImprovement is after minus before. Negative when a fix regressed
	// quality; never clamped.
	ScoreImprovement float64 `json:"score_improvement"`

	// IssuesFixed counts selected keys from before that no longer appear in
	// after. Keys are re-derived from after's issues.
	IssuesFixed int `json:"issues_fixed"`

	// IssuesRemaining is after's distinct issue count.
	IssuesRemaining int `json:"issues_remaining"`
}

// Compute derives the delta between a before and after result for the given
// selection. A nil after yields the unmeasured zero Delta.
func Compute(before, after *model.AnalysisResult, selected map[model.IssueKey]struct{}) Delta {
	if before == nil || after == nil {
		return Delta{}
	}

	afterKeys := after.KeySet()
	fixed := 0
	for k := range selected {
		if _, still := afterKeys[k]; !still {
			fixed++
		}
	}

	return Delta{
		Measured:         true,
		ScoreImprovement: after.OverallScore - before.OverallScore,
		IssuesFixed:      fixed,
		IssuesRemaining:  after.UniqueIssueCount(),
	}
}

// Interpret maps an overall score to its quality band.
func Interpret(score float64) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 80:
		return "good"
	case score >= 70:
		return "fair"
	case score >= 60:
		return "needs work"
	default:
		return "poor"
	}
}
