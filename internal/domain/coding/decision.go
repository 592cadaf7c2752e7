package coding

// Decision thresholds. The boundaries are strict: denial risk exactly 0.2
// does not auto-approve, exactly 0.7 does not auto-reject.
const (
	approveDenialRiskCeiling = 0.2
	rejectDenialRiskFloor    = 0.7
	highPriorityDenialRisk   = 0.5
)

// Decide produces the final verdict from the comparison scores and the
// summarized claim status. It is pure and deterministic: no LLM call, no
// clock, no I/O. Every input combination maps to exactly one of three
// outcomes, and anything short of a clean high-confidence claim requires
// manual review. The reported confidence is the comparison accuracy; the
// comparison's own confidence field does not feed the verdict.
func Decide(comparison ComparisonResult, claimStatus string, threshold float64) Decision {
	d := Decision{
		Confidence: comparison.Accuracy,
		DenialRisk: comparison.DenialRisk,
	}

	switch {
	case claimStatus == ClaimStatusClean &&
		comparison.Accuracy >= threshold &&
		comparison.DenialRisk < approveDenialRiskCeiling:
		d.Approved = true
		d.Recommendation = "Approve for submission"

	case claimStatus == ClaimStatusCriticalIssues ||
		comparison.DenialRisk > rejectDenialRiskFloor:
		d.Approved = false
		d.RequiresManualReview = true
		d.Recommendation = "Do not submit - critical issues found"
		d.EscalationReason = "High denial risk"

	default:
		d.Approved = false
		d.RequiresManualReview = true
		d.Recommendation = "Hold for manual review"
		if comparison.DenialRisk >= highPriorityDenialRisk {
			d.ReviewPriority = "High"
		} else {
			d.ReviewPriority = "Medium"
		}
	}
	return d
}
