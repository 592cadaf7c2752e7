package coding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcm/rcm/internal/llm"
)

const (
	summaryTemperature = 0.2
	summaryMaxTokens   = 2500
)

type summaryWire struct {
	ExecutiveSummary struct {
		ClaimStatus       string    `json:"claim_status"`
		OverallConfidence flexFloat `json:"overall_confidence"`
		EstimatedRevenue  string    `json:"estimated_revenue"`
		RevenueAtRisk     string    `json:"revenue_at_risk"`
		DenialProbability flexFloat `json:"denial_probability"`
		KeyFindings       []string  `json:"key_findings"`
	} `json:"executive_summary"`
	PriorityActions []struct {
		Priority string `json:"priority"`
		Action   string `json:"action"`
		Impact   string `json:"impact"`
		Owner    string `json:"owner"`
	} `json:"priority_actions"`
}

// Summarize condenses the three validation outcomes into an executive
// summary. The claim status it reports feeds directly into the decision
// stage, so an unrecognized status degrades to needs_review rather than
// passing through.
func (e *Engine) Summarize(ctx context.Context, comparison ComparisonResult, necessity NecessityResult, compliance ComplianceResult) (ExecutiveSummary, error) {
	prompt := formatSummaryPrompt(comparison, necessity, compliance)
	response, err := e.client.Chat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.Options{Temperature: summaryTemperature, MaxTokens: summaryMaxTokens})
	if err != nil {
		return NeutralSummary(), fmt.Errorf("summarize: %w", err)
	}

	raw, ok := extractJSONBlock(response)
	if !ok {
		return NeutralSummary(), ErrUnparsableResponse
	}
	var wire summaryWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return NeutralSummary(), ErrUnparsableResponse
	}

	summary := ExecutiveSummary{
		ClaimStatus:       normalizeClaimStatus(wire.ExecutiveSummary.ClaimStatus),
		OverallConfidence: clamp01(float64(wire.ExecutiveSummary.OverallConfidence)),
		EstimatedRevenue:  wire.ExecutiveSummary.EstimatedRevenue,
		RevenueAtRisk:     wire.ExecutiveSummary.RevenueAtRisk,
		DenialProbability: clamp01(float64(wire.ExecutiveSummary.DenialProbability)),
		KeyFindings:       wire.ExecutiveSummary.KeyFindings,
	}
	for _, a := range wire.PriorityActions {
		summary.PriorityActions = append(summary.PriorityActions, PriorityAction{
			Priority: a.Priority,
			Action:   a.Action,
			Impact:   a.Impact,
			Owner:    a.Owner,
		})
	}
	return summary, nil
}

func normalizeClaimStatus(s string) string {
	switch s {
	case ClaimStatusClean, ClaimStatusNeedsReview, ClaimStatusCriticalIssues:
		return s
	default:
		return ClaimStatusNeedsReview
	}
}
