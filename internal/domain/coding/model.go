// Package coding implements the multi-stage medical coding validation
// pipeline: code proposal from clinical narratives, cross-validation against
// manual codes, executive summarization, and the final approve/hold/reject
// decision.
package coding

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CodeType tags a candidate as a diagnosis (ICD-10) or procedure (CPT/HCPCS)
// code. Same struct, different tag.
type CodeType string

const (
	CodeTypeDiagnosis CodeType = "diagnosis"
	CodeTypeProcedure CodeType = "procedure"
)

// CodeCandidate is one AI-proposed billing code. Candidates are never
// mutated after creation; validation produces findings, not edits.
type CodeCandidate struct {
	Type             CodeType `json:"type"`
	Code             string   `json:"code"`
	Description      string   `json:"description"`
	Confidence       float64  `json:"confidence"`
	Rationale        string   `json:"rationale"`
	AlternativeCodes []string `json:"alternative_codes,omitempty"`
}

// ManualCodeSet is the human coder's ground truth for an encounter.
// Read-only input to cross-validation.
type ManualCodeSet struct {
	Diagnosis []string `json:"diagnosis"`
	Procedure []string `json:"procedure"`
}

// Finding severities and categories, worst first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

const (
	CategoryMissing     = "missing"
	CategoryIncorrect   = "incorrect"
	CategorySpecificity = "specificity"
	CategoryModifier    = "modifier"
	CategoryCompliance  = "compliance"
)

// ValidationFinding is one discrepancy surfaced by cross-validation.
// Aggregated into the final report, never mutated.
type ValidationFinding struct {
	Severity        string   `json:"severity"`
	Category        string   `json:"category"`
	Code            string   `json:"code"`
	Source          string   `json:"source,omitempty"` // manual or ai
	Issue           string   `json:"issue"`
	Resolution      string   `json:"resolution"`
	FinancialImpact *float64 `json:"financial_impact,omitempty"`
}

// ComparisonResult is the outcome of comparing AI-proposed codes against the
// manual code set. Accuracy and DenialRisk are LLM-estimated, not
// ground-truth; the component clamps them but does not recompute them.
type ComparisonResult struct {
	Accuracy     float64 `json:"accuracy"`
	DenialRisk   float64 `json:"denial_risk"`
	Confidence   float64 `json:"confidence"`
	ExactMatches struct {
		Diagnosis []string `json:"diagnosis"`
		Procedure []string `json:"procedure"`
	} `json:"exact_matches"`
	Findings []ValidationFinding `json:"findings"`
}

// NeutralComparison is the degraded default when the comparison check fails.
// Zero accuracy and full denial risk bias the decision toward manual review,
// never toward a false approval.
func NeutralComparison() ComparisonResult {
	return ComparisonResult{Accuracy: 0, DenialRisk: 1}
}

// NecessityIssue flags a procedure with weak or missing diagnosis support.
type NecessityIssue struct {
	Procedure      string `json:"procedure"`
	Support        string `json:"support"` // weak, none, or adequate
	Recommendation string `json:"recommendation"`
}

// NecessityResult is the medical-necessity check outcome.
type NecessityResult struct {
	OverallNecessity float64          `json:"overall_necessity"`
	Issues           []NecessityIssue `json:"issues"`
}

// NeutralNecessity is the degraded default when the necessity check fails.
func NeutralNecessity() NecessityResult {
	return NecessityResult{OverallNecessity: 0.5}
}

// ComplianceViolation is one payer-rule violation (bundling, frequency,
// policy).
type ComplianceViolation struct {
	Rule  string   `json:"rule"`
	Codes []string `json:"codes"`
	Fix   string   `json:"fix"`
}

// RequiredModifier names a modifier a procedure code needs for the payer.
type RequiredModifier struct {
	Code     string `json:"code"`
	Modifier string `json:"modifier"`
}

// ComplianceResult is the payer-compliance check outcome.
type ComplianceResult struct {
	Compliant         bool                  `json:"compliant"`
	Violations        []ComplianceViolation `json:"violations"`
	RequiredModifiers []RequiredModifier    `json:"required_modifiers,omitempty"`
}

// NeutralCompliance is the degraded default when the compliance check fails.
func NeutralCompliance() ComplianceResult {
	return ComplianceResult{Compliant: true, Violations: []ComplianceViolation{}}
}

// Claim statuses reported by the executive summary.
const (
	ClaimStatusClean          = "clean"
	ClaimStatusNeedsReview    = "needs_review"
	ClaimStatusCriticalIssues = "critical_issues"
)

// PriorityAction is one ranked remediation step (P0 most urgent).
type PriorityAction struct {
	Priority string `json:"priority"` // P0..P3
	Action   string `json:"action"`
	Impact   string `json:"impact,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// ExecutiveSummary is the summarizer stage's output for RCM leadership.
type ExecutiveSummary struct {
	ClaimStatus       string           `json:"claim_status"`
	OverallConfidence float64          `json:"overall_confidence"`
	EstimatedRevenue  string           `json:"estimated_revenue,omitempty"`
	RevenueAtRisk     string           `json:"revenue_at_risk,omitempty"`
	DenialProbability float64          `json:"denial_probability"`
	KeyFindings       []string         `json:"key_findings,omitempty"`
	PriorityActions   []PriorityAction `json:"priority_actions,omitempty"`
}

// NeutralSummary is the degraded default when summarization fails.
func NeutralSummary() ExecutiveSummary {
	return ExecutiveSummary{ClaimStatus: ClaimStatusNeedsReview}
}

// Decision is the pipeline's final verdict. Produced deterministically by
// Decide; no LLM involvement.
type Decision struct {
	Approved             bool    `json:"approved"`
	Confidence           float64 `json:"confidence"`
	DenialRisk           float64 `json:"denial_risk"`
	RequiresManualReview bool    `json:"requires_manual_review"`
	Recommendation       string  `json:"recommendation"`
	EscalationReason     string  `json:"escalation_reason,omitempty"`
	ReviewPriority       string  `json:"review_priority,omitempty"`
}

// Pipeline stage names in execution order.
const (
	StageParsing        = "parsing"
	StageRetrieval      = "retrieval"
	StageCodeGeneration = "code_generation"
	StageValidation     = "validation"
	StageSummary        = "summary"
	StageDecision       = "decision"
)

// Stage statuses.
const (
	StatusSuccess  = "success"
	StatusBypassed = "bypassed"
	StatusError    = "error"
)

// StageStatus records one stage's terminal state. Exactly one entry exists
// per scheduled stage, in execution order, regardless of outcome.
type StageStatus struct {
	Name       string                 `json:"name"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
}

// Metadata aggregates run-level information.
type Metadata struct {
	ExecutionMode       string        `json:"execution_mode"` // parallel or sequential
	StartTime           time.Time     `json:"start_time"`
	EndTime             time.Time     `json:"end_time"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	Stages              []StageStatus `json:"per_stage_status"`
	Error               string        `json:"error,omitempty"`
}

// Candidates groups the two proposal flavors.
type Candidates struct {
	Diagnosis []CodeCandidate `json:"diagnosis"`
	Procedure []CodeCandidate `json:"procedure"`
}

// PipelineResult is the sole object returned to external callers. Each stage
// appends its own sub-object; earlier sub-objects are only ever read again,
// never rewritten.
type PipelineResult struct {
	RunID            uuid.UUID           `json:"run_id"`
	Metadata         Metadata            `json:"metadata"`
	Narrative        string              `json:"narrative"`
	Candidates       Candidates          `json:"candidates"`
	Findings         []ValidationFinding `json:"findings"`
	NecessityScore   float64             `json:"necessity_score"`
	Compliance       ComplianceResult    `json:"compliance"`
	ExecutiveSummary ExecutiveSummary    `json:"executive_summary"`
	Decision         Decision            `json:"decision"`
}

// clamp01 pins a score into [0,1]. Out-of-range model output is clamped on
// ingestion and never propagated raw.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// flexFloat unmarshals a score the model may emit as a number, a numeric
// string, or garbage. Garbage decodes to zero rather than failing the whole
// candidate list.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*f = 0
			return nil
		}
		s = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}
