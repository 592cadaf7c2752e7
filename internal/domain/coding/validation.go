package coding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcm/rcm/internal/llm"
	"github.com/rcm/rcm/internal/retriever"
)

// Validation checks run at temperature zero. Each is independent of the
// other two; the orchestrator may run them concurrently.
const validationMaxTokens = 3000

type comparisonWire struct {
	ValidationSummary struct {
		OverallAccuracy flexFloat `json:"overall_accuracy"`
		DenialRisk      flexFloat `json:"denial_risk"`
		Confidence      flexFloat `json:"confidence"`
	} `json:"validation_summary"`
	ExactMatches struct {
		ICD []string `json:"icd"`
		CPT []string `json:"cpt"`
	} `json:"exact_matches"`
	Discrepancies []struct {
		Type            string    `json:"type"`
		Code            string    `json:"code"`
		Source          string    `json:"source"`
		Severity        string    `json:"severity"`
		Issue           string    `json:"issue"`
		Resolution      string    `json:"resolution"`
		FinancialImpact flexFloat `json:"financial_impact"`
	} `json:"discrepancies"`
}

// CompareCodes audits AI-proposed codes against the manual set. Accuracy and
// denial risk are taken from the model's structured response and clamped;
// they are estimates, not recomputed ground truth.
func (e *Engine) CompareCodes(ctx context.Context, manual ManualCodeSet, aiDiagnosis, aiProcedure []CodeCandidate, narrative string, passages []retriever.Passage) (ComparisonResult, error) {
	prompt := formatComparisonPrompt(manual, aiDiagnosis, aiProcedure, narrative, passages)
	response, err := e.client.Chat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.Options{Temperature: 0, MaxTokens: validationMaxTokens})
	if err != nil {
		return NeutralComparison(), fmt.Errorf("compare codes: %w", err)
	}

	raw, ok := extractJSONBlock(response)
	if !ok {
		return NeutralComparison(), ErrUnparsableResponse
	}
	var wire comparisonWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return NeutralComparison(), ErrUnparsableResponse
	}

	result := ComparisonResult{
		Accuracy:   clamp01(float64(wire.ValidationSummary.OverallAccuracy)),
		DenialRisk: clamp01(float64(wire.ValidationSummary.DenialRisk)),
		Confidence: clamp01(float64(wire.ValidationSummary.Confidence)),
	}
	result.ExactMatches.Diagnosis = wire.ExactMatches.ICD
	result.ExactMatches.Procedure = wire.ExactMatches.CPT

	for _, d := range wire.Discrepancies {
		finding := ValidationFinding{
			Severity:   normalizeSeverity(d.Severity),
			Category:   normalizeCategory(d.Type),
			Code:       d.Code,
			Source:     d.Source,
			Issue:      d.Issue,
			Resolution: d.Resolution,
		}
		if d.FinancialImpact != 0 {
			impact := float64(d.FinancialImpact)
			finding.FinancialImpact = &impact
		}
		result.Findings = append(result.Findings, finding)
	}
	return result, nil
}

type necessityWire struct {
	OverallNecessity flexFloat `json:"overall_necessity"`
	Issues           []struct {
		Procedure      string `json:"procedure"`
		CPT            string `json:"cpt"` // older prompt revision field name
		Support        string `json:"support"`
		ICDSupport     string `json:"icd_support"`
		Recommendation string `json:"recommendation"`
	} `json:"issues"`
}

// CheckMedicalNecessity verifies each procedure candidate has clinical
// support from at least one diagnosis candidate.
func (e *Engine) CheckMedicalNecessity(ctx context.Context, diagnoses, procedures []CodeCandidate) (NecessityResult, error) {
	prompt := formatNecessityPrompt(diagnoses, procedures)
	response, err := e.client.Chat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.Options{Temperature: 0, MaxTokens: 1500})
	if err != nil {
		return NeutralNecessity(), fmt.Errorf("check medical necessity: %w", err)
	}

	raw, ok := extractJSONBlock(response)
	if !ok {
		return NeutralNecessity(), ErrUnparsableResponse
	}
	var wire necessityWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return NeutralNecessity(), ErrUnparsableResponse
	}

	result := NecessityResult{OverallNecessity: clamp01(float64(wire.OverallNecessity))}
	for _, issue := range wire.Issues {
		procedure := issue.Procedure
		if procedure == "" {
			procedure = issue.CPT
		}
		support := issue.Support
		if support == "" {
			support = issue.ICDSupport
		}
		result.Issues = append(result.Issues, NecessityIssue{
			Procedure:      procedure,
			Support:        support,
			Recommendation: issue.Recommendation,
		})
	}
	return result, nil
}

type complianceWire struct {
	Compliant  bool `json:"compliant"`
	Violations []struct {
		Rule  string   `json:"rule"`
		Codes []string `json:"codes"`
		Fix   string   `json:"fix"`
	} `json:"violations"`
	RequiredModifiers []struct {
		Code     string `json:"code"`
		Modifier string `json:"modifier"`
	} `json:"required_modifiers"`
}

// CheckCompliance reasons over payer bundling, modifier, and frequency rules.
// This is a soft, explainable check, not a certified claims-adjudication
// engine.
func (e *Engine) CheckCompliance(ctx context.Context, diagnoses, procedures []CodeCandidate, payerType string) (ComplianceResult, error) {
	prompt := formatCompliancePrompt(diagnoses, procedures, payerType)
	response, err := e.client.Chat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.Options{Temperature: 0, MaxTokens: 1500})
	if err != nil {
		return NeutralCompliance(), fmt.Errorf("check compliance: %w", err)
	}

	raw, ok := extractJSONBlock(response)
	if !ok {
		return NeutralCompliance(), ErrUnparsableResponse
	}
	var wire complianceWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return NeutralCompliance(), ErrUnparsableResponse
	}

	result := ComplianceResult{Compliant: wire.Compliant, Violations: []ComplianceViolation{}}
	for _, v := range wire.Violations {
		result.Violations = append(result.Violations, ComplianceViolation{
			Rule: v.Rule, Codes: v.Codes, Fix: v.Fix,
		})
	}
	for _, m := range wire.RequiredModifiers {
		result.RequiredModifiers = append(result.RequiredModifiers, RequiredModifier{
			Code: m.Code, Modifier: m.Modifier,
		})
	}
	return result, nil
}

func normalizeSeverity(s string) string {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return s
	default:
		return SeverityMedium
	}
}

func normalizeCategory(s string) string {
	switch s {
	case CategoryMissing, CategoryIncorrect, CategorySpecificity, CategoryModifier, CategoryCompliance:
		return s
	default:
		return CategoryIncorrect
	}
}
