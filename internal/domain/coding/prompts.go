package coding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rcm/rcm/internal/retriever"
)

// Prompt templates for the LLM-bearing stages. The text is data, not logic:
// chain-of-thought framing with few-shot exemplars, always demanding a strict
// JSON response that extractJSONBlock can recover even when the model wraps
// it in prose.

const diagnosisPromptTemplate = `You are an expert medical coding specialist with 15+ years of experience in ICD-10-CM coding.

TASK: Extract appropriate ICD-10-CM diagnosis codes from clinical documentation using systematic reasoning.

REASONING FRAMEWORK:
1. Chief Complaint Analysis: identify primary symptoms and complaints
2. Clinical Findings: extract objective findings from examination
3. Diagnostic Reasoning: link symptoms to potential diagnoses
4. Code Selection: choose the most specific ICD-10-CM codes
5. Confidence Assessment: rate confidence based on documentation completeness

%sCLINICAL NOTES:
%s

FEW-SHOT EXAMPLES:

Example 1:
Notes: "Patient presents with severe chest pain radiating to left arm, diaphoresis, and elevated troponin levels. ECG shows ST elevation in leads II, III, aVF."
Reasoning: chest pain with radiation suggests cardiac origin; elevated troponin plus ST elevation confirms myocardial infarction; leads II/III/aVF localize it to the inferior wall.
Output: [{"code": "I21.19", "description": "ST elevation myocardial infarction involving other coronary artery of inferior wall", "confidence": 0.95, "rationale": "Clear diagnostic criteria met with ECG and biomarker evidence"}]

Example 2:
Notes: "45yo F with Type 2 diabetes, HbA1c 8.2%%, on metformin, presents for follow-up. Reports polyuria and polydipsia."
Reasoning: established Type 2 diabetes; HbA1c 8.2%% shows inadequate glycemic control; polyuria and polydipsia are symptomatic hyperglycemia without documented end-organ damage.
Output: [{"code": "E11.65", "description": "Type 2 diabetes mellitus with hyperglycemia", "confidence": 0.92, "rationale": "HbA1c confirms inadequate control with symptomatic hyperglycemia"}]

NOW ANALYZE THE PROVIDED NOTES.

Respond with ONLY a valid JSON array (no markdown):
[
  {
    "code": "ICD-10 code",
    "description": "Full description",
    "confidence": 0.0-1.0,
    "rationale": "Why this code was selected",
    "alternative_codes": ["code1", "code2"]
  }
]

Provide 3-7 codes ordered by relevance. Use the maximum specificity the documentation supports.`

const procedurePromptTemplate = `You are a certified professional coder (CPC) specializing in procedural coding.

TASK: Generate appropriate CPT/HCPCS codes for procedures likely performed based on the diagnosis codes.

METHODOLOGY:
1. Diagnosis Review: understand the clinical context from the ICD codes
2. Standard Treatment Protocols: apply clinical guidelines for typical procedures
3. Payer Rules: consider coverage and medical necessity
4. Code Relationships: verify CPT-ICD logical pairing
5. Probability Ranking: assign likelihood based on standard of care

DIAGNOSIS CODES:
%s

ADDITIONAL CONTEXT:
- Setting: %s
- Specialty: %s
- Payer Type: %s

FEW-SHOT EXAMPLE:
ICD: I21.19 (Acute MI, inferior wall), Setting: Emergency Department
Output: [
  {"code": "93458", "description": "Catheter placement in coronary artery for angiography", "confidence": 0.95, "rationale": "Standard diagnostic for acute MI"},
  {"code": "92928", "description": "Percutaneous transcatheter placement of intracoronary stent", "confidence": 0.85, "rationale": "Common therapeutic intervention for STEMI"},
  {"code": "93000", "description": "Electrocardiogram, routine ECG with interpretation", "confidence": 1.0, "rationale": "Required for MI diagnosis"}
]

Respond with ONLY a valid JSON array:
[
  {
    "code": "CPT/HCPCS code",
    "description": "Full description",
    "confidence": 0.0-1.0,
    "rationale": "Why this code is likely",
    "alternative_codes": ["code1"]
  }
]

Provide 5-15 codes ordered by descending confidence.`

const comparisonPromptTemplate = `You are a senior medical coding auditor performing pre-submission claim validation.

TASK: Compare the manual coder's codes against the AI-suggested codes using the reference documentation and identify gaps.

VALIDATION FRAMEWORK:
1. Exact Match Analysis: codes that match perfectly
2. Clinical Equivalence: codes that differ but are clinically appropriate
3. Specificity Issues: either side using less specific codes
4. Missing Codes: codes one side identified that the other missed
5. Incorrect Codes: codes contradicted by the clinical documentation
6. Modifier Analysis: required modifiers missing or incorrect

REFERENCE DOCUMENTATION:
%s

MANUAL CODER CODES:
ICD-10: %s
CPT/HCPCS: %s

AI-SUGGESTED CODES:
ICD-10: %s
CPT/HCPCS: %s

CLINICAL DOCUMENTATION:
%s

Output ONLY valid JSON:
{
  "validation_summary": {
    "overall_accuracy": 0.0-1.0,
    "denial_risk": 0.0-1.0,
    "confidence": 0.0-1.0
  },
  "exact_matches": {
    "icd": ["code1"],
    "cpt": ["code1"]
  },
  "discrepancies": [
    {
      "type": "missing|incorrect|specificity|modifier|compliance",
      "code": "affected code",
      "source": "manual|ai",
      "severity": "critical|high|medium|low",
      "issue": "Description of the issue",
      "resolution": "How to fix it",
      "financial_impact": 0.0
    }
  ]
}`

const necessityPromptTemplate = `Verify medical necessity: do these CPT codes have appropriate ICD support?

ICD Codes: %s
CPT Codes: %s

Respond with ONLY valid JSON:
{
  "overall_necessity": 0.0-1.0,
  "issues": [
    {"procedure": "code", "support": "weak|none|adequate", "recommendation": "..."}
  ]
}`

const compliancePromptTemplate = `Check billing compliance for a %s payer.

ICD: %s
CPT: %s

Check:
1. NCCI bundling edits
2. Modifier requirements
3. Medical policy (LCD/NCD)
4. Frequency limitations

Respond with ONLY valid JSON:
{
  "compliant": true,
  "violations": [{"rule": "...", "codes": [], "fix": "..."}],
  "required_modifiers": [{"code": "...", "modifier": "..."}]
}`

const summaryPromptTemplate = `You are a Revenue Cycle Management executive creating actionable insights from a coding validation run.

TASK: Generate an executive summary with financial impact and ranked priority actions.

VALIDATION REPORT:
%s

Respond with ONLY valid JSON:
{
  "executive_summary": {
    "claim_status": "clean|needs_review|critical_issues",
    "overall_confidence": 0.0-1.0,
    "estimated_revenue": "$XXXX",
    "revenue_at_risk": "$XXXX",
    "denial_probability": 0.0-1.0,
    "key_findings": ["finding1", "finding2"]
  },
  "priority_actions": [
    {"priority": "P0|P1|P2|P3", "action": "Specific actionable step", "impact": "high|medium|low", "owner": "role responsible"}
  ]
}`

// maxReferencePassages bounds how much retrieved context goes into the
// diagnosis prompt.
const maxReferencePassages = 3

func formatDiagnosisPrompt(narrative string, passages []retriever.Passage) string {
	var refs strings.Builder
	for i, p := range passages {
		if i >= maxReferencePassages {
			break
		}
		refs.WriteString("REFERENCE: ")
		refs.WriteString(truncateText(p.Text, 500))
		refs.WriteString("\n\n")
	}
	guideline := ""
	if refs.Len() > 0 {
		guideline = "REFERENCE GUIDELINES:\n" + refs.String() + "\n"
	}
	return fmt.Sprintf(diagnosisPromptTemplate, guideline, narrative)
}

func formatProcedurePrompt(diagnoses []CodeCandidate, setting, specialty, payerType string) string {
	return fmt.Sprintf(procedurePromptTemplate, candidateJSON(diagnoses), setting, specialty, payerType)
}

func formatComparisonPrompt(manual ManualCodeSet, aiDiagnosis, aiProcedure []CodeCandidate, narrative string, passages []retriever.Passage) string {
	var refs strings.Builder
	for i, p := range passages {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&refs, "%s: %s\n\n", p.SourceID, truncateText(p.Text, 300))
	}
	return fmt.Sprintf(comparisonPromptTemplate,
		refs.String(),
		strings.Join(manual.Diagnosis, ", "),
		strings.Join(manual.Procedure, ", "),
		candidateJSON(aiDiagnosis),
		candidateJSON(aiProcedure),
		narrative)
}

func formatNecessityPrompt(diagnoses, procedures []CodeCandidate) string {
	return fmt.Sprintf(necessityPromptTemplate, candidateJSON(diagnoses), candidateJSON(procedures))
}

func formatCompliancePrompt(diagnoses, procedures []CodeCandidate, payerType string) string {
	return fmt.Sprintf(compliancePromptTemplate, payerType,
		strings.Join(codeList(diagnoses), ", "),
		strings.Join(codeList(procedures), ", "))
}

func formatSummaryPrompt(comparison ComparisonResult, necessity NecessityResult, compliance ComplianceResult) string {
	report, _ := json.MarshalIndent(map[string]interface{}{
		"validation":        comparison,
		"medical_necessity": necessity,
		"compliance":        compliance,
	}, "", "  ")
	return fmt.Sprintf(summaryPromptTemplate, report)
}

func candidateJSON(candidates []CodeCandidate) string {
	if len(candidates) == 0 {
		return "[]"
	}
	data, _ := json.MarshalIndent(candidates, "", "  ")
	return string(data)
}

func codeList(candidates []CodeCandidate) []string {
	codes := make([]string, 0, len(candidates))
	for _, c := range candidates {
		codes = append(codes, c.Code)
	}
	return codes
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
