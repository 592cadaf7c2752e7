package coding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/llm"
	"github.com/rcm/rcm/internal/retriever"
)

// ErrUnparsableResponse indicates the model's text could not be interpreted
// as the expected JSON shape. Stages recover from it locally with a neutral
// default; it never escapes the orchestrator.
var ErrUnparsableResponse = errors.New("coding: model response is not parsable JSON")

// Generation parameters: near-zero temperature for reproducibility.
const (
	proposalTemperature = 0.1
	proposalMaxTokens   = 2000
)

// Engine runs the LLM-bearing stages. It holds the gateway resolved at
// construction and nothing else; every method is a function of its inputs
// plus one or more gateway calls.
type Engine struct {
	client llm.Client
	logger zerolog.Logger
}

func NewEngine(client llm.Client, logger zerolog.Logger) *Engine {
	return &Engine{client: client, logger: logger}
}

// candidateWire is the tolerant decode target for proposal responses. The
// model sometimes reports "probability" or "reasoning" instead of the
// requested field names; both are accepted.
type candidateWire struct {
	Code             string    `json:"code"`
	Description      string    `json:"description"`
	Confidence       flexFloat `json:"confidence"`
	Probability      flexFloat `json:"probability"`
	Rationale        string    `json:"rationale"`
	Reasoning        string    `json:"reasoning"`
	AlternativeCodes []string  `json:"alternative_codes"`
}

func (w candidateWire) toCandidate(typ CodeType) CodeCandidate {
	confidence := float64(w.Confidence)
	if confidence == 0 && w.Probability != 0 {
		confidence = float64(w.Probability)
	}
	rationale := w.Rationale
	if rationale == "" {
		rationale = w.Reasoning
	}
	return CodeCandidate{
		Type:             typ,
		Code:             w.Code,
		Description:      w.Description,
		Confidence:       clamp01(confidence),
		Rationale:        rationale,
		AlternativeCodes: w.AlternativeCodes,
	}
}

// ProposeDiagnoses proposes ICD-10 candidates for the narrative, grounding
// the prompt with up to three retrieved reference passages. A response that
// cannot be parsed yields an empty list and ErrUnparsableResponse so the
// orchestrator can record the failure without aborting.
func (e *Engine) ProposeDiagnoses(ctx context.Context, narrative string, passages []retriever.Passage) ([]CodeCandidate, error) {
	prompt := formatDiagnosisPrompt(narrative, passages)
	response, err := e.client.Chat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.Options{Temperature: proposalTemperature, MaxTokens: proposalMaxTokens})
	if err != nil {
		return nil, fmt.Errorf("propose diagnoses: %w", err)
	}
	return parseCandidates(response, CodeTypeDiagnosis)
}

// ProposeProcedures proposes CPT/HCPCS candidates for the given diagnosis
// candidates and clinical context. Candidates come back sorted by descending
// confidence regardless of model ordering.
func (e *Engine) ProposeProcedures(ctx context.Context, diagnoses []CodeCandidate, setting, specialty, payerType string) ([]CodeCandidate, error) {
	prompt := formatProcedurePrompt(diagnoses, setting, specialty, payerType)
	response, err := e.client.Chat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.Options{Temperature: proposalTemperature, MaxTokens: proposalMaxTokens})
	if err != nil {
		return nil, fmt.Errorf("propose procedures: %w", err)
	}

	candidates, err := parseCandidates(response, CodeTypeProcedure)
	if err != nil {
		return candidates, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates, nil
}

func parseCandidates(response string, typ CodeType) ([]CodeCandidate, error) {
	raw, ok := extractJSONBlock(response)
	if !ok {
		return []CodeCandidate{}, ErrUnparsableResponse
	}

	var wires []candidateWire
	if err := json.Unmarshal(raw, &wires); err != nil {
		// A single object instead of an array still counts.
		var one candidateWire
		if err := json.Unmarshal(raw, &one); err != nil {
			return []CodeCandidate{}, ErrUnparsableResponse
		}
		wires = []candidateWire{one}
	}

	candidates := make([]CodeCandidate, 0, len(wires))
	for _, w := range wires {
		if w.Code == "" {
			continue
		}
		candidates = append(candidates, w.toCandidate(typ))
	}
	return candidates, nil
}
