package coding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/extract"
	"github.com/rcm/rcm/internal/llm"
	"github.com/rcm/rcm/internal/retriever"
)

// ReferenceSource is what the orchestrator needs from the retriever.
type ReferenceSource interface {
	Query(ctx context.Context, text string, k int) ([]retriever.Passage, error)
}

const (
	retrievalK          = 5
	retrievalQueryChars = 500
)

// Execution modes. Parallel mode runs the three validation checks
// concurrently; everything before validation is ordered in both modes
// because each stage consumes the previous stage's output.
const (
	ModeParallel   = "parallel"
	ModeSequential = "sequential"
)

// OrchestratorConfig holds the run-shaping knobs.
type OrchestratorConfig struct {
	Parallel            bool
	ConfidenceThreshold float64
}

// Orchestrator drives a claim through the six pipeline stages. Apart from an
// unusable-input error out of parsing, Execute always returns a well-formed
// result: stage failures degrade to neutral defaults and are recorded in the
// per-stage status list, never propagated as a run failure.
type Orchestrator struct {
	engine *Engine
	refs   ReferenceSource
	logger zerolog.Logger
	cfg    OrchestratorConfig
}

func NewOrchestrator(engine *Engine, refs ReferenceSource, logger zerolog.Logger, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{engine: engine, refs: refs, logger: logger, cfg: cfg}
}

// Request is one claim validation job.
type Request struct {
	Input       extract.Input
	ManualCodes ManualCodeSet
	Setting     string
	Specialty   string
	PayerType   string
}

// Execute runs the full pipeline. The only error it returns is an input
// error from the parsing stage; even then the accompanying result is
// well-formed so callers can persist it.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (result *PipelineResult, err error) {
	result = &PipelineResult{
		RunID:            uuid.New(),
		Findings:         []ValidationFinding{},
		Compliance:       NeutralCompliance(),
		ExecutiveSummary: NeutralSummary(),
	}
	result.Metadata.StartTime = time.Now().UTC()
	result.Metadata.ConfidenceThreshold = o.cfg.ConfidenceThreshold
	result.Metadata.ExecutionMode = ModeSequential
	if o.cfg.Parallel {
		result.Metadata.ExecutionMode = ModeParallel
	}

	record := func(name, status string, stageErr error, started time.Time, detail map[string]interface{}) {
		s := StageStatus{
			Name:       name,
			Status:     status,
			DurationMS: time.Since(started).Milliseconds(),
			Detail:     detail,
		}
		if stageErr != nil {
			s.Error = stageErr.Error()
		}
		result.Metadata.Stages = append(result.Metadata.Stages, s)
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("run_id", result.RunID.String()).
				Interface("panic", r).Msg("pipeline panicked")
			result.Metadata.Error = fmt.Sprintf("pipeline panic: %v", r)
			result.Decision = Decision{
				RequiresManualReview: true,
				Recommendation:       "Hold for manual review",
				EscalationReason:     "Pipeline failure",
				ReviewPriority:       "High",
			}
			err = nil
		}
		result.Metadata.EndTime = time.Now().UTC()
	}()

	o.logger.Info().Str("run_id", result.RunID.String()).
		Str("mode", result.Metadata.ExecutionMode).Msg("pipeline started")

	// Stage 1: parsing. A direct narrative needs no extraction and is
	// recorded as bypassed. Unusable input is the one condition that makes
	// Execute return an error.
	started := time.Now()
	var narrative string
	if len(req.Input.Rows) == 0 && req.Input.SegmentText == "" && req.Input.RawText != "" {
		narrative = req.Input.RawText
		record(StageParsing, StatusBypassed, nil, started,
			map[string]interface{}{"reason": "direct narrative input"})
	} else {
		parsed, perr := extract.Extract(req.Input)
		if perr != nil {
			record(StageParsing, StatusError, perr, started, nil)
			result.Metadata.Error = perr.Error()
			result.Decision = Decision{
				RequiresManualReview: true,
				Recommendation:       "Hold for manual review",
				EscalationReason:     "No usable input",
				ReviewPriority:       "High",
			}
			return result, perr
		}
		narrative = parsed.Text
		record(StageParsing, StatusSuccess, nil, started, map[string]interface{}{
			"rows":            len(parsed.Rows),
			"narrative_chars": len(parsed.Text),
		})
	}
	result.Narrative = narrative

	// Stage 2: retrieval. Grounding is best-effort; a failed or absent
	// retriever leaves the proposal stage without references.
	started = time.Now()
	var passages []retriever.Passage
	if o.refs == nil {
		record(StageRetrieval, StatusBypassed, nil, started,
			map[string]interface{}{"reason": "no reference store configured"})
	} else {
		query := "Medical coding guidelines for: " + truncateText(narrative, retrievalQueryChars)
		var rerr error
		passages, rerr = o.refs.Query(ctx, query, retrievalK)
		if rerr != nil {
			passages = nil
			record(StageRetrieval, StatusError, rerr, started, nil)
		} else {
			record(StageRetrieval, StatusSuccess, nil, started,
				map[string]interface{}{"passages": len(passages)})
		}
	}

	// Stage 3: code generation. Diagnoses first; procedures always consume
	// the diagnosis output, even when it came back empty.
	started = time.Now()
	diagnoses, dErr := o.engine.ProposeDiagnoses(ctx, narrative, passages)
	procedures, pErr := o.engine.ProposeProcedures(ctx, diagnoses, req.Setting, req.Specialty, req.PayerType)
	result.Candidates = Candidates{Diagnosis: diagnoses, Procedure: procedures}

	genDetail := map[string]interface{}{
		"diagnosis_candidates":     len(diagnoses),
		"procedure_candidates":     len(procedures),
		"narrative_token_estimate": llm.EstimateTokens(narrative),
	}
	if genErr := errors.Join(dErr, pErr); genErr != nil {
		record(StageCodeGeneration, StatusError, genErr, started, genDetail)
	} else {
		record(StageCodeGeneration, StatusSuccess, nil, started, genDetail)
	}

	// Stage 4: validation. The three checks are independent; each degrades
	// to its neutral default on its own without touching the other two.
	started = time.Now()
	var (
		comparison ComparisonResult
		necessity  NecessityResult
		compliance ComplianceResult
		cmpErr     error
		necErr     error
		compErr    error
	)
	if o.cfg.Parallel {
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			comparison, cmpErr = o.engine.CompareCodes(ctx, req.ManualCodes, diagnoses, procedures, narrative, passages)
		}()
		go func() {
			defer wg.Done()
			necessity, necErr = o.engine.CheckMedicalNecessity(ctx, diagnoses, procedures)
		}()
		go func() {
			defer wg.Done()
			compliance, compErr = o.engine.CheckCompliance(ctx, diagnoses, procedures, req.PayerType)
		}()
		wg.Wait()
	} else {
		comparison, cmpErr = o.engine.CompareCodes(ctx, req.ManualCodes, diagnoses, procedures, narrative, passages)
		necessity, necErr = o.engine.CheckMedicalNecessity(ctx, diagnoses, procedures)
		compliance, compErr = o.engine.CheckCompliance(ctx, diagnoses, procedures, req.PayerType)
	}

	valDetail := map[string]interface{}{
		"comparison_ok": cmpErr == nil,
		"necessity_ok":  necErr == nil,
		"compliance_ok": compErr == nil,
	}
	if valErr := errors.Join(cmpErr, necErr, compErr); valErr != nil {
		record(StageValidation, StatusError, valErr, started, valDetail)
	} else {
		record(StageValidation, StatusSuccess, nil, started, valDetail)
	}

	if comparison.Findings != nil {
		result.Findings = comparison.Findings
	}
	result.NecessityScore = necessity.OverallNecessity
	result.Compliance = compliance

	// Stage 5: executive summary.
	started = time.Now()
	summary, sErr := o.engine.Summarize(ctx, comparison, necessity, compliance)
	result.ExecutiveSummary = summary
	if sErr != nil {
		record(StageSummary, StatusError, sErr, started, nil)
	} else {
		record(StageSummary, StatusSuccess, nil, started, nil)
	}

	// Stage 6: decision. Pure function, cannot fail.
	started = time.Now()
	result.Decision = Decide(comparison, summary.ClaimStatus, o.cfg.ConfidenceThreshold)
	record(StageDecision, StatusSuccess, nil, started, map[string]interface{}{
		"approved":     result.Decision.Approved,
		"claim_status": summary.ClaimStatus,
	})

	o.logger.Info().Str("run_id", result.RunID.String()).
		Bool("approved", result.Decision.Approved).
		Str("recommendation", result.Decision.Recommendation).
		Msg("pipeline finished")
	return result, nil
}
