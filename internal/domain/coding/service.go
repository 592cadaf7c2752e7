package coding

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Clinical-context defaults applied when the caller leaves them blank.
const (
	DefaultSetting   = "outpatient"
	DefaultSpecialty = "general"
	DefaultPayerType = "commercial"
)

type Service struct {
	orchestrator *Orchestrator
	runs         RunRepository
	logger       zerolog.Logger
}

// NewService wires the orchestrator to run persistence. The repository may be
// nil, in which case runs are not persisted.
func NewService(orchestrator *Orchestrator, runs RunRepository, logger zerolog.Logger) *Service {
	return &Service{orchestrator: orchestrator, runs: runs, logger: logger}
}

// Run executes the pipeline for one claim and persists the result. A
// persistence failure is logged, not returned; the caller still gets the
// validation outcome.
func (s *Service) Run(ctx context.Context, req Request) (*PipelineResult, error) {
	if req.Setting == "" {
		req.Setting = DefaultSetting
	}
	if req.Specialty == "" {
		req.Specialty = DefaultSpecialty
	}
	if req.PayerType == "" {
		req.PayerType = DefaultPayerType
	}

	result, err := s.orchestrator.Execute(ctx, req)
	if result != nil && s.runs != nil {
		rec := &RunRecord{
			ID:          result.RunID,
			Approved:    result.Decision.Approved,
			ClaimStatus: result.ExecutiveSummary.ClaimStatus,
			Result:      result,
		}
		if perr := s.runs.Create(ctx, rec); perr != nil {
			s.logger.Warn().Err(perr).Str("run_id", result.RunID.String()).
				Msg("failed to persist validation run")
		}
	}
	return result, err
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, int, error) {
	return s.runs.List(ctx, limit, offset)
}

// RunBatch validates a set of claims with at most concurrency pipelines in
// flight. Results come back in request order; a claim whose input was
// unusable still yields its well-formed failure result.
func (s *Service) RunBatch(ctx context.Context, reqs []Request, concurrency int) []*PipelineResult {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]*PipelineResult, len(reqs))
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result, err := s.Run(ctx, req)
			if err != nil {
				s.logger.Warn().Err(err).Int("claim_index", i).Msg("batch claim failed")
			}
			results[i] = result
		}(i, req)
	}
	wg.Wait()
	return results
}
