package coding

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rcm/rcm/internal/extract"
	"github.com/rcm/rcm/internal/retriever"
)

type stubRefs struct {
	passages []retriever.Passage
	err      error
	queries  []string
}

func (s *stubRefs) Query(_ context.Context, text string, k int) ([]retriever.Passage, error) {
	s.queries = append(s.queries, text)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.passages) > k {
		return s.passages[:k], nil
	}
	return s.passages, nil
}

func newTestOrchestrator(client *mockClient, refs ReferenceSource, parallel bool) *Orchestrator {
	return NewOrchestrator(NewEngine(client, testLogger()), refs, testLogger(),
		OrchestratorConfig{Parallel: parallel, ConfidenceThreshold: 0.7})
}

func stageByName(t *testing.T, result *PipelineResult, name string) StageStatus {
	t.Helper()
	for _, s := range result.Metadata.Stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stage %s not recorded", name)
	return StageStatus{}
}

func TestExecute_CleanClaim(t *testing.T) {
	client := newMockClient()
	scriptAllStages(client)
	refs := &stubRefs{passages: []retriever.Passage{
		{Text: "STEMI coding requires site specificity", SourceID: "cardiology.md", Distance: 0.1},
	}}
	o := newTestOrchestrator(client, refs, false)

	result, err := o.Execute(context.Background(), Request{
		Input: extract.Input{RawText: "Severe chest pain, elevated troponin, ST elevation in II, III, aVF."},
		ManualCodes: ManualCodeSet{
			Diagnosis: []string{"I21.19"},
			Procedure: []string{"93458"},
		},
		Setting:   "emergency",
		PayerType: "commercial",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !result.Decision.Approved {
		t.Errorf("clean high-accuracy claim should approve: %+v", result.Decision)
	}
	if len(result.Candidates.Diagnosis) != 2 || !strings.HasPrefix(result.Candidates.Diagnosis[0].Code, "I21") {
		t.Errorf("unexpected diagnosis candidates: %+v", result.Candidates.Diagnosis)
	}
	if result.NecessityScore != 0.9 {
		t.Errorf("necessity score = %v, want 0.9", result.NecessityScore)
	}
	if result.ExecutiveSummary.ClaimStatus != ClaimStatusClean {
		t.Errorf("claim status = %s, want clean", result.ExecutiveSummary.ClaimStatus)
	}

	wantStages := []string{StageParsing, StageRetrieval, StageCodeGeneration, StageValidation, StageSummary, StageDecision}
	var gotStages []string
	for _, s := range result.Metadata.Stages {
		gotStages = append(gotStages, s.Name)
	}
	if !reflect.DeepEqual(gotStages, wantStages) {
		t.Errorf("stages = %v, want %v", gotStages, wantStages)
	}

	// Direct narrative bypasses parsing; everything else succeeded.
	if stageByName(t, result, StageParsing).Status != StatusBypassed {
		t.Error("direct narrative input should bypass parsing")
	}
	for _, name := range wantStages[1:] {
		if s := stageByName(t, result, name); s.Status != StatusSuccess {
			t.Errorf("stage %s = %s, want success (%s)", name, s.Status, s.Error)
		}
	}

	// The retrieval query is derived from the narrative.
	if len(refs.queries) != 1 || !strings.Contains(refs.queries[0], "Medical coding guidelines for:") {
		t.Errorf("unexpected retrieval queries: %v", refs.queries)
	}
}

func TestExecute_RowInputRunsParsing(t *testing.T) {
	client := newMockClient()
	scriptAllStages(client)
	o := newTestOrchestrator(client, &stubRefs{}, false)

	result, err := o.Execute(context.Background(), Request{
		Input: extract.Input{Rows: []map[string]string{
			{"claim_id": "1", "soap": "Patient with chest pain."},
			{"claim_id": "2", "notes": "Follow-up for diabetes."},
		}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if stageByName(t, result, StageParsing).Status != StatusSuccess {
		t.Error("row input should run parsing")
	}
	if !strings.Contains(result.Narrative, "chest pain") || !strings.Contains(result.Narrative, "diabetes") {
		t.Errorf("narrative missing note text: %q", result.Narrative)
	}
}

func TestExecute_NoInputReturnsErrorAndResult(t *testing.T) {
	client := newMockClient()
	o := newTestOrchestrator(client, &stubRefs{}, false)

	result, err := o.Execute(context.Background(), Request{})
	if !errors.Is(err, extract.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if result == nil {
		t.Fatal("input error must still yield a well-formed result")
	}
	if result.Metadata.Error == "" {
		t.Error("metadata error should be set")
	}
	if result.Decision.Approved || !result.Decision.RequiresManualReview {
		t.Errorf("input failure must not approve: %+v", result.Decision)
	}
	if client.callCount() != 0 {
		t.Errorf("no LLM calls expected on input error, got %d", client.callCount())
	}
}

func TestExecute_NeverFailsWhenEveryStageDegrades(t *testing.T) {
	// Every chat call fails; the pipeline still produces a complete result.
	client := newMockClient()
	client.errOn = "" // no canned responses at all, every Chat errors
	o := newTestOrchestrator(client, &stubRefs{err: errors.New("store offline")}, false)

	result, err := o.Execute(context.Background(), Request{
		Input: extract.Input{RawText: "chest pain"},
	})
	if err != nil {
		t.Fatalf("degraded run must not return an error: %v", err)
	}

	if len(result.Metadata.Stages) != 6 {
		t.Fatalf("expected 6 stage statuses, got %d", len(result.Metadata.Stages))
	}
	for _, name := range []string{StageRetrieval, StageCodeGeneration, StageValidation, StageSummary} {
		if s := stageByName(t, result, name); s.Status != StatusError {
			t.Errorf("stage %s = %s, want error", name, s.Status)
		}
	}
	if stageByName(t, result, StageDecision).Status != StatusSuccess {
		t.Error("decision stage always succeeds")
	}

	// Neutral defaults flow through to a conservative verdict.
	if result.NecessityScore != 0.5 {
		t.Errorf("necessity score = %v, want neutral 0.5", result.NecessityScore)
	}
	if !result.Compliance.Compliant {
		t.Error("compliance should degrade to neutral compliant")
	}
	if result.ExecutiveSummary.ClaimStatus != ClaimStatusNeedsReview {
		t.Errorf("claim status = %s, want needs_review", result.ExecutiveSummary.ClaimStatus)
	}
	if result.Decision.Approved {
		t.Error("fully degraded run must never approve")
	}
	if !result.Decision.RequiresManualReview {
		t.Error("fully degraded run must require manual review")
	}
	if result.Findings == nil {
		t.Error("findings must be an empty list, not nil")
	}
}

func TestExecute_ValidationDegradesIndependently(t *testing.T) {
	// Only the necessity check fails; the other two keep their results.
	client := newMockClient()
	scriptAllStages(client)
	client.errOn = "Verify medical necessity"
	o := newTestOrchestrator(client, &stubRefs{}, false)

	result, err := o.Execute(context.Background(), Request{
		Input: extract.Input{RawText: "chest pain"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.NecessityScore != 0.5 {
		t.Errorf("failed necessity check should yield 0.5, got %v", result.NecessityScore)
	}
	if len(result.Findings) != 1 {
		t.Errorf("comparison findings should survive: %+v", result.Findings)
	}
	if !result.Compliance.Compliant {
		t.Error("compliance result should survive")
	}
	if s := stageByName(t, result, StageValidation); s.Status != StatusError {
		t.Errorf("validation stage = %s, want error", s.Status)
	}
}

func TestExecute_ParallelMatchesSequential(t *testing.T) {
	run := func(parallel bool) *PipelineResult {
		client := newMockClient()
		scriptAllStages(client)
		o := newTestOrchestrator(client, &stubRefs{}, parallel)
		result, err := o.Execute(context.Background(), Request{
			Input:       extract.Input{RawText: "chest pain, elevated troponin"},
			ManualCodes: ManualCodeSet{Diagnosis: []string{"I21.19"}},
		})
		if err != nil {
			t.Fatalf("Execute(parallel=%v): %v", parallel, err)
		}
		return result
	}

	sequential := run(false)
	parallel := run(true)

	if sequential.Metadata.ExecutionMode != ModeSequential || parallel.Metadata.ExecutionMode != ModeParallel {
		t.Errorf("modes = %s/%s", sequential.Metadata.ExecutionMode, parallel.Metadata.ExecutionMode)
	}
	if !reflect.DeepEqual(sequential.Decision, parallel.Decision) {
		t.Errorf("decisions differ: %+v vs %+v", sequential.Decision, parallel.Decision)
	}
	if !reflect.DeepEqual(sequential.Findings, parallel.Findings) {
		t.Errorf("findings differ: %+v vs %+v", sequential.Findings, parallel.Findings)
	}
	if sequential.NecessityScore != parallel.NecessityScore {
		t.Errorf("necessity differs: %v vs %v", sequential.NecessityScore, parallel.NecessityScore)
	}
}

func TestExecute_NoReferenceStoreBypassesRetrieval(t *testing.T) {
	client := newMockClient()
	scriptAllStages(client)
	o := newTestOrchestrator(client, nil, false)

	result, err := o.Execute(context.Background(), Request{
		Input: extract.Input{RawText: "chest pain"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if s := stageByName(t, result, StageRetrieval); s.Status != StatusBypassed {
		t.Errorf("retrieval = %s, want bypassed", s.Status)
	}
	if result.Decision.Recommendation == "" {
		t.Error("pipeline should still complete without a reference store")
	}
}
