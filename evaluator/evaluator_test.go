package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sweetpotato0/blackwell/checkpoint/memory"
	"github.com/sweetpotato0/blackwell/llm"
	"github.com/sweetpotato0/blackwell/message"
	"github.com/sweetpotato0/blackwell/research"
)

// clientFunc adapts a function to llm.Client.
type clientFunc func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error)

func (f clientFunc) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return f(ctx, req)
}

func reply(text string) *llm.GenerateResponse {
	return &llm.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, text)}
}

// queueClient replays replies in order.
type queueClient struct {
	replies []string
	calls   int
}

func (c *queueClient) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	c.calls++
	if len(c.replies) == 0 {
		return reply("unscripted reply"), nil
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return reply(next), nil
}

// fakeResearcher scripts sub-agent outcomes.
type fakeResearcher struct {
	results []*research.Result
	errs    []error
	calls   int
}

func (f *fakeResearcher) Research(ctx context.Context, question string) (*research.Result, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	if len(f.results) > 0 {
		return f.results[len(f.results)-1], nil
	}
	return nil, errors.New("unscripted research call")
}

// researched builds a result whose transcript proves real tool use.
func researched(report string) *research.Result {
	return &research.Result{
		Transcript: []*message.Message{
			message.NewMessage(message.RoleSystem, "system"),
			message.NewMessage(message.RoleUser, "question"),
			message.NewToolCallMessage([]message.ToolCall{{ID: "c1", Name: "retrieve_documents"}}),
			message.NewToolResponseMessage("c1", "observation"),
			message.NewMessage(message.RoleAssistant, report),
		},
		Report:    report,
		ToolCalls: 1,
	}
}

// refused builds a result that answered without researching.
func refused(report string) *research.Result {
	return &research.Result{
		Transcript: []*message.Message{
			message.NewMessage(message.RoleSystem, "system"),
			message.NewMessage(message.RoleUser, "question"),
			message.NewMessage(message.RoleAssistant, report),
		},
		Report: report,
	}
}

const (
	diagnosticReport  = "Evidence points to migraine without aura.\n\n**References:**\n* Neurology Handbook (page 42)"
	therapeuticReport = "Guidelines recommend triptans and NSAIDs first line.\n\n**References:**\n* Treatment Guidelines 2024"
	literatureReport  = "Trials support triptan efficacy.\n\n**References:**\n* Smith JA et al. Triptan trial. PMID: 111"
)

type fixture struct {
	orch        *Orchestrator
	fast        *queueClient
	pro         *queueClient
	diagnostic  *fakeResearcher
	therapeutic *fakeResearcher
	literature  *fakeResearcher
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		fast: &queueClient{replies: []string{
			"migraine bilateral throbbing headache photophobia diagnostic query",
			"migraine without aura first-line treatment guidelines query",
		}},
		pro: &queueClient{replies: []string{
			"[CERTAINTY_REPORT]\nDiagnostic Confidence: High.",
			"[INVESTIGATOR_REPORT]\nRecommended workup: neurological exam.",
			"[HYPOTHESIS_REPORT]\nProbable Cause: Migraine without aura (Likelihood: High). Differential: tension-type headache (Medium), cluster headache (Low).",
			"[TREATMENT_REPORT]\nAbortive: triptans or NSAIDs. No contraindications identified.",
			"***DISCLAIMER: This is an AI-generated analysis and is for informational purposes only.***\n\n# Comprehensive Clinical Analysis Report\nFull narrative.",
		}},
		diagnostic:  &fakeResearcher{results: []*research.Result{researched(diagnosticReport)}},
		therapeutic: &fakeResearcher{results: []*research.Result{researched(therapeuticReport)}},
		literature:  &fakeResearcher{results: []*research.Result{researched(literatureReport)}},
	}
	pool := llm.Pool{Fast: f.fast, Pro: f.pro}
	f.orch = New(pool, f.diagnostic, f.therapeutic, f.literature, opts...)
	return f
}

const anamnesis = "Persistent bilateral throbbing headaches with photophobia, family history of migraine."

func TestEvaluateEndToEnd(t *testing.T) {
	f := newFixture()
	out, err := f.orch.Evaluate(context.Background(), anamnesis, "session-1")
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if !strings.HasPrefix(out.FinalReport, "***DISCLAIMER") {
		t.Errorf("final report must open with the disclaimer:\n%.120s", out.FinalReport)
	}
	if !strings.Contains(out.FinalReport, "### References") {
		t.Errorf("final report missing references section")
	}
	for _, want := range []string{"Neurology Handbook (page 42)", "Treatment Guidelines 2024", "Smith JA et al. Triptan trial. PMID: 111"} {
		if !strings.Contains(out.FinalReport, want) {
			t.Errorf("final report missing reference %q", want)
		}
	}

	// Two-pass research: each sub-agent flavor runs exactly once.
	if f.diagnostic.calls != 1 || f.therapeutic.calls != 1 || f.literature.calls != 1 {
		t.Errorf("sub-agent calls = %d/%d/%d, want 1/1/1",
			f.diagnostic.calls, f.therapeutic.calls, f.literature.calls)
	}
	// Analyze ran once per pass.
	if f.fast.calls != 2 {
		t.Errorf("analyze calls = %d, want 2", f.fast.calls)
	}
	// Three hypothesis sub-steps plus two treatment sub-steps.
	if f.pro.calls != 5 {
		t.Errorf("synthesis calls = %d, want 5", f.pro.calls)
	}

	if len(out.References) != 3 {
		t.Errorf("references = %d, want 3", len(out.References))
	}
	if out.References[0].Type != ReferenceRAG || out.References[2].Type != ReferenceLiterature {
		t.Errorf("reference provenance wrong: %+v", out.References)
	}
}

func TestEvaluateReportOrdering(t *testing.T) {
	f := newFixture()
	var states []*State
	// Run through the graph directly to inspect the final state.
	final, err := f.orch.buildGraph().ExecuteWithObserver(context.Background(), NewState("s", anamnesis),
		func(ctx context.Context, node string, s *State) { states = append(states, s) })
	if err != nil {
		t.Fatalf("graph error: %v", err)
	}

	hypAt, ok1 := final.Reports.CreatedAt(ReportHypothesis)
	treatAt, ok2 := final.Reports.CreatedAt(ReportTreatment)
	if !ok1 || !ok2 {
		t.Fatal("hypothesis or treatment report missing")
	}
	if hypAt.After(treatAt) {
		t.Error("hypothesis report must be committed before treatment report")
	}
	if final.FinalReport == "" {
		t.Error("final report empty")
	}

	// Reference monotonicity across committed stages.
	last := 0
	for _, s := range states {
		if len(s.References) < last {
			t.Fatalf("references shrank from %d to %d", last, len(s.References))
		}
		last = len(s.References)
	}
}

func TestEvaluateRetryConvergence(t *testing.T) {
	f := newFixture()
	// Fail validation twice (no references marker), then succeed.
	f.diagnostic.results = []*research.Result{
		researched("no sources here"),
		refused("refusal"),
		researched(diagnosticReport),
	}
	// Analyze runs once per attempt on pass 1, then once on pass 2.
	f.fast.replies = []string{"q1", "q2", "q3", "treatment query"}

	out, err := f.orch.Evaluate(context.Background(), anamnesis, "session-retry")
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if f.diagnostic.calls != 3 {
		t.Errorf("diagnostic attempts = %d, want 3 (two failures then success)", f.diagnostic.calls)
	}
	if f.fast.calls != 4 {
		t.Errorf("analyze calls = %d, want 4 (three pass-1 attempts plus pass 2)", f.fast.calls)
	}
	if out.FinalReport == "" {
		t.Error("final report empty after converging retries")
	}
}

func TestEvaluateRetryExhaustion(t *testing.T) {
	f := newFixture()
	f.diagnostic.results = []*research.Result{refused("still refusing")}
	f.fast.replies = []string{"q", "q", "q", "q"}

	_, err := f.orch.Evaluate(context.Background(), anamnesis, "session-exhausted")
	if err == nil {
		t.Fatal("Evaluate() should fail when research never validates")
	}
	var everr *EvaluationError
	if !errors.As(err, &everr) {
		t.Fatalf("error type = %T, want *EvaluationError", err)
	}
	if f.diagnostic.calls != defaultMaxResearchAttempts {
		t.Errorf("diagnostic attempts = %d, want %d", f.diagnostic.calls, defaultMaxResearchAttempts)
	}
}

func TestEvaluateQueryFormulationFailureRetries(t *testing.T) {
	f := newFixture()
	failing := clientFunc(func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return nil, &llm.GenerationError{Provider: "test", Err: errors.New("rate limited")}
	})
	f.orch.pool = llm.Pool{Fast: failing, Pro: f.pro}

	_, err := f.orch.Evaluate(context.Background(), anamnesis, "session-noquery")
	if err == nil {
		t.Fatal("Evaluate() should fail when no query can ever be formulated")
	}
	// The degraded empty query burns research attempts, never sub-agent calls.
	if f.diagnostic.calls != 0 {
		t.Errorf("diagnostic calls = %d, want 0 for empty queries", f.diagnostic.calls)
	}
}

func TestEvaluateLiteratureFailureDegrades(t *testing.T) {
	f := newFixture()
	f.literature.errs = []error{errors.New("pubmed unreachable")}

	out, err := f.orch.Evaluate(context.Background(), anamnesis, "session-nolit")
	if err != nil {
		t.Fatalf("Evaluate() should tolerate literature failure: %v", err)
	}
	for _, ref := range out.References {
		if ref.Type == ReferenceLiterature {
			t.Errorf("no literature references expected, got %+v", ref)
		}
	}
	if out.FinalReport == "" {
		t.Error("final report empty")
	}
}

func TestEvaluateSynthesisFailureIsTerminal(t *testing.T) {
	f := newFixture()
	f.pro.replies = nil
	failing := clientFunc(func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return nil, &llm.GenerationError{Provider: "test", Err: errors.New("overloaded")}
	})
	f.orch.pool = llm.Pool{Fast: f.fast, Pro: failing}

	_, err := f.orch.Evaluate(context.Background(), anamnesis, "session-synthfail")
	if err == nil {
		t.Fatal("Evaluate() should fail on synthesis error")
	}
	var serr *SynthesisError
	if !errors.As(err, &serr) {
		t.Fatalf("error chain %v should carry *SynthesisError", err)
	}
	// Synthesis failures are not retried.
	if f.diagnostic.calls != 1 {
		t.Errorf("diagnostic calls = %d, want 1", f.diagnostic.calls)
	}
}

func TestEvaluateCheckpointsAndReplaysCompletedRun(t *testing.T) {
	store := memory.New()
	f := newFixture(WithCheckpoints(store))

	out, err := f.orch.Evaluate(context.Background(), anamnesis, "session-ckpt")
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	snapshot, err := store.Load(context.Background(), "session-ckpt")
	if err != nil {
		t.Fatalf("checkpoint missing: %v", err)
	}
	saved, err := RestoreState(snapshot)
	if err != nil {
		t.Fatalf("RestoreState() error: %v", err)
	}
	if saved.FinalReport != out.FinalReport {
		t.Error("checkpoint does not hold the final state")
	}

	// A second call for the same session returns the stored outcome without
	// re-running any stage.
	again, err := f.orch.Evaluate(context.Background(), anamnesis, "session-ckpt")
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if again.FinalReport != out.FinalReport {
		t.Error("replayed outcome differs")
	}
	if f.diagnostic.calls != 1 {
		t.Errorf("diagnostic re-ran on replay: %d calls", f.diagnostic.calls)
	}
}

func TestEvaluateResumesFromCheckpoint(t *testing.T) {
	store := memory.New()

	// Simulate a crash after pass 1: hypothesis committed, no final report.
	interrupted := NewState("session-resume", anamnesis)
	interrupted.Reports.Set(ReportResearch, "diagnostic evidence")
	interrupted.Reports.Set(ReportHypothesis, "Migraine without aura")
	interrupted.AddReferences(ReferenceRAG, []string{"Neurology Handbook (page 42)"})
	snapshot, _ := interrupted.Snapshot()
	store.Save(context.Background(), "session-resume", snapshot)

	f := newFixture(WithCheckpoints(store))
	f.fast.replies = []string{"treatment query"}
	f.pro.replies = f.pro.replies[3:] // only the treatment sub-steps remain

	out, err := f.orch.Evaluate(context.Background(), anamnesis, "session-resume")
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	// Pass 1 is skipped: the restored hypothesis switches analyze straight
	// into the therapeutic phase.
	if f.diagnostic.calls != 0 {
		t.Errorf("diagnostic calls = %d, want 0 on resume", f.diagnostic.calls)
	}
	if f.therapeutic.calls != 1 || f.literature.calls != 1 {
		t.Errorf("therapeutic/literature calls = %d/%d, want 1/1", f.therapeutic.calls, f.literature.calls)
	}
	if !strings.Contains(out.FinalReport, "Neurology Handbook (page 42)") {
		t.Error("restored references lost on resume")
	}
}

func TestEvaluateEmptyAnamnesisStillBounded(t *testing.T) {
	f := newFixture()
	f.fast.replies = nil
	f.fast.replies = []string{"", "", "", ""}

	_, err := f.orch.Evaluate(context.Background(), "", "session-empty")
	if err == nil {
		t.Fatal("Evaluate() with empty queries must terminate with an error, not loop")
	}
}
