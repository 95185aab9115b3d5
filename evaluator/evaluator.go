// Package evaluator implements the clinical evaluation workflow: a state
// machine that formulates research queries from an anamnesis report, gathers
// evidence through bounded research sub-agents, synthesizes a differential
// diagnosis, and composes a treatment plan and final consultation report.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	stderrors "errors"

	"github.com/sweetpotato0/blackwell/checkpoint"
	"github.com/sweetpotato0/blackwell/errors"
	"github.com/sweetpotato0/blackwell/graph"
	"github.com/sweetpotato0/blackwell/llm"
	"github.com/sweetpotato0/blackwell/message"
	"github.com/sweetpotato0/blackwell/pkg/logging"
	"github.com/sweetpotato0/blackwell/pkg/telemetry"
	"github.com/sweetpotato0/blackwell/prompt"
	"github.com/sweetpotato0/blackwell/research"
	"github.com/sweetpotato0/blackwell/tokenizer"
)

// Node names in the evaluation graph.
const (
	nodeAnalyze    = "analyze"
	nodeResearch   = "research"
	nodeDispatch   = "dispatch"
	nodeHypothesis = "hypothesis"
	nodeLiterature = "literature"
	nodeTreatment  = "treatment"
	nodeEnd        = "end"
)

// Routing directives set by the research stage.
const (
	routeRetry      graph.Route = "retry"
	routeHypothesis graph.Route = "hypothesis"
	routeLiterature graph.Route = "literature"
)

const (
	defaultMaxResearchAttempts = 3
	defaultMaxNodeVisits       = 24
	defaultEvidenceBudget      = 12000
	minResearchTurns           = 3
)

// Researcher is the contract the orchestrator requires from a sub-agent.
type Researcher interface {
	Research(ctx context.Context, question string) (*research.Result, error)
}

// Outcome is the caller-visible result of a completed evaluation.
type Outcome struct {
	FinalReport string
	References  []Reference
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithPrompts replaces the default prompt templates.
func WithPrompts(m *prompt.Manager) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.prompts = m
		}
	}
}

// WithCheckpoints persists state after each committed stage, keyed by session
// ID, and resumes interrupted runs.
func WithCheckpoints(store checkpoint.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithTokenCounter trims research evidence to the token budget before each
// synthesis call.
func WithTokenCounter(c *tokenizer.Counter) Option {
	return func(o *Orchestrator) { o.counter = c }
}

// WithMaxResearchAttempts bounds research retries within one analysis pass.
func WithMaxResearchAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithMaxNodeVisits bounds how often any single stage may run in one
// evaluation, the outer guard against routing cycles.
func WithMaxNodeVisits(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxVisits = n
		}
	}
}

// WithEvidenceBudget sets the token budget for research evidence passed to
// the synthesis stages.
func WithEvidenceBudget(tokens int) Option {
	return func(o *Orchestrator) {
		if tokens > 0 {
			o.evidenceBudget = tokens
		}
	}
}

// Orchestrator sequences the evaluation stages over a shared State. All
// collaborators are injected; the orchestrator owns no global resources.
type Orchestrator struct {
	pool        llm.Pool
	diagnostic  Researcher
	therapeutic Researcher
	literature  Researcher
	prompts     *prompt.Manager
	counter     *tokenizer.Counter
	store       checkpoint.Store

	maxAttempts    int
	maxVisits      int
	evidenceBudget int

	log *slog.Logger
}

// New creates an orchestrator. The diagnostic and therapeutic researchers run
// on pass 1 and pass 2 of the analysis loop respectively; the literature
// researcher runs once, after the therapeutic pass.
func New(pool llm.Pool, diagnostic, therapeutic, literature Researcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pool:           pool,
		diagnostic:     diagnostic,
		therapeutic:    therapeutic,
		literature:     literature,
		prompts:        prompt.DefaultManager(),
		maxAttempts:    defaultMaxResearchAttempts,
		maxVisits:      defaultMaxNodeVisits,
		evidenceBudget: defaultEvidenceBudget,
		log:            logging.WithComponent("evaluator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Evaluate runs the full pipeline for one anamnesis report. When a checkpoint
// store is configured and holds state for the session, the run resumes from
// the last committed stage instead of starting over.
func (o *Orchestrator) Evaluate(ctx context.Context, anamnesisReport, sessionID string) (out *Outcome, err error) {
	ctx, span := telemetry.Tracer("evaluator").Start(ctx, "evaluator.Evaluate")
	defer func() { telemetry.End(span, err) }()

	state := NewState(sessionID, anamnesisReport)
	if restored := o.restore(ctx, sessionID); restored != nil {
		if restored.FinalReport != "" {
			return &Outcome{FinalReport: restored.FinalReport, References: restored.References}, nil
		}
		o.log.Info("resuming evaluation from checkpoint", "session", sessionID)
		state = restored
	}

	final, err := o.buildGraph().ExecuteWithObserver(ctx, state, o.checkpointObserver())
	if err != nil {
		return nil, &EvaluationError{SessionID: sessionID, Err: err}
	}
	if final.FinalReport == "" {
		return nil, &EvaluationError{SessionID: sessionID, Err: fmt.Errorf("no final report produced")}
	}

	return &Outcome{FinalReport: final.FinalReport, References: final.References}, nil
}

func (o *Orchestrator) restore(ctx context.Context, sessionID string) *State {
	if o.store == nil || sessionID == "" {
		return nil
	}
	snapshot, err := o.store.Load(ctx, sessionID)
	if err != nil {
		if !stderrors.Is(err, errors.ErrNotFound) {
			o.log.Warn("checkpoint load failed", "session", sessionID, "error", err)
		}
		return nil
	}
	state, err := RestoreState(snapshot)
	if err != nil {
		o.log.Warn("checkpoint decode failed", "session", sessionID, "error", err)
		return nil
	}
	return state
}

func (o *Orchestrator) checkpointObserver() graph.Observer[*State] {
	if o.store == nil {
		return nil
	}
	return func(ctx context.Context, node string, state *State) {
		snapshot, err := state.Snapshot()
		if err != nil {
			o.log.Warn("checkpoint snapshot failed", "node", node, "error", err)
			return
		}
		if err := o.store.Save(ctx, state.SessionID, snapshot); err != nil {
			o.log.Warn("checkpoint save failed", "node", node, "error", err)
		}
	}
}

func (o *Orchestrator) buildGraph() *graph.Graph[*State] {
	return graph.NewBuilder[*State]().
		AddNode(nodeAnalyze, graph.NodeTypeLLM, o.analyze).
		AddNode(nodeResearch, graph.NodeTypeCustom, o.research).
		AddConditionNode(nodeDispatch, o.dispatch, map[graph.Route]string{
			routeRetry:      nodeAnalyze,
			routeHypothesis: nodeHypothesis,
			routeLiterature: nodeLiterature,
		}).
		AddNode(nodeHypothesis, graph.NodeTypeLLM, o.hypothesis).
		AddNode(nodeLiterature, graph.NodeTypeCustom, o.literatureSearch).
		AddNode(nodeTreatment, graph.NodeTypeLLM, o.treatment).
		AddNode(nodeEnd, graph.NodeTypeEnd, nil).
		AddEdge(nodeAnalyze, nodeResearch).
		AddEdge(nodeResearch, nodeDispatch).
		AddEdge(nodeHypothesis, nodeAnalyze).
		AddEdge(nodeLiterature, nodeTreatment).
		AddEdge(nodeTreatment, nodeEnd).
		SetStart(nodeAnalyze).
		SetMaxVisits(o.maxVisits).
		Build()
}

// analyze formulates the research query for the current pass. A generator
// failure is logged and degraded to an empty query, which the research stage
// turns into a bounded retry.
func (o *Orchestrator) analyze(ctx context.Context, s *State) (*State, error) {
	phase := "diagnostic"
	var msgs []*message.Message

	if s.InTreatmentPhase() {
		phase = "therapeutic"
		system, err := o.prompts.Render(prompt.TreatmentQuery, nil)
		if err != nil {
			return nil, fmt.Errorf("render treatment query prompt: %w", err)
		}
		hypothesis, _ := s.Reports.Get(ReportHypothesis)
		msgs = []*message.Message{
			message.NewMessage(message.RoleSystem, system),
			message.NewMessage(message.RoleUser, "[HYPOTHESIS_REPORT]:\n"+hypothesis),
			message.NewMessage(message.RoleUser, "[ANAMNESIS_REPORT]:\n"+s.AnamnesisReport),
		}
	} else {
		system, err := o.prompts.Render(prompt.DiagnosticQuery, nil)
		if err != nil {
			return nil, fmt.Errorf("render diagnostic query prompt: %w", err)
		}
		msgs = []*message.Message{
			message.NewMessage(message.RoleSystem, system),
			message.NewMessage(message.RoleUser, "[ANAMNESIS_REPORT]:\n"+s.AnamnesisReport),
		}
	}

	o.log.Info("formulating research query", "session", s.SessionID, "phase", phase)
	text, err := llm.Generate(ctx, o.fastClient(), msgs...)
	if err != nil {
		qerr := &QueryFormulationError{Phase: phase, Err: err}
		o.log.Error("query formulation failed", "session", s.SessionID, "error", qerr)
		s.Query = ""
		return s, nil
	}

	s.Query = strings.TrimSpace(text)
	return s, nil
}

// research dispatches the current query to the pass-appropriate sub-agent,
// validates the result, extracts references, and sets the routing directive.
func (o *Orchestrator) research(ctx context.Context, s *State) (*State, error) {
	s.ResearchAttempts++

	agent := o.diagnostic
	if s.InTreatmentPhase() {
		agent = o.therapeutic
	}

	body, refs, verr := o.runResearch(ctx, s, agent)
	if verr != nil {
		o.log.Warn("research validation failed",
			"session", s.SessionID, "attempt", s.ResearchAttempts, "error", verr, "output", verr.Output)
		if s.ResearchAttempts >= o.maxAttempts {
			return nil, fmt.Errorf("research retries exhausted after %d attempts: %w", s.ResearchAttempts, verr)
		}
		s.NextRoute = string(routeRetry)
		return s, nil
	}

	s.AddReferences(ReferenceRAG, refs)
	if s.InTreatmentPhase() {
		s.Reports.Append(ReportResearch, body)
		s.NextRoute = string(routeLiterature)
	} else {
		s.Reports.Set(ReportResearch, body)
		s.NextRoute = string(routeHypothesis)
	}
	s.ResearchAttempts = 0

	o.log.Info("research pass complete",
		"session", s.SessionID, "references", len(refs), "route", s.NextRoute)
	return s, nil
}

// runResearch performs one sub-agent call and applies the validation rules:
// non-empty query, enough turns to prove actual research, and a references
// marker in the report.
func (o *Orchestrator) runResearch(ctx context.Context, s *State, agent Researcher) (string, []string, *ResearchValidationError) {
	if strings.TrimSpace(s.Query) == "" {
		return "", nil, &ResearchValidationError{Reason: "empty research query"}
	}

	result, err := agent.Research(ctx, s.Query)
	if err != nil {
		return "", nil, &ResearchValidationError{Reason: fmt.Sprintf("sub-agent failed: %v", err)}
	}

	// The system prompt does not count as a turn.
	if len(result.Transcript)-1 < minResearchTurns {
		return "", nil, &ResearchValidationError{
			Reason: fmt.Sprintf("sub-agent returned %d turns, need at least %d", len(result.Transcript)-1, minResearchTurns),
			Output: result.Report,
		}
	}

	body, refs, perr := SplitReferences(result.Report)
	if perr != nil {
		return "", nil, &ResearchValidationError{Reason: perr.Error(), Output: result.Report}
	}
	return body, refs, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, s *State) (graph.Route, error) {
	route := graph.Route(s.NextRoute)
	s.NextRoute = ""
	switch route {
	case routeRetry, routeHypothesis, routeLiterature:
		return route, nil
	default:
		return "", fmt.Errorf("research stage set no routing directive")
	}
}

// literatureSearch runs the literature sub-agent once, after the therapeutic
// research pass. Failures degrade to a no-findings note: the pipeline can
// still compose a plan from the knowledge base evidence alone.
func (o *Orchestrator) literatureSearch(ctx context.Context, s *State) (*State, error) {
	result, err := o.literature.Research(ctx, s.Query)
	if err != nil {
		o.log.Warn("literature search failed", "session", s.SessionID, "error", err)
		s.Reports.Append(ReportResearch, "Literature search produced no findings for this case.")
		return s, nil
	}

	body, refs, perr := SplitReferences(result.Report)
	if perr != nil {
		o.log.Warn("literature references missing", "session", s.SessionID, "error", perr)
		body = result.Report
	}
	s.AddReferences(ReferenceLiterature, refs)
	s.Reports.Append(ReportResearch, body)

	o.log.Info("literature search complete", "session", s.SessionID, "references", len(refs))
	return s, nil
}

// hypothesis runs the three diagnostic sub-steps in order: certainty
// assessment, investigative workup, then the hypothesis synthesis that
// reconciles both into a ranked differential.
func (o *Orchestrator) hypothesis(ctx context.Context, s *State) (*State, error) {
	evidence := o.evidence(s)

	certainty, err := o.synthesize(ctx, prompt.Certainty,
		"[ANAMNESIS_REPORT]:\n"+s.AnamnesisReport,
		"[RESEARCH_EVIDENCE]:\n"+evidence)
	if err != nil {
		return nil, o.synthesisFailure(s, ReportCertainty, err)
	}
	s.Reports.Set(ReportCertainty, certainty)

	investigator, err := o.synthesize(ctx, prompt.Investigator,
		"[ANAMNESIS_REPORT]:\n"+s.AnamnesisReport,
		"[RESEARCH_EVIDENCE]:\n"+evidence)
	if err != nil {
		return nil, o.synthesisFailure(s, ReportInvestigator, err)
	}
	s.Reports.Set(ReportInvestigator, investigator)

	hypothesis, err := o.synthesize(ctx, prompt.Hypothesis,
		"[ANAMNESIS_REPORT]:\n"+s.AnamnesisReport,
		"[RESEARCH_EVIDENCE]:\n"+evidence,
		"[CERTAINTY_REPORT]:\n"+certainty,
		"[INVESTIGATOR_REPORT]:\n"+investigator)
	if err != nil {
		return nil, o.synthesisFailure(s, ReportHypothesis, err)
	}
	s.Reports.Set(ReportHypothesis, hypothesis)

	o.log.Info("hypothesis synthesized", "session", s.SessionID)
	return s, nil
}

// treatment runs the two terminal sub-steps: the treatment plan, then the
// final consultation narrative with the rendered citation section appended.
func (o *Orchestrator) treatment(ctx context.Context, s *State) (*State, error) {
	evidence := o.evidence(s)
	hypothesis, _ := s.Reports.Get(ReportHypothesis)

	plan, err := o.synthesize(ctx, prompt.Treatment,
		"[HYPOTHESIS_REPORT]:\n"+hypothesis,
		"[ANAMNESIS_REPORT]:\n"+s.AnamnesisReport,
		"[RESEARCH_EVIDENCE]:\n"+evidence)
	if err != nil {
		return nil, o.synthesisFailure(s, ReportTreatment, err)
	}
	s.Reports.Set(ReportTreatment, plan)

	narrative, err := o.synthesize(ctx, prompt.FinalReport,
		"[ANAMNESIS_REPORT]:\n"+s.AnamnesisReport,
		"[HYPOTHESIS_REPORT]:\n"+hypothesis,
		"[TREATMENT_REPORT]:\n"+plan,
		"[RESEARCH_EVIDENCE]:\n"+evidence)
	if err != nil {
		return nil, o.synthesisFailure(s, "final_report", err)
	}

	s.FinalReport = strings.TrimSpace(narrative) + "\n\n" + RenderReferences(s.References)
	o.log.Info("evaluation complete", "session", s.SessionID, "references", len(s.References))
	return s, nil
}

// synthesize renders a stage prompt and calls the high-quality generator with
// the given user sections.
func (o *Orchestrator) synthesize(ctx context.Context, promptName string, sections ...string) (string, error) {
	system, err := o.prompts.Render(promptName, nil)
	if err != nil {
		return "", err
	}
	msgs := make([]*message.Message, 0, len(sections)+1)
	msgs = append(msgs, message.NewMessage(message.RoleSystem, system))
	for _, section := range sections {
		msgs = append(msgs, message.NewMessage(message.RoleUser, section))
	}
	return llm.Generate(ctx, o.pool.ForSynthesis(), msgs...)
}

func (o *Orchestrator) synthesisFailure(s *State, stage string, err error) error {
	serr := &SynthesisError{Stage: stage, Err: err}
	o.log.Error("synthesis failed",
		"session", s.SessionID, "stage", stage, "error", err, "reports", len(s.Reports.Entries()))
	return serr
}

// evidence returns the accumulated research report, trimmed to the token
// budget when a counter is configured.
func (o *Orchestrator) evidence(s *State) string {
	text, _ := s.Reports.Get(ReportResearch)
	if o.counter != nil {
		text = o.counter.Trim(text, o.evidenceBudget)
	}
	return text
}

func (o *Orchestrator) fastClient() llm.Client {
	if o.pool.Fast != nil {
		return o.pool.Fast
	}
	return o.pool.ForSynthesis()
}
