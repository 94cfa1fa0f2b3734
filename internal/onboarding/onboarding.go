// Package onboarding implements the gated onboarding state machine. A
// stage may be entered only when every earlier gate has passed; a
// blocked gate records a remediation suggestion and never silently
// advances. The aggregate context accumulated across stages is the sole
// input to tree generation, which is the point of the gating.
package onboarding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"forest/internal/hta"
	"forest/internal/kvstore"
	"forest/internal/logging"
	"forest/internal/types"
)

const stateFile = "onboarding_state.json"

// Stage is one station of the journey, in fixed order.
type Stage string

const (
	StageGoalCapture        Stage = "goal_capture"
	StageContextGathering   Stage = "context_gathering"
	StageQuestionnaire      Stage = "questionnaire"
	StageComplexityAnalysis Stage = "complexity_analysis"
	StageHTAGeneration      Stage = "hta_generation"
	StageStrategicFramework Stage = "strategic_framework"
	StageCompleted          Stage = "completed"
)

// stageOrder fixes the only legal progression.
var stageOrder = []Stage{
	StageGoalCapture,
	StageContextGathering,
	StageQuestionnaire,
	StageComplexityAnalysis,
	StageHTAGeneration,
	StageStrategicFramework,
	StageCompleted,
}

// GateStatus is one gate's disposition.
type GateStatus string

const (
	GatePending    GateStatus = "pending"
	GateInProgress GateStatus = "in_progress"
	GatePassed     GateStatus = "passed"
	GateBlocked    GateStatus = "blocked"
)

// contextFields are the free-text inputs accepted at context gathering.
var contextFields = []string{
	"background", "constraints", "motivation", "timeline",
	"available_time", "budget", "learning_style", "current_skills",
}

// minContextFields is the minimum set needed to pass the gate.
const minContextFields = 3

// Question is one questionnaire entry.
type Question struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Answer string `json:"answer,omitempty"`
}

// State is the persisted onboarding document, one per project.
type State struct {
	CurrentStage Stage                `json:"current_stage"`
	Gates        map[Stage]GateStatus `json:"gates"`
	Goal         string               `json:"goal"`
	Context      map[string]string    `json:"context,omitempty"`
	Questions    []Question           `json:"questions,omitempty"`
	NextQuestion int                  `json:"next_question"`
	Complexity   *hta.Complexity      `json:"complexity,omitempty"`
	Framework    string               `json:"framework,omitempty"`
	Remediation  string               `json:"remediation,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// AggregateContext flattens everything gathered so far into the context
// snowball handed to tree generation.
func (s *State) AggregateContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", s.Goal)
	for _, field := range contextFields {
		if v := s.Context[field]; v != "" {
			fmt.Fprintf(&b, "%s: %s\n", field, v)
		}
	}
	for _, q := range s.Questions {
		if q.Answer != "" {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", q.Prompt, q.Answer)
		}
	}
	return b.String()
}

func (s *State) gate(stage Stage) GateStatus {
	if st, ok := s.Gates[stage]; ok {
		return st
	}
	return GatePending
}

// stageIndex returns a stage's position in the fixed order.
func stageIndex(stage Stage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// Progress is what a journey operation reports back.
type Progress struct {
	Stage       Stage      `json:"stage"`
	Gate        GateStatus `json:"gate"`
	NextAction  string     `json:"next_action"`
	Remediation string     `json:"remediation,omitempty"`
	Question    *Question  `json:"question,omitempty"`
}

// ProjectCreator registers a project for a captured goal.
type ProjectCreator interface {
	Create(goal string) (id string, err error)
}

// ComplexityAnalyzer runs the goal-context analysis on the snowball.
type ComplexityAnalyzer interface {
	GenerateGoalContext(ctx context.Context, goal, accumulated string) (*hta.GoalContext, error)
}

// TreeBuilder materializes the tree once the gates allow it.
type TreeBuilder interface {
	Build(ctx context.Context, project, path string, args hta.BuildArgs) (*hta.BuildResult, error)
}

// Manager drives the journey. One journey is in flight per project; the
// lock serializes stage transitions.
type Manager struct {
	kv       *kvstore.Store
	projects ProjectCreator
	analyzer ComplexityAnalyzer
	builder  TreeBuilder

	mu sync.Mutex
}

// NewManager wires the state machine to its collaborators.
func NewManager(kv *kvstore.Store, projects ProjectCreator, analyzer ComplexityAnalyzer, builder TreeBuilder) *Manager {
	return &Manager{kv: kv, projects: projects, analyzer: analyzer, builder: builder}
}

// Load reads a project's onboarding state, nil if never started.
func (m *Manager) Load(project string) (*State, error) {
	var st State
	found, err := m.kv.Load(project, "", stateFile, &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &st, nil
}

func (m *Manager) save(project string, st *State) error {
	return m.kv.Save(project, "", stateFile, st)
}

// Start enters the journey. With no active project it prompts for goal
// capture; with one it resumes from the persisted stage.
func (m *Manager) Start(activeProject string) (*Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if activeProject != "" {
		st, err := m.Load(activeProject)
		if err != nil {
			return nil, err
		}
		if st != nil {
			return m.progressFor(st), nil
		}
	}
	return &Progress{
		Stage:      StageGoalCapture,
		Gate:       GatePending,
		NextAction: "Provide initial_goal: what do you want to learn?",
	}, nil
}

// CaptureGoal runs the goal_capture stage: validates the goal, creates
// the project record and persists the opening state.
func (m *Manager) CaptureGoal(initialGoal string) (string, *Progress, error) {
	initialGoal = strings.TrimSpace(initialGoal)
	if initialGoal == "" {
		return "", nil, types.Validation("initial_goal", "a non-empty goal is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	projectID, err := m.projects.Create(initialGoal)
	if err != nil {
		return "", nil, err
	}

	st := &State{
		CurrentStage: StageContextGathering,
		Gates: map[Stage]GateStatus{
			StageGoalCapture: GatePassed,
		},
		Goal:      initialGoal,
		Context:   map[string]string{},
		StartedAt: time.Now().UTC(),
	}
	if err := m.save(projectID, st); err != nil {
		return "", nil, err
	}

	logging.Onboarding("goal captured for project %s: %q", projectID, initialGoal)
	return projectID, m.progressFor(st), nil
}

// Continue advances the journey one step with the given input. The input
// is interpreted by the current stage only; later stages stay locked.
func (m *Manager) Continue(ctx context.Context, project string, input map[string]interface{}) (*Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.Load(project)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, types.GateBlocked(string(StageGoalCapture), "journey not started; call start_learning_journey_forest first")
	}

	switch st.CurrentStage {
	case StageContextGathering:
		err = m.gatherContext(st, input)
	case StageQuestionnaire:
		err = m.runQuestionnaire(st, input)
	case StageComplexityAnalysis:
		err = m.analyzeComplexity(ctx, st)
	case StageHTAGeneration:
		err = m.generateTree(ctx, project, st)
	case StageStrategicFramework:
		err = m.confirmFramework(st, input)
	case StageCompleted:
		return m.progressFor(st), nil
	default:
		return nil, types.GateBlocked(string(st.CurrentStage), "unrecognized stage")
	}
	if err != nil {
		return nil, err
	}

	if err := m.save(project, st); err != nil {
		return nil, err
	}
	return m.progressFor(st), nil
}

// Complete runs the final confirmation and transitions to completed.
func (m *Manager) Complete(project string, finalConfirmation bool) (*Progress, error) {
	if !finalConfirmation {
		return nil, types.Validation("final_confirmation", "completion requires final_confirmation=true")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.Load(project)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, types.GateBlocked(string(StageGoalCapture), "journey not started")
	}
	if st.CurrentStage != StageStrategicFramework && st.CurrentStage != StageCompleted {
		return nil, types.GateBlocked(string(st.CurrentStage),
			fmt.Sprintf("cannot complete from stage %s; earlier gates are still open", st.CurrentStage))
	}

	if st.CurrentStage != StageCompleted {
		st.Gates[StageStrategicFramework] = GatePassed
		st.CurrentStage = StageCompleted
		now := time.Now().UTC()
		st.CompletedAt = &now
		if err := m.save(project, st); err != nil {
			return nil, err
		}
		logging.Onboarding("journey completed for project %s", project)
	}
	return m.progressFor(st), nil
}

// advance moves to the next stage after a passed gate.
func (st *State) advance() {
	idx := stageIndex(st.CurrentStage)
	if idx >= 0 && idx+1 < len(stageOrder) {
		st.Gates[st.CurrentStage] = GatePassed
		st.CurrentStage = stageOrder[idx+1]
		st.Remediation = ""
	}
}

// block records a blocked gate with its remediation and stays put.
func (st *State) block(reason string) {
	st.Gates[st.CurrentStage] = GateBlocked
	st.Remediation = reason
}

func (m *Manager) gatherContext(st *State, input map[string]interface{}) error {
	for _, field := range contextFields {
		if v, ok := input[field].(string); ok && strings.TrimSpace(v) != "" {
			st.Context[field] = strings.TrimSpace(v)
		}
	}

	present := 0
	for _, field := range contextFields {
		if st.Context[field] != "" {
			present++
		}
	}
	if present < minContextFields {
		st.block(fmt.Sprintf(
			"need at least %d context fields, have %d; share some of: %s",
			minContextFields, present, strings.Join(missingFields(st.Context), ", ")))
		return nil
	}

	st.advance()
	st.Questions = generateQuestions(st)
	logging.Onboarding("context gathered (%d fields), %d questions queued", present, len(st.Questions))
	return nil
}

func missingFields(have map[string]string) []string {
	var out []string
	for _, field := range contextFields {
		if have[field] == "" {
			out = append(out, field)
		}
	}
	return out
}

// generateQuestions builds the dynamic queue from what is still unknown.
func generateQuestions(st *State) []Question {
	qs := []Question{
		{ID: "success", Prompt: "What would success look like six months into this goal?"},
	}
	if st.Context["timeline"] == "" {
		qs = append(qs, Question{ID: "timeline", Prompt: "How much calendar time can you give this goal?"})
	}
	if st.Context["learning_style"] == "" {
		qs = append(qs, Question{ID: "learning_style", Prompt: "Do you learn best hands-on, by reading, or a mix?"})
	}
	if st.Context["current_skills"] == "" {
		qs = append(qs, Question{ID: "current_skills", Prompt: "What related skills do you already have?"})
	}
	qs = append(qs, Question{ID: "obstacles", Prompt: "What has stopped you from reaching this goal before?"})
	return qs
}

func (m *Manager) runQuestionnaire(st *State, input map[string]interface{}) error {
	if action, _ := input["action"].(string); action == "start" && st.gate(StageQuestionnaire) == GatePending {
		st.Gates[StageQuestionnaire] = GateInProgress
		return nil
	}
	if st.gate(StageQuestionnaire) != GateInProgress {
		st.block("send action:start to begin the questionnaire")
		return nil
	}

	if answer, ok := input["answer"].(string); ok && strings.TrimSpace(answer) != "" {
		if st.NextQuestion < len(st.Questions) {
			st.Questions[st.NextQuestion].Answer = strings.TrimSpace(answer)
			st.NextQuestion++
		}
	}

	if st.NextQuestion >= len(st.Questions) {
		st.advance()
		logging.Onboarding("questionnaire complete: %d answers", len(st.Questions))
	}
	return nil
}

func (m *Manager) analyzeComplexity(ctx context.Context, st *State) error {
	gc, err := m.analyzer.GenerateGoalContext(ctx, st.Goal, st.AggregateContext())
	if err != nil {
		st.block(fmt.Sprintf("complexity analysis failed (%v); retry with continue_onboarding_forest", err))
		return nil
	}
	st.Complexity = &gc.Complexity
	st.advance()
	logging.Onboarding("complexity analyzed: score=%d depth=%d", gc.Complexity.Score, gc.Complexity.RecommendedDepth)
	return nil
}

func (m *Manager) generateTree(ctx context.Context, project string, st *State) error {
	result, err := m.builder.Build(ctx, project, hta.DefaultPath, hta.BuildArgs{
		Goal:        st.Goal,
		Accumulated: st.AggregateContext(),
		Hints:       hintsFromContext(st.Context),
	})
	if err != nil {
		st.block(fmt.Sprintf("tree generation failed (%v); retry with continue_onboarding_forest", err))
		return nil
	}
	if len(result.Tree.StrategicBranches) == 0 || len(result.Tree.FrontierNodes) == 0 {
		st.block("generated tree has no branches or no frontier tasks; refine the goal and retry")
		return nil
	}

	st.Framework = buildFramework(st, result.Tree)
	st.advance()
	logging.Onboarding("tree generated: %d branches, %d frontier tasks",
		len(result.Tree.StrategicBranches), len(result.Tree.FrontierNodes))
	return nil
}

func (m *Manager) confirmFramework(st *State, input map[string]interface{}) error {
	if confirmed, _ := input["confirm"].(bool); confirmed {
		st.advance()
		now := time.Now().UTC()
		st.CompletedAt = &now
		logging.Onboarding("strategic framework confirmed")
	}
	return nil
}

// hintsFromContext maps gathered context onto the task sizing hints.
func hintsFromContext(ctxFields map[string]string) hta.ContextHints {
	hints := hta.ContextHints{}
	timeline := strings.ToLower(ctxFields["timeline"])
	if strings.Contains(timeline, "urgent") || strings.Contains(timeline, "asap") ||
		strings.Contains(timeline, "week") {
		hints.Urgency = "high"
	}
	style := strings.ToLower(ctxFields["learning_style"])
	switch {
	case strings.Contains(style, "hands"), strings.Contains(style, "doing"), strings.Contains(style, "practice"):
		hints.LearningStyle = "hands-on"
	case strings.Contains(style, "read"), strings.Contains(style, "book"):
		hints.LearningStyle = "reading"
	}
	return hints
}

// buildFramework derives the lightweight plan-of-attack summary shown
// for confirmation.
func buildFramework(st *State, tree *hta.Tree) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan of attack for: %s\n", st.Goal)
	if st.Complexity != nil {
		fmt.Fprintf(&b, "Complexity %d/10 (%s), recommended depth %d.\n",
			st.Complexity.Score, st.Complexity.Level, st.Complexity.RecommendedDepth)
	}
	fmt.Fprintf(&b, "Strategic branches:\n")
	for _, branch := range tree.StrategicBranches {
		fmt.Fprintf(&b, "  %d. %s: %s\n", branch.Priority, branch.Name, branch.Description)
	}
	fmt.Fprintf(&b, "%d tasks are queued on the frontier. Confirm to finish onboarding.\n", len(tree.FrontierNodes))
	return b.String()
}

// progressFor reports the current station and its next action.
func (m *Manager) progressFor(st *State) *Progress {
	p := &Progress{
		Stage:       st.CurrentStage,
		Gate:        st.gate(st.CurrentStage),
		Remediation: st.Remediation,
	}

	switch st.CurrentStage {
	case StageContextGathering:
		p.NextAction = "Share your background, constraints, motivation, timeline, available_time, budget, learning_style and current_skills."
	case StageQuestionnaire:
		if p.Gate == GatePending {
			p.NextAction = "Send action:start to begin the questionnaire."
		} else if st.NextQuestion < len(st.Questions) {
			q := st.Questions[st.NextQuestion]
			p.Question = &q
			p.NextAction = q.Prompt
		}
	case StageComplexityAnalysis:
		p.NextAction = "Call continue_onboarding_forest to run the complexity analysis."
	case StageHTAGeneration:
		p.NextAction = "Call continue_onboarding_forest to generate your learning tree."
	case StageStrategicFramework:
		p.NextAction = st.Framework + "\nSend confirm:true to accept, or complete_onboarding_forest."
	case StageCompleted:
		p.NextAction = "Onboarding is complete. Use get_next_task_forest to begin."
	}
	return p
}
