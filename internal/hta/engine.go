package hta

import (
	"context"
	"fmt"
	"strings"
	"time"

	"forest/internal/bridge"
	"forest/internal/logging"
)

// Intelligence is the engine's view of the delegation bridge.
type Intelligence interface {
	Delegate(p bridge.Params) *bridge.Envelope
	Await(ctx context.Context, requestID string, timeout time.Duration) (map[string]interface{}, error)
}

// Dispatcher surfaces a request envelope to the external completer. The
// server implements this with a transport notification; tests script it.
type Dispatcher interface {
	Dispatch(env *bridge.Envelope)
}

// Engine generates the six HTA levels through schema-constrained
// delegations, with a retry ladder and a deterministic fallback for the
// strategic-branch level.
type Engine struct {
	intel    Intelligence
	dispatch Dispatcher
	timeout  time.Duration
}

// NewEngine wires the engine to its collaborators.
func NewEngine(intel Intelligence, dispatch Dispatcher, timeout time.Duration) *Engine {
	return &Engine{intel: intel, dispatch: dispatch, timeout: timeout}
}

// request runs one schema-constrained delegation round trip.
func (e *Engine) request(ctx context.Context, level int, system, user string) (map[string]interface{}, error) {
	env := e.intel.Delegate(bridge.Params{
		System:      system,
		User:        user,
		Schema:      schemaForLevel(level),
		Temperature: temperatureForLevel(level),
	})
	e.dispatch.Dispatch(env)

	data, err := e.intel.Await(ctx, env.RequestID, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("level %d delegation failed: %w", level, err)
	}
	return data, nil
}

// GoalContext is the parsed level-1 result.
type GoalContext struct {
	Raw              map[string]interface{}
	Complexity       Complexity
	DomainBoundaries []string
	Strategy         string
}

// GenerateGoalContext runs level 1. An unrecoverable failure here fails
// the whole tree build; there is no fallback for goal analysis.
func (e *Engine) GenerateGoalContext(ctx context.Context, goal, accumulated string) (*GoalContext, error) {
	timer := logging.StartTimer(logging.CategoryHTA, "GenerateGoalContext")
	defer timer.Stop()

	system, user := level1Prompts(goal, accumulated)
	raw, err := e.request(ctx, 1, system, user)
	if err != nil {
		return nil, err
	}

	gc := AnalyzeGoal(goal, userLevelFromContext(accumulated))
	result := &GoalContext{
		Raw:              raw,
		Complexity:       ComplexityFromAnalysis(gc),
		DomainBoundaries: gc.Terms,
	}

	if analysis, ok := raw["goal_analysis"].(map[string]interface{}); ok {
		if score, ok := numberField(analysis, "goal_complexity"); ok && score >= 1 && score <= 10 {
			result.Complexity.Score = int(score)
			result.Complexity.Level = LevelForScore(int(score))
		}
		if factors, ok := analysis["complexity_factors"].([]interface{}); ok {
			result.Complexity.Factors = toStrings(factors)
		}
	}
	if approach, ok := raw["learning_approach"].(map[string]interface{}); ok {
		result.Strategy, _ = approach["recommended_strategy"].(string)
	}
	if bounds, ok := raw["domain_boundaries"].([]interface{}); ok && len(bounds) > 0 {
		result.DomainBoundaries = toStrings(bounds)
	}

	logging.HTA("level 1 complete: complexity=%d depth=%d boundaries=%d",
		result.Complexity.Score, result.Complexity.RecommendedDepth, len(result.DomainBoundaries))
	return result, nil
}

// BranchResult carries the accepted level-2 output and how it was won.
type BranchResult struct {
	Branches []Branch
	Raw      map[string]interface{}
	Method   string // "schema", "retry" or "fallback"
}

// GenerateStrategicBranches runs level 2 with the full retry ladder:
// plain attempt, enriched retry, then the deterministic goal-adaptive
// fallback. It never fails outright.
func (e *Engine) GenerateStrategicBranches(ctx context.Context, goal, accumulated, constraints string) *BranchResult {
	timer := logging.StartTimer(logging.CategoryHTA, "GenerateStrategicBranches")
	defer timer.Stop()

	gc := AnalyzeGoal(goal, userLevelFromContext(accumulated))

	system, user := level2Prompts(goal, accumulated, constraints)
	if raw, err := e.request(ctx, 2, system, user); err == nil {
		if branches, ok := parseBranches(raw); ok {
			return &BranchResult{Branches: branches, Raw: raw, Method: "schema"}
		}
		logging.HTA("level 2 output unusable, retrying with enriched prompt")
	} else {
		logging.HTA("level 2 attempt failed: %v", err)
	}

	system, user = level2RetryPrompts(goal, accumulated, gc.Terms)
	if raw, err := e.request(ctx, 2, system, user); err == nil {
		if branches, ok := parseBranches(raw); ok {
			return &BranchResult{Branches: branches, Raw: raw, Method: "retry"}
		}
		logging.HTA("level 2 retry still unusable, falling back")
	} else {
		logging.HTA("level 2 retry failed: %v", err)
	}

	branches := FallbackBranches(gc)
	raw := map[string]interface{}{
		"strategic_branches": branchesToRaw(branches),
		"generation":         "goal_adaptive_fallback",
	}
	logging.HTA("level 2 resolved by fallback: %d branches", len(branches))
	return &BranchResult{Branches: branches, Raw: raw, Method: "fallback"}
}

// GenerateLevel produces one deeper slice (levels 3-6) scoped to a
// branch, task or action. Failures surface to the caller; the tree is
// not modified on error, so a later retry is safe.
func (e *Engine) GenerateLevel(ctx context.Context, level int, goal, scope, parentContext string) (map[string]interface{}, error) {
	if level < 3 || level > MaxDepth {
		return nil, fmt.Errorf("invalid expansion level %d", level)
	}
	system, user := deeperLevelPrompts(level, goal, scope, parentContext)
	return e.request(ctx, level, system, user)
}

// parseBranches converts a level-2 raw output into typed branches and
// applies the acceptance predicates: at least 3 branches, unique
// non-generic names.
func parseBranches(raw map[string]interface{}) ([]Branch, bool) {
	items, ok := raw["strategic_branches"].([]interface{})
	if !ok || len(items) < 3 {
		return nil, false
	}

	seen := make(map[string]bool, len(items))
	branches := make([]Branch, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		name, _ := m["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" || seen[name] || isGenericBranchName(name) {
			return nil, false
		}
		seen[name] = true

		b := Branch{Name: name, Priority: i + 1, Focus: FocusBalanced}
		b.Description, _ = m["description"].(string)
		b.DomainFocus, _ = m["domain_focus"].(string)
		b.Rationale, _ = m["rationale"].(string)
		if p, ok := numberField(m, "priority"); ok && p >= 1 {
			b.Priority = int(p)
		}
		if outcomes, ok := m["expected_outcomes"].([]interface{}); ok {
			b.ExpectedOutcomes = toStrings(outcomes)
		}
		if adaptations, ok := m["context_adaptations"].([]interface{}); ok {
			b.ContextAdaptations = toStrings(adaptations)
		}
		if focus, ok := m["focus"].(string); ok {
			b.Focus = BranchFocus(focus)
		}
		branches = append(branches, b)
	}
	return branches, true
}

func branchesToRaw(branches []Branch) []interface{} {
	out := make([]interface{}, len(branches))
	for i, b := range branches {
		out[i] = map[string]interface{}{
			"name":        b.Name,
			"description": b.Description,
			"priority":    b.Priority,
			"focus":       string(b.Focus),
		}
	}
	return out
}

// userLevelFromContext scans the accumulated context for an experience
// self-assessment.
func userLevelFromContext(accumulated string) UserLevel {
	lower := strings.ToLower(accumulated)
	switch {
	case strings.Contains(lower, "expert") || strings.Contains(lower, "professional"):
		return UserExpert
	case strings.Contains(lower, "beginner") || strings.Contains(lower, "never") || strings.Contains(lower, "new to"):
		return UserBeginner
	default:
		return UserIntermediate
	}
}

func numberField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func toStrings(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
