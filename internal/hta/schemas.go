package hta

import (
	"fmt"
	"strings"

	"forest/internal/bridge"
)

// Level schemas: the structural contracts each depth's delegation must
// satisfy. Kept as data so they travel inside the request envelope.

func level1Schema() bridge.Schema {
	return bridge.Schema{
		"required": []interface{}{"goal_analysis", "learning_approach", "domain_boundaries"},
		"properties": map[string]interface{}{
			"goal_analysis":     map[string]interface{}{"type": "object"},
			"learning_approach": map[string]interface{}{"type": "object"},
			"domain_boundaries": map[string]interface{}{"type": "array"},
		},
	}
}

func level2Schema() bridge.Schema {
	return bridge.Schema{
		"required": []interface{}{"strategic_branches"},
		"properties": map[string]interface{}{
			"strategic_branches": map[string]interface{}{"type": "array"},
		},
	}
}

func level3Schema() bridge.Schema {
	return bridge.Schema{
		"required": []interface{}{"tasks"},
		"properties": map[string]interface{}{
			"tasks": map[string]interface{}{"type": "array"},
		},
	}
}

func level4Schema() bridge.Schema {
	return bridge.Schema{
		"required": []interface{}{"micro_particles"},
		"properties": map[string]interface{}{
			"micro_particles": map[string]interface{}{"type": "array"},
		},
	}
}

func level5Schema() bridge.Schema {
	return bridge.Schema{
		"required": []interface{}{"nano_actions"},
		"properties": map[string]interface{}{
			"nano_actions": map[string]interface{}{"type": "array"},
		},
	}
}

func level6Schema() bridge.Schema {
	return bridge.Schema{
		"required": []interface{}{"context_adaptive_primitives"},
		"properties": map[string]interface{}{
			"context_adaptive_primitives": map[string]interface{}{"type": "array"},
		},
	}
}

func schemaForLevel(level int) bridge.Schema {
	switch level {
	case 1:
		return level1Schema()
	case 2:
		return level2Schema()
	case 3:
		return level3Schema()
	case 4:
		return level4Schema()
	case 5:
		return level5Schema()
	case 6:
		return level6Schema()
	}
	return nil
}

// temperatureForLevel decreases with depth: exploratory at the top,
// precise at the bottom.
func temperatureForLevel(level int) float64 {
	temps := [...]float64{0.9, 0.8, 0.6, 0.5, 0.4, 0.3}
	if level < 1 || level > len(temps) {
		return 0.5
	}
	return temps[level-1]
}

func level1Prompts(goal, accumulated string) (system, user string) {
	system = `You are analyzing a learning goal to establish its context.
Return JSON with goal_analysis {goal_complexity (1-10), complexity_factors []},
learning_approach {recommended_strategy}, and domain_boundaries: the list of
topics that are in scope for this goal.`
	user = fmt.Sprintf("Goal: %s\n\nAccumulated context:\n%s", goal, accumulated)
	return
}

func level2Prompts(goal, accumulated, constraints string) (system, user string) {
	system = `You are decomposing a learning goal into strategic branches.
Return JSON with strategic_branches: 3 to 7 items, each with name,
description, priority (1 = highest), domain_focus, rationale,
expected_outcomes [] and context_adaptations []. Branch names must be
specific to the goal's domain.`
	user = fmt.Sprintf("Goal: %s\n\nAccumulated context:\n%s\n\nConstraints:\n%s", goal, accumulated, constraints)
	return
}

// level2RetryPrompts enriches the branch prompt after an unusable first
// attempt: generic scaffolding names are forbidden and domain terms from
// the goal are required.
func level2RetryPrompts(goal, accumulated string, terms []string) (system, user string) {
	system = `You are decomposing a learning goal into strategic branches.
Return JSON with strategic_branches: 3 to 7 items with unique names.
Do NOT use generic names such as "Foundation", "Research" or
"Implementation". Every branch name must use terminology from the goal's
own domain. Keep the goal's key words visible in branch descriptions.`
	user = fmt.Sprintf("Goal: %s\n\nDomain terms that must appear across the branch names: %s\n\nAccumulated context:\n%s",
		goal, strings.Join(terms, ", "), accumulated)
	return
}

func deeperLevelPrompts(level int, goal, scope, parentContext string) (system, user string) {
	switch level {
	case 3:
		system = `You are decomposing one strategic branch into ordered learning
tasks. Return JSON with tasks: each {title, description, learning_outcome,
prerequisites []} in the order they should be attempted.`
	case 4:
		system = `You are breaking one task into micro-particles: ordered atomic
steps. Return JSON with micro_particles: each {title, action, duration_minutes}.`
	case 5:
		system = `You are reducing one micro-particle to nano-actions:
environment-agnostic minimal steps. Return JSON with nano_actions: each
{title, action}.`
	case 6:
		system = `You are adapting one nano-action to the learner's concrete
contexts. Return JSON with context_adaptive_primitives: each
{context, variant}.`
	}
	user = fmt.Sprintf("Goal: %s\nScope: %s\n\nLevel-1 context:\n%s", goal, scope, parentContext)
	return
}

// genericBranchNames are the scaffolding names the retry ladder forbids.
var genericBranchNames = map[string]bool{
	"foundation":     true,
	"foundations":    true,
	"research":       true,
	"implementation": true,
	"basics":         true,
	"advanced":       true,
	"practice":       true,
}

func isGenericBranchName(name string) bool {
	return genericBranchNames[strings.ToLower(strings.TrimSpace(name))]
}
