package server

// landingWhitelist names the tools that may open a session without the
// landing payload being injected first. Everything read-only and the
// bridge callback qualify; mutations do not.
var landingWhitelist = map[string]bool{
	"get_landing_page_forest":     true,
	"list_projects_forest":        true,
	"get_active_project_forest":   true,
	"get_onboarding_status_forest": true,
	"current_status_forest":       true,
	"process_response":            true,
}

// landingPayload is the orientation document shown once per process.
// Copy only; the gate logic lives in Session.
func landingPayload() map[string]interface{} {
	return map[string]interface{}{
		"title": "Forest",
		"summary": "Forest turns a learning goal into a living task tree. " +
			"It generates a plan, serves one task at a time, and evolves " +
			"the plan from what you report back.",
		"getting_started": []string{
			"start_learning_journey_forest begins guided onboarding for a new goal",
			"create_project_forest {goal} skips onboarding and registers a project directly",
			"build_hta_tree_forest generates the task tree for the active project",
			"get_next_task_forest picks the best next task for your energy and time",
			"complete_block_forest {block_id, outcome, energy_level} records progress",
		},
		"tips": []string{
			"evolve_strategy_forest accepts hints like 'prune: <branch>', 'explore: <topic>' and 'new goal: <goal>'",
			"current_status_forest aggregates progress across the active project",
		},
	}
}
