package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"forest/internal/evolution"
	"forest/internal/hta"
	"forest/internal/tasks"
	"forest/internal/types"
)

// registerTools wires the complete tool surface. Mutating tools pass
// mutating=true and are refused in read-only mode.
func (s *Server) registerTools() {
	s.register(mcp.NewTool("create_project_forest",
		mcp.WithDescription("Create a project for a learning goal and make it active."),
		mcp.WithString("goal", mcp.Required(), mcp.Description("The learning goal, e.g. 'master portrait photography'.")),
	), true, s.handleCreateProject)

	s.register(mcp.NewTool("switch_project_forest",
		mcp.WithDescription("Switch the active project."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Id of the project to activate.")),
	), true, s.handleSwitchProject)

	s.register(mcp.NewTool("list_projects_forest",
		mcp.WithDescription("List every registered project."),
	), false, s.handleListProjects)

	s.register(mcp.NewTool("get_active_project_forest",
		mcp.WithDescription("Return the active project, or an empty result when none is selected."),
	), false, s.handleActiveProject)

	s.register(mcp.NewTool("build_hta_tree_forest",
		mcp.WithDescription("Generate the task tree for the active project. Idempotent while the frontier is alive."),
		mcp.WithString("goal", mcp.Description("Override the project goal for this build.")),
		mcp.WithString("accumulated_context", mcp.Description("Extra context to ground generation.")),
		mcp.WithString("urgency", mcp.Description("low, medium or high; shortens task durations when high.")),
		mcp.WithString("learning_style", mcp.Description("hands-on or reading; scales task durations.")),
	), true, s.handleBuildTree)

	s.register(mcp.NewTool("get_hta_status_forest",
		mcp.WithDescription("Summarize the active project's tree without regenerating anything."),
	), false, s.handleTreeStatus)

	s.register(mcp.NewTool("get_next_task_forest",
		mcp.WithDescription("Pick the best next task for the current energy and time."),
		mcp.WithNumber("energy_level", mcp.Description("Current energy 1-5, default 3.")),
		mcp.WithNumber("time_available", mcp.Description("Minutes available, default 30.")),
		mcp.WithString("focus_area", mcp.Description("Branch name to prefer.")),
		mcp.WithString("context", mcp.Description("Free-text session context for semantic matching.")),
	), false, s.handleNextTask)

	s.register(mcp.NewTool("complete_block_forest",
		mcp.WithDescription("Record a completed task and feed the outcome into strategy evolution."),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("Id of the completed task.")),
		mcp.WithString("outcome", mcp.Required(), mcp.Description("What happened.")),
		mcp.WithNumber("energy_level", mcp.Required(), mcp.Description("Energy after completion, 1-5.")),
		mcp.WithString("learned", mcp.Description("What was learned.")),
		mcp.WithNumber("difficulty_rating", mcp.Description("Perceived difficulty 1-5.")),
		mcp.WithBoolean("breakthrough", mcp.Description("Flag a breakthrough moment.")),
	), true, s.handleCompleteBlock)

	s.register(mcp.NewTool("evolve_strategy_forest",
		mcp.WithDescription("Evolve the plan. Hints: 'prune: <branch>', 'explore: <topic>', 'new goal: <goal>', or empty for automatic detection."),
		mcp.WithString("hint", mcp.Required(), mcp.Description("Evolution hint; may be empty.")),
	), true, s.handleEvolveStrategy)

	s.register(mcp.NewTool("current_status_forest",
		mcp.WithDescription("Aggregate progress summary for the active project."),
	), false, s.handleCurrentStatus)

	s.register(mcp.NewTool("sync_forest_memory_forest",
		mcp.WithDescription("Replay the learning history into the accumulated context."),
	), true, s.handleSyncMemory)

	s.register(mcp.NewTool("start_learning_journey_forest",
		mcp.WithDescription("Begin or resume the guided onboarding journey."),
	), true, s.handleStartJourney)

	s.register(mcp.NewTool("continue_onboarding_forest",
		mcp.WithDescription("Advance onboarding one step. Provide initial_goal at goal capture, context fields while gathering, answer/action for the questionnaire, confirm at the framework stage."),
		mcp.WithString("initial_goal", mcp.Description("The goal, at the goal-capture stage.")),
	), true, s.handleContinueOnboarding)

	s.register(mcp.NewTool("get_onboarding_status_forest",
		mcp.WithDescription("Read the active project's onboarding state."),
	), false, s.handleOnboardingStatus)

	s.register(mcp.NewTool("complete_onboarding_forest",
		mcp.WithDescription("Finish onboarding after the strategic framework is confirmed."),
		mcp.WithBoolean("final_confirmation", mcp.Required(), mcp.Description("Must be true.")),
	), true, s.handleCompleteOnboarding)

	s.register(mcp.NewTool("get_next_pipeline_forest",
		mcp.WithDescription("Present a pipeline of upcoming tasks with branch variety."),
		mcp.WithNumber("energy_level", mcp.Description("Current energy 1-5, default 3.")),
		mcp.WithNumber("time_available", mcp.Description("Minutes available, default 30.")),
		mcp.WithString("focus_area", mcp.Description("Branch name to prefer.")),
	), false, s.handleNextPipeline)

	s.register(mcp.NewTool("evolve_pipeline_forest",
		mcp.WithDescription("Run strategy evolution, then present the refreshed pipeline."),
		mcp.WithString("hint", mcp.Description("Optional evolution hint.")),
		mcp.WithNumber("energy_level", mcp.Description("Current energy 1-5, default 3.")),
		mcp.WithNumber("time_available", mcp.Description("Minutes available, default 30.")),
	), true, s.handleEvolvePipeline)

	s.register(mcp.NewTool("factory_reset_forest",
		mcp.WithDescription("Delete one project, or every project when no project_id is given. Destructive."),
		mcp.WithBoolean("confirm_deletion", mcp.Required(), mcp.Description("Must be true.")),
		mcp.WithString("confirmation_message", mcp.Required(), mcp.Description("A typed confirmation of at least 10 characters.")),
		mcp.WithString("project_id", mcp.Description("Limit the reset to one project.")),
	), true, s.handleFactoryReset)

	s.register(mcp.NewTool("process_response",
		mcp.WithDescription("Deliver a completion for a pending intelligence request."),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("Id from the intelligence request envelope.")),
		mcp.WithString("response", mcp.Required(), mcp.Description("The raw completion text; JSON when a schema was given.")),
	), false, s.handleProcessResponse)

	s.register(mcp.NewTool("get_landing_page_forest",
		mcp.WithDescription("Show the orientation page."),
	), false, s.handleLandingPage)

	s.register(mcp.NewTool("debug_cache_forest",
		mcp.WithDescription("Diagnostic: document cache statistics and pending bridge requests."),
	), false, s.handleDebugCache)

	s.register(mcp.NewTool("emergency_clear_cache_forest",
		mcp.WithDescription("Diagnostic: drop the document cache. Persisted state is untouched."),
	), false, s.handleClearCache)
}

func (s *Server) handleCreateProject(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := requireArgs(req, "goal"); err != nil {
		return nil, err
	}
	rec, err := s.deps.Projects.Create(req.GetString("goal", ""))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"project_id": rec.ID,
		"goal":       rec.Goal,
		"active":     true,
	}, nil
}

func (s *Server) handleSwitchProject(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := requireArgs(req, "project_id"); err != nil {
		return nil, err
	}
	rec, err := s.deps.Projects.Switch(req.GetString("project_id", ""))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Server) handleListProjects(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	records, err := s.deps.Projects.List()
	if err != nil {
		return nil, err
	}
	active, err := s.deps.Projects.Active()
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{"projects": records}
	if active != nil {
		out["active_project"] = active.ID
	}
	return out, nil
}

func (s *Server) handleActiveProject(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.Active()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return map[string]interface{}{"active_project": nil}, nil
	}
	return rec, nil
}

func (s *Server) handleBuildTree(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	goal := req.GetString("goal", rec.Goal)
	result, err := s.deps.Trees.Build(ctx, rec.ID, hta.DefaultPath, hta.BuildArgs{
		Goal:        goal,
		Accumulated: req.GetString("accumulated_context", ""),
		Hints: hta.ContextHints{
			Urgency:       req.GetString("urgency", ""),
			LearningStyle: req.GetString("learning_style", ""),
		},
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"created": result.Created,
		"summary": result.Summary,
	}, nil
}

func (s *Server) handleTreeStatus(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	tree, err := s.deps.Trees.Load(rec.ID, hta.DefaultPath)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return map[string]interface{}{
			"exists": false,
			"hint":   "no tree yet; run build_hta_tree_forest",
		}, nil
	}
	return map[string]interface{}{
		"exists":          true,
		"summary":         hta.ExistingTreeSummary(tree),
		"branch_progress": branchProgress(tree),
		"last_updated":    tree.LastUpdated,
	}, nil
}

// criteriaFrom reads the shared selection arguments with their defaults.
func criteriaFrom(req mcp.CallToolRequest) tasks.Criteria {
	return tasks.Criteria{
		EnergyLevel:   req.GetInt("energy_level", 3),
		TimeAvailable: req.GetInt("time_available", 30),
		FocusArea:     req.GetString("focus_area", ""),
		SemanticQuery: req.GetString("context", ""),
	}
}

func (s *Server) handleNextTask(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	tree, err := s.deps.Trees.Load(rec.ID, hta.DefaultPath)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, types.Validation("tree", "no tree exists; run build_hta_tree_forest first")
	}
	task := s.deps.Selector.Select(ctx, rec.ID, tree, criteriaFrom(req))
	if task == nil {
		return map[string]interface{}{
			"task": nil,
			"hint": "no eligible tasks; complete prerequisites or evolve the strategy",
		}, nil
	}
	return map[string]interface{}{"task": task}, nil
}

func (s *Server) handleCompleteBlock(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := requireArgs(req, "block_id", "outcome", "energy_level"); err != nil {
		return nil, err
	}
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}

	// Completions for one project land in arrival order.
	l := s.session.completionLock(rec.ID)
	l.Lock()
	defer l.Unlock()

	result, err := s.deps.Evolver.CompleteTask(ctx, rec.ID, hta.DefaultPath, evolution.Completion{
		BlockID:          req.GetString("block_id", ""),
		Outcome:          req.GetString("outcome", ""),
		Learned:          req.GetString("learned", ""),
		EnergyLevel:      req.GetInt("energy_level", 0),
		DifficultyRating: req.GetInt("difficulty_rating", 0),
		Breakthrough:     req.GetBool("breakthrough", false),
	})
	if err != nil {
		return nil, err
	}
	if s.deps.OnCompletion != nil {
		s.deps.OnCompletion(rec.ID)
	}
	return result, nil
}

func (s *Server) handleEvolveStrategy(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := requireArgs(req, "hint"); err != nil {
		return nil, err
	}
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	evo, err := s.deps.Evolver.EvolveStrategy(ctx, rec.ID, hta.DefaultPath, req.GetString("hint", ""))
	if err != nil {
		return nil, err
	}
	return evo, nil
}

func (s *Server) handleCurrentStatus(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	return s.aggregateStatus(rec)
}

func (s *Server) handleSyncMemory(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	return s.deps.Evolver.SyncMemory(rec.ID, hta.DefaultPath)
}

func (s *Server) handleStartJourney(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	active := ""
	if rec, err := s.deps.Projects.Active(); err != nil {
		return nil, err
	} else if rec != nil {
		active = rec.ID
	}
	return s.deps.Onboarding.Start(active)
}

func (s *Server) handleContinueOnboarding(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if goal := req.GetString("initial_goal", ""); goal != "" {
		projectID, progress, err := s.deps.Onboarding.CaptureGoal(goal)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"project_id": projectID,
			"progress":   progress,
		}, nil
	}

	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	progress, err := s.deps.Onboarding.Continue(ctx, rec.ID, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"progress": progress}, nil
}

func (s *Server) handleOnboardingStatus(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	st, err := s.deps.Onboarding.Load(rec.ID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return map[string]interface{}{
			"started": false,
			"hint":    "no journey for this project; call start_learning_journey_forest",
		}, nil
	}
	return st, nil
}

func (s *Server) handleCompleteOnboarding(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := requireArgs(req, "final_confirmation"); err != nil {
		return nil, err
	}
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	return s.deps.Onboarding.Complete(rec.ID, req.GetBool("final_confirmation", false))
}

func (s *Server) handleNextPipeline(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	tree, err := s.deps.Trees.Load(rec.ID, hta.DefaultPath)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, types.Validation("tree", "no tree exists; run build_hta_tree_forest first")
	}
	pipeline := s.deps.Presenter.NextPipeline(ctx, rec.ID, tree, criteriaFrom(req))
	return map[string]interface{}{"pipeline": pipeline}, nil
}

func (s *Server) handleEvolvePipeline(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	rec, err := s.deps.Projects.RequireActive()
	if err != nil {
		return nil, err
	}
	triggers := map[string]interface{}{}
	if hint := req.GetString("hint", ""); hint != "" {
		triggers["hint"] = hint
	}
	pipeline, err := s.deps.Presenter.EvolvePipeline(ctx, rec.ID, hta.DefaultPath, criteriaFrom(req), triggers)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"pipeline": pipeline}, nil
}

func (s *Server) handleFactoryReset(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := requireArgs(req, "confirm_deletion", "confirmation_message"); err != nil {
		return nil, err
	}
	confirm := req.GetBool("confirm_deletion", false)
	message := req.GetString("confirmation_message", "")

	if id := req.GetString("project_id", ""); id != "" {
		if !confirm {
			return nil, types.Validation("confirm_deletion", "deletion requires confirm_deletion=true")
		}
		if len(message) < 10 {
			return nil, types.Validation("confirmation_message", "confirmation message must be at least 10 characters")
		}
		if err := s.deps.Projects.Delete(id); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": 1, "project_id": id}, nil
	}

	deleted, err := s.deps.Projects.FactoryReset(confirm, message)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": deleted}, nil
}

func (s *Server) handleProcessResponse(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := requireArgs(req, "request_id", "response"); err != nil {
		return nil, err
	}
	envelope, err := s.deps.Bridge.ProcessResponse(
		req.GetString("request_id", ""),
		req.GetString("response", ""),
	)
	if err != nil {
		return nil, err
	}
	return envelope, nil
}

func (s *Server) handleLandingPage(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	return landingPayload(), nil
}

func (s *Server) handleDebugCache(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	return map[string]interface{}{
		"cache":           s.deps.KV.Stats(),
		"pending_bridge":  s.deps.Bridge.PendingCount(),
	}, nil
}

func (s *Server) handleClearCache(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	s.deps.KV.ClearCache()
	return map[string]interface{}{"cleared": true}, nil
}
