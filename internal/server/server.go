// Package server hosts the forest tool surface over MCP stdio. It is a
// thin router: every handler parses arguments into typed values, calls
// one component, and maps the outcome to a structured payload. No
// business logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"forest/internal/bridge"
	"forest/internal/config"
	"forest/internal/evolution"
	"forest/internal/hta"
	"forest/internal/kvstore"
	"forest/internal/logging"
	"forest/internal/onboarding"
	"forest/internal/project"
	"forest/internal/tasks"
	"forest/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Notifier forwards intelligence envelopes to the connected client as
// MCP notifications. It exists so the engine can be wired before the
// MCP server instance is constructed.
type Notifier struct {
	mu  sync.Mutex
	srv *server.MCPServer
}

func (n *Notifier) bind(srv *server.MCPServer) {
	n.mu.Lock()
	n.srv = srv
	n.mu.Unlock()
}

// Dispatch implements hta.Dispatcher. Envelopes raised before the
// transport is up are dropped with a log line; the bridge waiter then
// times out normally.
func (n *Notifier) Dispatch(env *bridge.Envelope) {
	n.mu.Lock()
	srv := n.srv
	n.mu.Unlock()
	if srv == nil {
		logging.Bridge("dropping envelope %s: transport not connected", env.RequestID)
		return
	}

	raw, err := json.Marshal(env)
	if err != nil {
		logging.Bridge("envelope %s marshal failed: %v", env.RequestID, err)
		return
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		logging.Bridge("envelope %s remarshal failed: %v", env.RequestID, err)
		return
	}
	srv.SendNotificationToAllClients("notifications/intelligence_request", payload)
}

// Deps is everything the tool surface routes to.
type Deps struct {
	Config     *config.Config
	KV         *kvstore.Store
	Bridge     *bridge.Bridge
	Projects   *project.Manager
	Trees      *hta.Store
	Onboarding *onboarding.Manager
	Selector   *tasks.Selector
	Presenter  *tasks.Presenter
	Evolver    *evolution.Evolver
	Notifier   *Notifier

	// OnCompletion fires after a successful task completion, with the
	// project id. The supervisor hooks this for immediate refill checks.
	OnCompletion func(project string)
}

// Server is the MCP facade over the forest components.
type Server struct {
	deps     Deps
	session  *Session
	mcp      *server.MCPServer
	handlers map[string]server.ToolHandlerFunc
}

// New builds the MCP server and registers the full tool surface.
func New(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		session:  NewSession(),
		handlers: make(map[string]server.ToolHandlerFunc),
	}
	s.mcp = server.NewMCPServer(
		"forest",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)
	if deps.Notifier != nil {
		deps.Notifier.bind(s.mcp)
	}
	s.registerTools()
	return s
}

// Run serves stdio until the stream closes. EPIPE and a closed pipe are
// clean shutdowns: the client went away, nothing is wrong.
func (s *Server) Run(ctx context.Context) error {
	logging.Server("serving %d tools over stdio", len(s.handlers))
	err := server.ServeStdio(s.mcp, server.WithStdioContextFunc(
		func(context.Context) context.Context { return ctx },
	))
	if err == nil || errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handler is the typed inner form of a tool handler: payload or error.
type handler func(ctx context.Context, req mcp.CallToolRequest) (interface{}, error)

// register wraps a handler with the landing gate, the read-only gate
// and the error-to-payload mapping.
func (s *Server) register(tool mcp.Tool, mutating bool, h handler) {
	wrapped := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inject := s.session.consumeLanding(tool.Name)

		var result *mcp.CallToolResult
		if mutating && s.deps.Config != nil && s.deps.Config.ReadOnly {
			result = errorResult(types.GateBlocked("read_only", "server is running in read-only mode"))
		} else if payload, err := h(ctx, req); err != nil {
			logging.Server("tool %s failed: %v", tool.Name, err)
			result = errorResult(err)
		} else {
			result = payloadResult(payload)
		}

		if inject {
			landing, _ := json.MarshalIndent(landingPayload(), "", "  ")
			result.Content = append([]mcp.Content{mcp.NewTextContent(string(landing))}, result.Content...)
		}
		return result, nil
	}
	s.handlers[tool.Name] = wrapped
	s.mcp.AddTool(tool, wrapped)
}

// CallTool routes one call by name: the transport-independent entry the
// tests and any embedded caller use. Unknown names map to the tagged
// error payload instead of a transport-level failure.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	h, ok := s.handlers[name]
	if !ok {
		return errorResult(types.UnknownTool(name)), nil
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

// payloadResult marshals a success payload into a text result.
func payloadResult(payload interface{}) *mcp.CallToolResult {
	if payload == nil {
		payload = map[string]interface{}{"ok": true}
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(types.Storage(err, "failed to encode response"))
	}
	return mcp.NewToolResultText(string(raw))
}

// errorResult maps a tagged error to the structured wire shape. No
// stack traces, just the tag, the message and the offending key.
func errorResult(err error) *mcp.CallToolResult {
	tag := types.TagOf(err)
	if tag == "" {
		tag = "InternalError"
	}
	body := map[string]interface{}{
		"tag":     string(tag),
		"message": err.Error(),
	}
	var te *types.TaggedError
	if errors.As(err, &te) {
		body["message"] = te.Message
		if te.Key != "" {
			body["key"] = te.Key
		}
	}
	raw, _ := json.Marshal(map[string]interface{}{"error": body})
	return mcp.NewToolResultError(string(raw))
}

// requireArgs reports every missing required key in one validation
// error, per the argument contract.
func requireArgs(req mcp.CallToolRequest, keys ...string) error {
	args := req.GetArguments()
	var missing []string
	for _, k := range keys {
		if _, ok := args[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return types.Validation(missing[0], "missing required arguments: %v", missing)
	}
	return nil
}

const serverInstructions = `Forest is a learning-plan orchestration server.

It maintains a Hierarchical Task Analysis tree per project and drives a
generate, present, complete, evolve cycle. Plan generation is delegated
back to you: when a notifications/intelligence_request arrives, complete
the prompt and deliver ONLY the JSON object described by its schema via
the process_response tool with the same request_id.

Typical flow:
1. start_learning_journey_forest, then continue_onboarding_forest until
   the journey completes (or create_project_forest to skip onboarding).
2. build_hta_tree_forest to generate the tree.
3. get_next_task_forest, work the task, then complete_block_forest with
   block_id, outcome and energy_level (1-5).
4. evolve_strategy_forest with hints like "prune: <branch>",
   "explore: <topic>" or "new goal: <goal>" to steer the plan.`
