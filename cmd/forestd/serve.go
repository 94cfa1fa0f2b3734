package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"forest/internal/bridge"
	"forest/internal/config"
	"forest/internal/embedding"
	"forest/internal/evolution"
	"forest/internal/hta"
	"forest/internal/kvstore"
	"forest/internal/logging"
	"forest/internal/onboarding"
	"forest/internal/project"
	"forest/internal/server"
	"forest/internal/supervisor"
	"forest/internal/tasks"
	"forest/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tool surface over stdio",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if err := logging.Initialize(cfg.DataDir, cfg.Debug); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("forestd starting (data=%s, vectors=%s, read_only=%v)",
		cfg.DataDir, cfg.VectorProvider, cfg.ReadOnly)

	kv, err := kvstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("kv store: %w", err)
	}
	defer kv.Close()

	idx, err := vector.Open(cfg)
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	defer idx.Close()

	embed, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("embedding engine: %w", err)
	}

	br := bridge.New(cfg.LLMTimeout)
	notifier := &server.Notifier{}
	engine := hta.NewEngine(br, notifier, cfg.LLMTimeout)
	trees := hta.NewStore(kv, idx, embed, engine)
	projects := project.NewManager(kv, idx)
	onb := onboarding.NewManager(kv, project.Creator{Manager: projects}, engine, trees)
	evolver := evolution.NewEvolver(kv, trees, idx, embed, engine, trees)
	selector := tasks.NewSelector(idx, embed)
	presenter := tasks.NewPresenter(selector, evolver, trees, tasks.DefaultWindow)

	sup := supervisor.New()
	if !cfg.ReadOnly {
		if err := sup.Add(supervisor.ExpansionJobName,
			supervisor.NewExpansionJob(projects, trees, cfg.Expansion.MinAvailableTasks),
			cfg.Expansion.Interval); err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
		// Frontier depletion is checked right after any tree change or
		// completion, not just on the tick.
		trees.OnTreeUpdated = func(string, string) { sup.CheckNow(supervisor.ExpansionJobName) }
	}

	srv := server.New(server.Deps{
		Config:     cfg,
		KV:         kv,
		Bridge:     br,
		Projects:   projects,
		Trees:      trees,
		Onboarding: onb,
		Selector:   selector,
		Presenter:  presenter,
		Evolver:    evolver,
		Notifier:   notifier,
		OnCompletion: func(string) {
			sup.CheckNow(supervisor.ExpansionJobName)
		},
	})

	sup.Start()
	defer sup.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The stdio loop ends when the client closes the stream; a signal
	// ends the process without waiting for that.
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logging.Boot("forestd shutting down")
	return nil
}
