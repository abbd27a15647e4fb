package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/foundry/internal/creds"
	"github.com/user/foundry/internal/pipeline"
	"github.com/user/foundry/internal/preview"
	"github.com/user/foundry/internal/promptctx"
	"github.com/user/foundry/internal/scheduler"
	"github.com/user/foundry/internal/server"
	"github.com/user/foundry/internal/state"
	"github.com/user/foundry/internal/types"
	"github.com/user/foundry/pkg/llm/gemini"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the foundry daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "foundry.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	messages := state.NewMessageStore(cfg.DataDir)
	tasks := state.NewTaskStore(cfg.DataDir)
	trees := state.NewWorkspaceStore(cfg.DataDir)
	previewStore := state.NewPreviewStore(cfg.DataDir)
	settings := state.NewSettingsStore(cfg.DataDir)

	// Event feed
	hub := server.NewHub()

	// Preview manager
	previews := preview.NewManager(previewStore, func(st *types.PreviewState) {
		hub.Broadcast(pipeline.Event{Type: "preview", Payload: st})
	})

	// LLM provider. The key may still be absent here; runs are gated on
	// ResolveKey before any stage executes.
	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		if k, err := creds.Resolve(); err == nil {
			apiKey = k
		}
	}
	provider := gemini.NewWithBaseURL(apiKey, cfg.LLM.BaseURL)

	// Prompt context engine
	engine, err := promptctx.New(cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("create prompt engine: %w", err)
	}

	// Pipeline
	runner := pipeline.New(provider, engine, messages, tasks, trees, previews, pipeline.Config{
		Model: cfg.LLM.Model,
		ResolveKey: func() (string, error) {
			if cfg.LLM.APIKey != "" {
				return cfg.LLM.APIKey, nil
			}
			return creds.Resolve()
		},
	})
	runner.SetNotify(func(e pipeline.Event) { hub.Broadcast(e) })

	// Autosave
	sched := scheduler.New(trees, cfg.DataDir, cfg.AutosaveSchedule)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start autosave: %w", err)
	}
	defer sched.Stop()

	// HTTP server
	srv := server.NewServer(runner, messages, tasks, trees, previews, settings, hub, cfg.MessageTail)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("foundry started",
			"addr", cfg.Addr,
			"data_dir", cfg.DataDir,
			"log_level", cfg.LogLevel,
			"llm_model", cfg.LLM.Model,
			"autosave", cfg.AutosaveSchedule,
			"pid_file", pidPath,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
