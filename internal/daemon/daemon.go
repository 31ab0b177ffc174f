// Package daemon wires the opsagent components together and runs them
// as a long-lived service: the action registry, the confirmation
// workflow engine, the scheduler, the alert hub, the agent runner, and
// the HTTP/WebSocket surface the dashboard talks to.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wicaksono/opsagent/internal/config"
	"github.com/wicaksono/opsagent/internal/logger"
	"github.com/wicaksono/opsagent/pkg/action"
	"github.com/wicaksono/opsagent/pkg/agent"
	"github.com/wicaksono/opsagent/pkg/alerts"
	"github.com/wicaksono/opsagent/pkg/coreactions"
	"github.com/wicaksono/opsagent/pkg/llm"
	"github.com/wicaksono/opsagent/pkg/tool"
	"github.com/wicaksono/opsagent/pkg/workflow"
)

// Daemon represents the opsagent daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	actions   *action.Registry
	llmClient *llm.Client
	engine    *workflow.Engine
	scheduler *workflow.Scheduler
	runner    *agent.Runner
	hub       *alerts.Hub
	audit     workflow.AuditStore

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a new daemon instance. Collaborators connect the built-in
// actions to the actual home infrastructure; nil collaborators leave
// their actions registered but failing with a configuration error.
func New(cfg *config.Config, log *logger.Logger, collab coreactions.Collaborators) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initializeCoreModules(collab); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	d.httpServer = &http.Server{
		Addr:    cfg.Alerts.Addr,
		Handler: d.routes(),
	}

	return d, nil
}

func (d *Daemon) initializeCoreModules(collab coreactions.Collaborators) error {
	zl := d.logger.Zerolog()

	d.actions = action.NewRegistry(tool.NewRegistry())
	if err := coreactions.Register(d.actions, collab); err != nil {
		return err
	}

	d.llmClient = llm.NewClient(llm.Options{
		BaseURL: d.config.LLM.BaseURL,
		Model:   d.config.LLM.Model,
		Timeout: time.Duration(d.config.LLM.TimeoutSeconds) * time.Second,
		Retry: llm.RetryPolicy{
			MaxAttempts: d.config.LLM.MaxAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Jitter:      true,
		},
		Logger: zl,
	})

	if d.config.Workflow.AuditDBPath != "" {
		store, err := workflow.NewSQLiteAuditStore(d.config.Workflow.AuditDBPath)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		d.audit = store
	} else {
		d.audit = workflow.NewMemoryAuditStore()
	}

	d.hub = alerts.NewHub(d.config.Alerts.DefaultSeverities, zl)

	engine, err := workflow.NewEngine(workflow.EngineOptions{
		Actions:        d.actions,
		Audit:          d.audit,
		Notifier:       d.hub.WorkflowNotifier(),
		Logger:         zl,
		WriteTTL:       time.Duration(d.config.Workflow.WriteTTLMinutes) * time.Minute,
		DestructiveTTL: time.Duration(d.config.Workflow.DestructiveTTLMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create workflow engine: %w", err)
	}
	d.engine = engine

	d.scheduler = workflow.NewScheduler(d.engine, zl)

	runner, err := agent.NewRunner(agent.Config{
		Client:             d.llmClient,
		Actions:            d.actions,
		Engine:             d.engine,
		MaxRounds:          d.config.Agent.MaxRounds,
		MaxConcurrentTools: d.config.Agent.MaxConcurrentTools,
		Logger:             zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent runner: %w", err)
	}
	d.runner = runner

	return nil
}

// Start starts the daemon's background loops and HTTP server
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().
		Str("addr", d.config.Alerts.Addr).
		Str("model", d.config.LLM.Model).
		Int("actions", d.actions.Tools().Count()).
		Msg("Starting opsagent daemon")

	d.wg.Add(1)
	go d.sweepLoop()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if err := d.llmClient.HealthCheck(d.ctx); err != nil {
		d.logger.Warn().Err(err).Msg("LLM backend unreachable, chat will fail until it recovers")
	}

	return nil
}

// sweepLoop periodically expires stale confirmation requests and
// promotes due scheduled actions.
func (d *Daemon) sweepLoop() {
	defer d.wg.Done()

	interval := time.Duration(d.config.Workflow.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			expired := d.engine.ExpireStale(d.ctx)
			if len(expired) > 0 {
				d.logger.Info().Int("count", len(expired)).Msg("Expired stale confirmation requests")
			}
			promoted := d.scheduler.SweepDue(d.ctx)
			if len(promoted) > 0 {
				d.logger.Info().Int("count", len(promoted)).Msg("Promoted due scheduled actions")
			}
		}
	}
}

// Stop gracefully shuts down the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping opsagent daemon")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	d.cancel()
	d.wg.Wait()

	if closer, ok := d.audit.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close audit store")
		}
	}

	d.logger.Info().Dur("uptime", time.Since(d.startTime)).Msg("Daemon stopped")
	return nil
}

// Run starts the daemon and blocks until SIGINT/SIGTERM
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	d.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	return d.Stop()
}

// Uptime returns how long the daemon has been running
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return 0
	}
	return time.Since(d.startTime)
}
