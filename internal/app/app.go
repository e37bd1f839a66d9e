// Package app wires the vault, model registry, dispatcher, persistence and
// controller together. Both binaries build their host on top of it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/chat"
	"github.com/raphaelgruber/vaultwiz/internal/config"
	"github.com/raphaelgruber/vaultwiz/internal/controller"
	"github.com/raphaelgruber/vaultwiz/internal/db"
	"github.com/raphaelgruber/vaultwiz/internal/debugtrace"
	"github.com/raphaelgruber/vaultwiz/internal/llm"
	"github.com/raphaelgruber/vaultwiz/internal/metrics"
	"github.com/raphaelgruber/vaultwiz/internal/notes"
	"github.com/raphaelgruber/vaultwiz/internal/persistence"
	"github.com/raphaelgruber/vaultwiz/internal/registry"
)

// PersistenceTimeout bounds a single background save.
const PersistenceTimeout = 30 * time.Second

// Options tune how the application is built.
type Options struct {
	// Watch starts an fsnotify watcher on the vault.
	Watch bool
	// Factory replaces the provider invokers.
	Factory *llm.Factory
	Logger  *slog.Logger
}

// App holds all dependencies of a running host.
type App struct {
	Config     config.Config
	Vault      *notes.Vault
	Registry   *registry.Registry
	Controller *controller.Controller
	Metrics    *metrics.Collector
	Tokens     *llm.TokenEstimator
	Logger     *slog.Logger

	watcher *notes.Watcher
}

// PersistenceConfig maps the environment configuration to a provider
// configuration.
func PersistenceConfig(cfg config.Config) (persistence.Config, error) {
	kind, err := persistence.ParseKind(cfg.Persistence)
	if err != nil {
		return persistence.Config{}, err
	}
	return persistence.Config{
		Kind:       kind,
		Folder:     cfg.ChatFolder,
		SQLitePath: cfg.SQLiteFile(),
		Surreal: db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		},
	}, nil
}

// New builds the application and loads the configured models.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := metrics.NewCollector()

	vault, err := notes.NewVault(cfg.VaultDir)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	pcfg, err := PersistenceConfig(cfg)
	if err != nil {
		return nil, err
	}
	open := persistence.NewOpener(vault, logger)
	provider, err := open(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s persistence: %w", pcfg.Kind, err)
	}
	gateway := persistence.NewGateway(provider, pcfg, open, mc, logger)

	reg := registry.New(registry.NewJSONSettingsStore(cfg.PluginPath(), logger), logger)

	factory := opts.Factory
	if factory == nil {
		factory = llm.NewDefaultFactory(logger)
	}

	assembler := notes.NewAssembler(vault, notes.NewSelectionStore(), logger)
	ctrl := controller.New(controller.Dependencies{
		Log:        chat.NewLog(""),
		Traces:     debugtrace.NewLog(),
		Assembler:  assembler,
		Source:     vault,
		Registry:   reg,
		Dispatcher: llm.NewDispatcher(factory, reg, logger),
		Gateway:    gateway,
		Queue:      persistence.NewQueue(PersistenceTimeout, logger),
		Metrics:    mc,
		Logger:     logger,
	})

	a := &App{
		Config:     cfg,
		Vault:      vault,
		Registry:   reg,
		Controller: ctrl,
		Metrics:    mc,
		Tokens:     llm.NewTokenEstimator(logger),
		Logger:     logger,
	}

	if err := ctrl.Initialize(ctx); err != nil {
		_ = ctrl.Close()
		return nil, fmt.Errorf("initialize controller: %w", err)
	}
	if cfg.ModelID != "" {
		// An unknown id would clear the selection; keep the default instead.
		if _, ok := reg.Get(cfg.ModelID); ok {
			ctrl.SelectConfiguredModelByID(cfg.ModelID)
		} else {
			logger.Warn("configured model not found", "model_id", cfg.ModelID)
		}
	}

	if opts.Watch {
		w, err := notes.NewWatcher(vault.Root(), notes.DefaultDebounce, ctrl.NotifyFileModified, logger)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			// Context staleness then only follows explicit note switches.
			logger.Warn("note watcher unavailable", "error", err)
		} else {
			a.watcher = w
		}
	}

	logger.Info("vaultwiz ready",
		"vault", vault.Root(),
		"persistence", pcfg.Kind,
		"models", len(reg.Models()))
	return a, nil
}

// OpenNote makes path the active note and tells the controller about it.
func (a *App) OpenNote(path string) error {
	rel, err := a.Vault.Open(path)
	if err != nil {
		return err
	}
	a.Controller.NotifyFileOpened(rel)
	return nil
}

// SelectLines captures lines start..end of the active note as context.
func (a *App) SelectLines(start, end int) error {
	if err := a.Vault.Select(start, end); err != nil {
		return err
	}
	a.Controller.CaptureSelectionFromActiveNote()
	a.Vault.SetEditorFocused(false)
	return nil
}

// Close stops the watcher, writes pending saves and closes persistence.
func (a *App) Close() error {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.Logger.Warn("failed to close note watcher", "error", err)
		}
	}
	return a.Controller.Close()
}
