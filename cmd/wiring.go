// cmd/wiring.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/internal/browser"
	"github.com/xkilldash9x/isde-autofill/internal/config"
	"github.com/xkilldash9x/isde-autofill/internal/detector"
	"github.com/xkilldash9x/isde-autofill/internal/engine"
	"github.com/xkilldash9x/isde-autofill/internal/executor"
	"github.com/xkilldash9x/isde-autofill/internal/humanoid"
	"github.com/xkilldash9x/isde-autofill/internal/session"
	"github.com/xkilldash9x/isde-autofill/internal/store"
	"github.com/xkilldash9x/isde-autofill/internal/timers"
)

func engineConfig(cfg config.Interface) engine.Config {
	e := cfg.Engine()
	return engine.Config{
		MaxRepeats:         e.MaxRepeats,
		SettleDelay:        e.SettleDelay,
		RetryDelay:         e.RetryDelay,
		NavigationFallback: e.NavigationFallback,
		TriggerBuffer:      e.TriggerBuffer,
	}
}

func executorConfig(cfg config.Interface) executor.Config {
	e := cfg.Engine()
	return executor.Config{
		ElementTimeout:     e.ElementTimeout,
		PollInterval:       e.PollInterval,
		SettleDelay:        e.SettleDelay,
		NavigationDebounce: e.NavigationDebounce,
	}
}

func humanoidConfig(cfg config.Interface) humanoid.Config {
	h := cfg.Humanoid()
	return humanoid.Config{
		Enabled:             h.Enabled,
		PauseMeanMs:         h.PauseMeanMs,
		PauseStdDevMs:       h.PauseStdDevMs,
		MinInterval:         h.MinInterval,
		FatigueIncreaseRate: h.FatigueIncreaseRate,
		FatigueRecoveryRate: h.FatigueRecoveryRate,
		DriftAmplitude:      h.DriftAmplitude,
	}
}

// openStore selects the session store backend. The returned cleanup is
// never nil.
func openStore(ctx context.Context, cfg config.Interface, logger *zap.Logger, tab *browser.Tab) (store.KV, func(), error) {
	sc := cfg.Store()
	noop := func() {}
	switch sc.Backend {
	case config.StoreMemory:
		return store.NewMemory(), noop, nil
	case config.StoreBrowser, "":
		if tab == nil {
			return nil, noop, fmt.Errorf("the browser store needs an open tab")
		}
		return browser.NewSessionStorage(tab), noop, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, sc.Postgres.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create connection pool: %w", err)
		}
		pg, err := store.NewPostgres(ctx, pool, logger, sc.Postgres.Table, sc.Postgres.Namespace)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return pg, pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

// components is the object graph shared by run and fill.
type components struct {
	registry *timers.Registry
	detector *detector.Detector
	repo     *session.Repository
	executor *executor.Executor
}

func newComponents(cfg config.Interface, logger *zap.Logger, page executor.Page, kv store.KV) *components {
	registry := timers.NewRegistry(logger)
	det := detector.New(logger)
	repo := session.NewRepository(kv, cfg.Store().KeyPrefix)
	pacer := humanoid.New(humanoidConfig(cfg), registry, logger)
	exec := executor.New(executorConfig(cfg), logger, page, repo, det, pacer, registry)
	return &components{
		registry: registry,
		detector: det,
		repo:     repo,
		executor: exec,
	}
}

// openTab launches or attaches to the browser. Closing the returned function
// releases both the tab and the manager.
func openTab(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*browser.Tab, func(context.Context), error) {
	manager, err := browser.NewManager(ctx, logger, cfg.Browser(), cfg.Control().Binding)
	if err != nil {
		return nil, nil, err
	}
	tab, err := manager.Open(ctx)
	if err != nil {
		_ = manager.Shutdown(ctx)
		return nil, nil, err
	}
	return tab, func(ctx context.Context) {
		tab.Close()
		if err := manager.Shutdown(ctx); err != nil {
			logger.Warn("Browser shutdown incomplete.", zap.Error(err))
		}
	}, nil
}
