// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser"
	"github.com/xkilldash9x/isde-autofill/internal/config"
	"github.com/xkilldash9x/isde-autofill/internal/control"
	"github.com/xkilldash9x/isde-autofill/internal/engine"
	"github.com/xkilldash9x/isde-autofill/internal/portal"
)

const shutdownTimeout = 15 * time.Second

type runOptions struct {
	applicant   string
	restart     bool
	remoteURL   string
	startURL    string
	headless    bool
	backend     string
	controlFile string
	noStdin     bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drives the application wizard until the terms page",
		Long: `Opens (or attaches to) a browser tab on the RVO portal and fills the ISDE
wizard stage by stage. The automation stops on the terms page; submitting
stays with the applicant.

Commands are accepted on stdin, from the control file and from the status
panel in the page: start, pause, resume, stop, fill, detail.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.apply(cmd, a.cfg)
			return runAutomation(cmd.Context(), a.cfg, a.logger, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.applicant, "applicant", "a", "", "applicant file (YAML or JSON)")
	f.BoolVar(&opts.restart, "restart", false, "start from the beginning even if a session can be restored")
	f.StringVar(&opts.remoteURL, "remote-url", "", "DevTools websocket of a running browser (overrides browser.remote_url)")
	f.StringVar(&opts.startURL, "start-url", "", "portal landing page (overrides browser.start_url)")
	f.BoolVar(&opts.headless, "headless", false, "run the launched browser headless")
	f.StringVar(&opts.backend, "store", "", "session store backend: browser, memory or postgres")
	f.StringVar(&opts.controlFile, "control-file", "", "append-only file to read commands from")
	f.BoolVar(&opts.noStdin, "no-stdin", false, "do not read commands from stdin")
	return cmd
}

// apply writes the flags the user set over the loaded configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg config.Interface) {
	f := cmd.Flags()
	if f.Changed("remote-url") {
		cfg.SetBrowserRemoteURL(o.remoteURL)
	}
	if f.Changed("start-url") {
		cfg.SetBrowserStartURL(o.startURL)
	}
	if f.Changed("headless") {
		cfg.SetBrowserHeadless(o.headless)
	}
	if f.Changed("store") {
		cfg.SetStoreBackend(o.backend)
	}
	if f.Changed("control-file") {
		cfg.SetControlFile(o.controlFile)
	}
	if f.Changed("no-stdin") {
		cfg.SetControlStdin(!o.noStdin)
	}
}

func runAutomation(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts *runOptions) error {
	var applicant *schemas.AutomationConfig
	if opts.applicant != "" {
		var err error
		if applicant, err = schemas.LoadAutomationConfig(opts.applicant); err != nil {
			return err
		}
		if missing := applicant.Missing(); len(missing) > 0 {
			logger.Warn("Applicant file is incomplete; the automation will pause where data is missing.", zap.Strings("missing", missing))
		}
	}

	logger.Info("Starting automation host.", zap.String("portal_contract", portal.ContractVersion), zap.String("store", cfg.Store().Backend))
	tab, closeTab, err := openTab(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		closeTab(shutdownCtx)
	}()

	kv, closeStore, err := openStore(ctx, cfg, logger, tab)
	if err != nil {
		return err
	}
	defer closeStore()

	c := newComponents(cfg, logger, tab, kv)
	defer c.registry.Close()

	panel := browser.NewStatusPanel(tab, logger)
	sink := engine.MultiSink{engine.NewLogSink(logger), panel}
	eng, err := engine.New(engineConfig(cfg), logger, tab, c.detector, c.executor, c.repo, c.registry, sink)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	dispatcher := control.NewDispatcher(logger, eng)
	dispatcher.SetDefaultConfig(applicant)

	if binding := cfg.Control().Binding; binding != "" {
		if err := tab.Bind(ctx, binding, dispatcher.BindingHandler(gctx, "panel")); err != nil {
			return err
		}
	}
	tab.OnLifecycle(func(ev browser.LifecycleEvent) {
		eng.Trigger(lifecycleTrigger(ev))
		if ev.Kind == browser.LifecycleLoad {
			go panel.Refresh(gctx)
		}
	})

	sources, err := controlSources(cfg, logger)
	if err != nil {
		return err
	}

	g.Go(func() error { return eng.Run(gctx) })
	for _, src := range sources {
		src := src
		g.Go(func() error {
			if err := src.Run(gctx, dispatcher); err != nil {
				return fmt.Errorf("control source %s: %w", src.Name(), err)
			}
			return nil
		})
	}

	if err := startOrRestore(ctx, eng, logger, applicant, opts.restart); err != nil {
		return err
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		last := eng.Status()
		logger.Info("Shutting down.", zap.String("status", last.Line))
		panel.Publish(schemas.Status{
			Line:        "Automation host stopped; run it again to continue",
			Kind:        schemas.StatusStopped,
			CurrentStep: last.CurrentStep,
			UpdatedAt:   time.Now(),
		})
		return nil
	}
	return err
}

// startOrRestore resumes a persisted session unless a restart was requested.
// A fresh start needs an applicant file.
func startOrRestore(ctx context.Context, eng *engine.Engine, logger *zap.Logger, applicant *schemas.AutomationConfig, restart bool) error {
	if !restart {
		restored, err := eng.Restore(ctx)
		if err != nil {
			logger.Warn("Could not restore session, starting over.", zap.Error(err))
		}
		if restored {
			return nil
		}
	}
	if applicant == nil {
		logger.Info("No session to restore and no applicant file given; waiting for a start command.")
		return nil
	}
	return eng.HandleCommand(ctx, schemas.Command{Action: schemas.ActionStartAutomation, Config: applicant})
}

func lifecycleTrigger(ev browser.LifecycleEvent) engine.Trigger {
	src := engine.SourceDOMReady
	if ev.Kind == browser.LifecycleLoad {
		src = engine.SourcePageLoad
	}
	return engine.Trigger{Source: src, Generation: ev.Generation}
}

func controlSources(cfg config.Interface, logger *zap.Logger) ([]control.Source, error) {
	var sources []control.Source
	cc := cfg.Control()
	if cc.Stdin {
		sources = append(sources, control.NewReaderSource("stdin", os.Stdin))
	}
	if cc.File != "" {
		fs, err := control.NewFileSource(logger, cc.File, false)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fs)
	}
	return sources, nil
}
