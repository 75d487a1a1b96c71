// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/browser/shim"
	"github.com/xkilldash9x/isde-autofill/internal/config"
)

// Manager owns the browser connection. It either launches a local Chrome or
// attaches to one the operator already logged in with.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	prelude string

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	remote          bool

	// wg tracks open tabs for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager prepares the allocator. The browser itself starts with the first
// Open call. binding is the name the status panel uses to send commands.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, binding string) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prelude, err := shim.BuildPrelude(shim.Config{
		Binding:    binding,
		HiddenAttr: dom.HiddenAttr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build page prelude: %w", err)
	}

	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		prelude: prelude,
	}

	// The browser lives until Shutdown, not until the caller's context ends,
	// so a signal still lets the host close tabs in order.
	base := Detach(ctx)
	if cfg.RemoteURL != "" {
		m.logger.Info("Attaching to running browser.", zap.String("remote_url", cfg.RemoteURL))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewRemoteAllocator(base, cfg.RemoteURL, chromedp.NoModifyURL)
		m.remote = true
	} else {
		m.logger.Info("Initializing browser allocator...", zap.Bool("headless", cfg.Headless))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(base, DefaultAllocatorOptions(cfg)...)
	}
	return m, nil
}

// DefaultAllocatorOptions assembles the launch options for a local browser.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range launchFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// launchFlags returns the command line flags layered over chromedp's
// defaults. A false value removes a default flag.
func launchFlags(cfg config.BrowserConfig) map[string]any {
	flags := map[string]any{
		"headless":           cfg.Headless,
		"disable-gpu":        cfg.Headless,
		"disable-extensions": true,
		// The operator watches this window; the automation banner only takes space.
		"enable-automation":  false,
	}
	if cfg.Locale != "" {
		flags["lang"] = cfg.Locale
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}

	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	return flags
}

// Open returns the tab the automation drives. With a remote browser an
// existing portal tab is reused so the operator's login carries over.
func (m *Manager) Open(ctx context.Context) (*Tab, error) {
	var ctxOpts []chromedp.ContextOption
	if m.remote {
		if id, ok := m.findPortalTarget(ctx); ok {
			m.logger.Info("Reusing existing portal tab.", zap.String("target_id", string(id)))
			ctxOpts = append(ctxOpts, chromedp.WithTargetID(id))
		}
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocatorCtx, ctxOpts...)
	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(m.prelude).Do(ctx)
			return err
		}),
		chromedp.Evaluate(m.prelude, nil),
	}
	if m.cfg.Locale != "" {
		setup = append(setup, emulation.SetLocaleOverride().WithLocale(m.cfg.Locale))
	}
	if m.cfg.Timezone != "" {
		setup = append(setup, emulation.SetTimezoneOverride(m.cfg.Timezone))
	}

	runCtx, cancel := CombineContext(tabCtx, ctx)
	err := chromedp.Run(runCtx, setup...)
	cancel()
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to prepare browser tab: %w", err)
	}

	m.wg.Add(1)
	tab := newTab(tabCtx, m.logger, m.prelude, func() {
		tabCancel()
		m.wg.Done()
	})

	if !m.remote && m.cfg.StartURL != "" {
		if err := tab.Navigate(ctx, m.cfg.StartURL, m.cfg.NavigationTimeout); err != nil {
			tab.Close()
			return nil, err
		}
	}
	return tab, nil
}

func (m *Manager) findPortalTarget(ctx context.Context) (target.ID, bool) {
	start, err := url.Parse(m.cfg.StartURL)
	if err != nil || start.Host == "" {
		return "", false
	}
	listCtx, cancel := chromedp.NewContext(m.allocatorCtx)
	defer cancel()
	runCtx, cancelRun := CombineContext(listCtx, ctx)
	defer cancelRun()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		m.logger.Warn("Could not list browser tabs.", zap.Error(err))
		return "", false
	}
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		u, err := url.Parse(info.URL)
		if err == nil && sameSite(u.Host, start.Host) {
			return info.TargetID, true
		}
	}
	return "", false
}

// sameSite treats mijn.rvo.nl and the wizard host eloket.rvo.nl as one site.
func sameSite(a, b string) bool {
	return registrable(a) == registrable(b)
}

func registrable(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = strings.TrimSuffix(h, ".")
	}
	if site, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return site
	}
	return host
}

// Shutdown waits for open tabs to close and then releases the browser. An
// attached browser is left running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timed out waiting for tabs to close: %w", ctx.Err())
	case <-time.After(10 * time.Second):
		err = fmt.Errorf("timed out waiting for tabs to close")
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	m.logger.Info("Browser manager shut down.")
	return err
}
