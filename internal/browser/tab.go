// internal/browser/tab.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/browser/shim"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page-side result codes.
const (
	resultOK          = "ok"
	resultNoMatch     = "nomatch"
	resultNoOption    = "nooption"
	resultUnavailable = "unavailable"
)

// ErrNoOption is returned by Select when the dropdown has no matching option.
var ErrNoOption = errors.New("no matching option")

// Tab is the live page the automation drives. It implements the primitive
// actions the stage handlers use and the snapshot the engine classifies.
type Tab struct {
	ctx     context.Context
	logger  *zap.Logger
	prelude string
	release func()

	closeOnce  sync.Once
	generation atomic.Uint64

	mu        sync.Mutex
	lifecycle []func(LifecycleEvent)
	bindings  map[string]func(string)
}

func newTab(ctx context.Context, logger *zap.Logger, prelude string, release func()) *Tab {
	t := &Tab{
		ctx:     ctx,
		logger:  logger.Named("tab"),
		prelude: prelude,
		release: release,
	}
	// The document loaded during setup is generation one.
	t.generation.Store(1)
	chromedp.ListenTarget(ctx, t.handleEvent)
	return t
}

// Context returns the chromedp context of the tab.
func (t *Tab) Context() context.Context { return t.ctx }

// Close detaches from the tab. Closing twice is harmless.
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}

// Navigate loads url and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	t.logger.Info("Navigating.", zap.String("url", url))
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// evaluate calls a prelude function. A document that lost the prelude, such
// as an error page, gets it re-installed once.
func (t *Tab) evaluate(ctx context.Context, fn string, res any, args ...any) error {
	expr, err := callExpression(fn, args...)
	if err != nil {
		return err
	}
	raw, err := t.evaluateRaw(ctx, expr)
	if err != nil {
		return fmt.Errorf("page call %s failed: %w", fn, err)
	}
	if string(raw) == `"`+resultUnavailable+`"` {
		t.logger.Debug("Prelude missing, re-installing.", zap.String("call", fn))
		if err := t.run(ctx, chromedp.Evaluate(t.prelude, nil)); err != nil {
			return fmt.Errorf("failed to re-install prelude: %w", err)
		}
		if raw, err = t.evaluateRaw(ctx, expr); err != nil {
			return fmt.Errorf("page call %s failed: %w", fn, err)
		}
	}
	if res == nil {
		return nil
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("page call %s returned malformed result: %w", fn, err)
	}
	return nil
}

func (t *Tab) evaluateRaw(ctx context.Context, expr string) ([]byte, error) {
	var obj *cdpruntime.RemoteObject
	if err := t.run(ctx, chromedp.Evaluate(expr, &obj, returnByValue)); err != nil {
		return nil, err
	}
	if obj == nil || len(obj.Value) == 0 {
		return []byte("null"), nil
	}
	return []byte(obj.Value), nil
}

func returnByValue(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithReturnByValue(true)
}

// callExpression renders a guarded call of a prelude function with JSON
// encoded arguments.
func callExpression(fn string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("failed to encode argument %d of %s: %w", i, fn, err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%[1]s ? %[1]s.%[2]s(%[3]s) : %[4]q)",
		shim.Namespace, fn, strings.Join(encoded, ", "), resultUnavailable), nil
}

func (t *Tab) action(ctx context.Context, fn string, target dom.Target, args ...any) error {
	var result string
	if err := t.evaluate(ctx, fn, &result, append([]any{target}, args...)...); err != nil {
		return err
	}
	return resultError(result, target)
}

func resultError(result string, target dom.Target) error {
	switch result {
	case resultOK:
		return nil
	case resultNoMatch:
		return fmt.Errorf("%w: %s", dom.ErrNoMatch, target)
	case resultNoOption:
		return fmt.Errorf("%w in %s", ErrNoOption, target)
	default:
		return fmt.Errorf("unexpected page result %q for %s", result, target)
	}
}

type snapshotResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Snapshot serialises the live DOM with visibility and form state baked in.
func (t *Tab) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	var res snapshotResult
	if err := t.evaluate(ctx, "snapshot", &res); err != nil {
		return nil, err
	}
	snap, err := dom.Parse(strings.NewReader(res.HTML), res.URL)
	if err != nil {
		return nil, err
	}
	if res.Title != "" {
		snap.Title = res.Title
	}
	return snap, nil
}

func (t *Tab) Click(ctx context.Context, target dom.Target) error {
	return t.action(ctx, "click", target)
}

func (t *Tab) Fill(ctx context.Context, target dom.Target, value string) error {
	return t.action(ctx, "fill", target, value)
}

func (t *Tab) Select(ctx context.Context, target dom.Target, label string) error {
	return t.action(ctx, "select", target, label)
}

func (t *Tab) SetChecked(ctx context.Context, target dom.Target, checked bool) error {
	return t.action(ctx, "setChecked", target, checked)
}

type filePayload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// InjectFile re-encodes the attachment so data URL prefixes never reach atob.
func (t *Tab) InjectFile(ctx context.Context, target dom.Target, f *schemas.FileAttachment) error {
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	payload := filePayload{
		Name: f.Name,
		Type: f.Type,
		Data: base64.StdEncoding.EncodeToString(data),
	}
	return t.action(ctx, "injectFile", target, payload)
}

func (t *Tab) Dispatch(ctx context.Context, target dom.Target, event string) error {
	return t.action(ctx, "dispatch", target, event)
}
