// internal/browser/browser_test.go
package browser

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/config"
)

func offlineTab() *Tab {
	t := &Tab{logger: zap.NewNop()}
	t.generation.Store(1)
	return t
}

// -- Test Cases --

func TestLaunchFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		flags := launchFlags(config.BrowserConfig{Headless: true})
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, false, flags["enable-automation"])
		assert.NotContains(t, flags, "lang")
	})

	t.Run("custom arguments", func(t *testing.T) {
		flags := launchFlags(config.BrowserConfig{
			Args: []string{"--window-size=1280,900", "--start-maximized", "--"},
		})
		assert.Equal(t, "1280,900", flags["window-size"])
		assert.Equal(t, true, flags["start-maximized"])
		assert.NotContains(t, flags, "")
	})

	t.Run("locale", func(t *testing.T) {
		flags := launchFlags(config.BrowserConfig{Locale: "nl-NL"})
		assert.Equal(t, "nl-NL", flags["lang"])
	})

	t.Run("options include the defaults", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium"})
		assert.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions))
	})
}

func TestCallExpression(t *testing.T) {
	expr, err := callExpression("fill", dom.CSS("initials", "#voorletters"), `J. "Jan"`)
	require.NoError(t, err)
	assert.Equal(t,
		`(window.__isdeAutofill ? window.__isdeAutofill.fill({"name":"initials","css":"#voorletters"}, "J. \"Jan\"") : "unavailable")`,
		expr)

	expr, err = callExpression("snapshot")
	require.NoError(t, err)
	assert.Equal(t, `(window.__isdeAutofill ? window.__isdeAutofill.snapshot() : "unavailable")`, expr)

	_, err = callExpression("fill", make(chan int))
	assert.Error(t, err)
}

func TestResultError(t *testing.T) {
	target := dom.CSS("next", "button.volgende")

	assert.NoError(t, resultError(resultOK, target))

	err := resultError(resultNoMatch, target)
	assert.True(t, errors.Is(err, dom.ErrNoMatch))
	assert.Contains(t, err.Error(), "next (button.volgende)")

	assert.ErrorIs(t, resultError(resultNoOption, target), ErrNoOption)

	err = resultError("boom", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"boom"`)
}

func TestLifecycleGenerations(t *testing.T) {
	tab := offlineTab()

	var mu sync.Mutex
	var got []LifecycleEvent
	tab.OnLifecycle(func(ev LifecycleEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	tab.handleEvent(&page.EventDomContentEventFired{})
	tab.handleEvent(&page.EventLoadEventFired{})
	// Subframes do not start a new document.
	tab.handleEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "child", ParentID: "main"}})
	tab.handleEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "main", URL: "https://eloket.rvo.nl/"}})
	tab.handleEvent(&page.EventLoadEventFired{})

	assert.Equal(t, uint64(2), tab.Generation())
	assert.Equal(t, []LifecycleEvent{
		{Kind: LifecycleDOMReady, Generation: 1},
		{Kind: LifecycleLoad, Generation: 1},
		{Kind: LifecycleLoad, Generation: 2},
	}, got)
	assert.Equal(t, "load", LifecycleLoad.String())
	assert.Equal(t, "dom_ready", LifecycleDOMReady.String())
}

func TestBindingDispatch(t *testing.T) {
	tab := offlineTab()
	received := make(chan string, 1)
	tab.bindings = map[string]func(string){
		"isdeAutofillControl": func(payload string) { received <- payload },
		"panics":              func(string) { panic("boom") },
	}

	tab.handleEvent(&cdpruntime.EventBindingCalled{Name: "unknown", Payload: "x"})
	tab.handleEvent(&cdpruntime.EventBindingCalled{Name: "panics", Payload: "x"})
	tab.handleEvent(&cdpruntime.EventBindingCalled{Name: "isdeAutofillControl", Payload: `{"action":"pause"}`})

	select {
	case payload := <-received:
		assert.Equal(t, `{"action":"pause"}`, payload)
	case <-time.After(time.Second):
		t.Fatal("binding handler was not called")
	}
}

func TestSameSite(t *testing.T) {
	assert.True(t, sameSite("mijn.rvo.nl", "eloket.rvo.nl"))
	assert.True(t, sameSite("mijn.rvo.nl:443", "MIJN.RVO.NL."))
	assert.False(t, sameSite("mijn.rvo.nl", "example.com"))
	assert.True(t, sameSite("localhost", "localhost:9222"))
}

func TestCloseIsIdempotent(t *testing.T) {
	calls := 0
	tab := offlineTab()
	tab.release = func() { calls++ }
	tab.Close()
	tab.Close()
	assert.Equal(t, 1, calls)
}
