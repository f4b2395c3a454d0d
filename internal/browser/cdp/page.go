// File: internal/browser/cdp/page.go
package cdp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

// Page drives one Chrome tab showing the host application. It implements dom.Page.
type Page struct {
	ctx         context.Context // tab context; carries the CDP target
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	base        *url.URL
	navTimeout  time.Duration
	logger      *zap.Logger

	mu    sync.RWMutex
	route string
}

var _ dom.Page = (*Page)(nil)

// New launches a browser and opens a tab. The page lives until Close or until
// parent is canceled.
func New(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Page, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	p := &Page{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		base:        base,
		navTimeout:  cfg.NavigationTimeout,
		logger:      logger.Named("page").With(zap.String("mode", "remote")),
	}
	chromedp.ListenTarget(ctx, p.onTargetEvent)

	install := chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(observerScript).Do(ctx)
		return err
	})
	if err := chromedp.Run(ctx, install); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return p, nil
}

// Close shuts the tab and the browser process.
func (p *Page) Close() {
	p.cancel()
	p.allocCancel()
}

func (p *Page) onTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			p.setRoute(routeFromURL(e.Frame.URL))
		}
	case *page.EventNavigatedWithinDocument:
		p.setRoute(routeFromURL(e.URL))
	}
}

func (p *Page) setRoute(route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.route = route
}

// CurrentRoute returns the path and query of the top frame.
func (p *Page) CurrentRoute() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.route
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads route relative to the base URL and waits for the body.
func (p *Page) Navigate(ctx context.Context, route string) error {
	ref, err := url.Parse(strings.TrimSpace(route))
	if err != nil || route == "" {
		return fmt.Errorf("navigate: invalid route %q", route)
	}
	target := p.base.ResolveReference(ref)
	p.logger.Info("Navigating", zap.String("url", target.String()))

	if p.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.navTimeout)
		defer cancel()
	}
	if err := p.run(ctx, chromedp.Navigate(target.String()), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", target, err)
	}
	p.setRoute(routeFromURL(target.String()))
	return nil
}

// Snapshot returns the outer HTML of the document with the focused element marked.
func (p *Page) Snapshot(ctx context.Context) (io.Reader, error) {
	var res struct {
		HTML  string `json:"html"`
		Route string `json:"route"`
	}
	if err := p.run(ctx, chromedp.Evaluate(snapshotScript, &res)); err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	if res.Route != "" {
		p.setRoute(res.Route)
	}
	return strings.NewReader(res.HTML), nil
}

// Mutations reads the in-page mutation counter.
func (p *Page) Mutations(ctx context.Context) (uint64, error) {
	var n float64
	if err := p.run(ctx, chromedp.Evaluate(mutationsScript, &n)); err != nil {
		return 0, fmt.Errorf("failed to read mutation counter: %w", err)
	}
	return uint64(n), nil
}

// Click checks the handle in-page, then dispatches a real pointer click on it.
func (p *Page) Click(ctx context.Context, xpath string) error {
	if err := p.eval(ctx, xpath, probeScript(xpath)); err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.Click(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("failed to click %s: %w", xpath, err)
	}
	return nil
}

// SetValue replaces the value of a text control.
func (p *Page) SetValue(ctx context.Context, xpath, value string) error {
	return p.eval(ctx, xpath, setValueScript(xpath, value))
}

// SelectValue picks an option on a native select.
func (p *Page) SelectValue(ctx context.Context, xpath, value string) error {
	return p.eval(ctx, xpath, selectValueScript(xpath, value))
}

func (p *Page) eval(ctx context.Context, xpath, script string) error {
	var code string
	if err := p.run(ctx, chromedp.Evaluate(script, &code)); err != nil {
		return fmt.Errorf("script failed for %s: %w", xpath, err)
	}
	return resultError(code, xpath)
}

// resultError maps an in-page result code to the dom error taxonomy.
func resultError(code, xpath string) error {
	switch code {
	case resultOK:
		return nil
	case resultMissing:
		return fmt.Errorf("%w: %s", dom.ErrElementNotFound, xpath)
	case resultDisabled:
		return fmt.Errorf("%w: %s", dom.ErrDisabled, xpath)
	case resultNotEditable:
		return fmt.Errorf("%w: %s", dom.ErrNotEditable, xpath)
	case resultNoOption:
		return fmt.Errorf("%w: %s", dom.ErrOptionNotFound, xpath)
	default:
		return fmt.Errorf("unexpected script result %q for %s", code, xpath)
	}
}

// routeFromURL reduces a URL to path and query.
func routeFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	route := u.EscapedPath()
	if route == "" {
		route = "/"
	}
	if u.RawQuery != "" {
		route += "?" + u.RawQuery
	}
	return route
}
