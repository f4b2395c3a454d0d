// File: internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/resolver"
)

// Executor applies actions to one page. Each session owns one executor, so
// click spacing is per session.
type Executor struct {
	page     dom.Page
	resolver *resolver.Resolver
	cfg      config.ExecutorConfig
	logger   *zap.Logger
	clicks   *rate.Limiter
}

// New binds an executor to a page.
func New(page dom.Page, res *resolver.Resolver, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.ClickSpacing > 0 {
		limit = rate.Every(cfg.ClickSpacing)
	}
	return &Executor{
		page:     page,
		resolver: res,
		cfg:      cfg,
		logger:   logger.Named("executor"),
		clicks:   rate.NewLimiter(limit, 1),
	}
}

// Page returns the page the executor drives.
func (e *Executor) Page() dom.Page { return e.page }

// Execute applies an action and reports the outcome. The element tree is
// re-read for every action, immediately before the mutating call.
func (e *Executor) Execute(ctx context.Context, a Action) Result {
	if a == nil {
		return failed("", HintInvalid, "", "no action given")
	}
	logger := e.logger.With(zap.String("kind", string(a.Kind())), zap.String("target", TargetOf(a)))
	logger.Info("Executing action")

	var res Result
	if wf, ok := a.(RunWorkflow); ok {
		res = e.runWorkflow(ctx, wf)
	} else {
		res = e.step(ctx, a, false)
	}

	if res.OK {
		logger.Debug("Action completed", zap.String("did", res.Did))
	} else {
		logger.Warn("Action did not complete", zap.String("hint", string(res.Hint)), zap.String("did", res.Did))
	}
	return res
}

// WaitStable blocks until the page stops mutating for the configured quiet
// period. dom.ErrUnstable is logged and returned for the caller to ignore.
func (e *Executor) WaitStable(ctx context.Context) error {
	err := dom.WaitStable(ctx, e.page, e.cfg.StabilityQuiet, e.cfg.StabilityMaxWait)
	if errors.Is(err, dom.ErrUnstable) {
		e.logger.Warn("Page did not settle, continuing", zap.Duration("max_wait", e.cfg.StabilityMaxWait))
	}
	return err
}

func (e *Executor) step(ctx context.Context, a Action, inWorkflow bool) Result {
	if e.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ActionTimeout)
		defer cancel()
	}

	switch v := a.(type) {
	case Navigate:
		return e.navigate(ctx, v)
	case SwitchTab:
		return e.switchTab(ctx, v)
	case Click:
		return e.click(ctx, v, inWorkflow)
	case FillInput:
		return e.fill(ctx, KindFillInput, v.Target, v.Value)
	case ClearInput:
		return e.fill(ctx, KindClearInput, v.Target, "")
	case SelectOption:
		return e.selectOption(ctx, v)
	case SelectListItem:
		return e.selectListItem(ctx, v)
	case RunWorkflow:
		return failed(KindRunWorkflow, HintInvalid, v.Name, "workflows cannot be nested")
	}
	return failed(a.Kind(), HintInvalid, "", "unsupported action %q", a.Kind())
}

func (e *Executor) navigate(ctx context.Context, a Navigate) Result {
	route := strings.TrimSpace(a.Route)
	if route == "" {
		return failed(KindNavigate, HintInvalid, "", "no route given")
	}
	if err := e.page.Navigate(ctx, route); err != nil {
		return failed(KindNavigate, HintFailed, route, "could not open %s: %v", route, err)
	}
	return done(KindNavigate, route, "navigated to %s", route)
}

func (e *Executor) switchTab(ctx context.Context, a SwitchTab) Result {
	target := strings.TrimSpace(a.Target)
	if target == "" {
		return failed(KindSwitchTab, HintInvalid, "", "no tab named")
	}
	doc, err := dom.Load(ctx, e.page)
	if err != nil {
		return fromError(KindSwitchTab, target, err)
	}
	d, err := e.resolver.Resolve(ctx, doc, target, resolver.KindTab)
	switch {
	case err != nil:
		return fromError(KindSwitchTab, target, err)
	case d == nil:
		return failed(KindSwitchTab, HintNotFound, target, "could not find a %s tab", target)
	case d.IsDisabled:
		return failed(KindSwitchTab, HintDisabled, d.Identifier(), "the %s tab is disabled", d.Label)
	case d.IsActive:
		return done(KindSwitchTab, d.Identifier(), "already on the %s tab", d.Label)
	}
	if err := e.page.Click(ctx, d.XPath); err != nil {
		return fromError(KindSwitchTab, d.Label, err)
	}
	return done(KindSwitchTab, d.Identifier(), "switched to the %s tab", d.Label)
}

var errDuplicateClick = errors.New("click absorbed by spacing")

// clickSlot enforces click spacing. A top-level click inside the spacing is a
// duplicate tool call and is absorbed; a workflow step waits its turn.
func (e *Executor) clickSlot(ctx context.Context, inWorkflow bool) error {
	if inWorkflow {
		return e.clicks.Wait(ctx)
	}
	if !e.clicks.Allow() {
		return errDuplicateClick
	}
	return nil
}

func (e *Executor) click(ctx context.Context, a Click, inWorkflow bool) Result {
	target := strings.TrimSpace(a.Target)
	if target == "" {
		return failed(KindClick, HintInvalid, "", "nothing to click")
	}
	doc, err := dom.Load(ctx, e.page)
	if err != nil {
		return fromError(KindClick, target, err)
	}
	d, err := e.resolver.Resolve(ctx, doc, target, resolver.KindAny)
	switch {
	case err != nil:
		return fromError(KindClick, target, err)
	case d == nil:
		return failed(KindClick, HintNotFound, target, "could not find %s", target)
	case d.IsDisabled:
		return failed(KindClick, HintDisabled, d.Identifier(), "%s is disabled", d.Label)
	}

	if err := e.clickSlot(ctx, inWorkflow); err != nil {
		if errors.Is(err, errDuplicateClick) {
			return failed(KindClick, HintDuplicate, d.Identifier(), "ignored a repeated click on %s", d.Label)
		}
		return fromError(KindClick, d.Label, err)
	}
	if err := e.page.Click(ctx, d.XPath); err != nil {
		return fromError(KindClick, d.Label, err)
	}
	return done(KindClick, d.Identifier(), "clicked %s", d.Label)
}

func (e *Executor) fill(ctx context.Context, kind Kind, target, value string) Result {
	target = strings.TrimSpace(target)
	doc, err := dom.Load(ctx, e.page)
	if err != nil {
		return fromError(kind, target, err)
	}
	d, res := e.findInput(ctx, doc, kind, target)
	if d == nil {
		return res
	}
	if d.IsDisabled {
		return failed(kind, HintDisabled, d.Identifier(), "%s is not editable", d.Label)
	}
	if err := e.page.SetValue(ctx, d.XPath, value); err != nil {
		return fromError(kind, d.Label, err)
	}
	if kind == KindClearInput {
		return done(kind, d.Identifier(), "cleared %s", d.Label)
	}
	return done(kind, d.Identifier(), "filled %s", d.Label)
}

// findInput resolves the input a fill addresses: the named one, else the
// focused one, else the first empty visible one, else the first visible one.
func (e *Executor) findInput(ctx context.Context, doc *dom.Document, kind Kind, target string) (*resolver.ElementDescriptor, Result) {
	if target != "" {
		d, err := e.resolver.Resolve(ctx, doc, target, resolver.KindInput)
		if err != nil {
			return nil, fromError(kind, target, err)
		}
		if d == nil {
			return nil, failed(kind, HintNotFound, target, "could not find a %s field", target)
		}
		return d, Result{}
	}

	if f := doc.Focused(); f != nil && dom.IsTextInput(f) && !dom.IsHidden(f) {
		if d := resolver.Describe(doc, f, resolver.KindInput); !d.IsDisabled {
			return d, Result{}
		}
	}
	var enabled []*resolver.ElementDescriptor
	for _, d := range resolver.Discover(doc, resolver.KindInput) {
		if !d.IsDisabled {
			enabled = append(enabled, d)
		}
	}
	for _, d := range enabled {
		if strings.TrimSpace(d.Value) == "" {
			return d, Result{}
		}
	}
	if len(enabled) > 0 {
		return enabled[0], Result{}
	}
	return nil, failed(kind, HintNotFound, "", "there is no field to type into")
}

func (e *Executor) selectOption(ctx context.Context, a SelectOption) Result {
	const kind = KindSelectOption
	target := strings.TrimSpace(a.Target)
	doc, err := dom.Load(ctx, e.page)
	if err != nil {
		return fromError(kind, target, err)
	}

	var dd *resolver.ElementDescriptor
	if target != "" {
		if dd, err = e.resolver.Resolve(ctx, doc, target, resolver.KindDropdown); err != nil {
			return fromError(kind, target, err)
		}
	} else {
		dd = firstEnabled(resolver.Discover(doc, resolver.KindDropdown))
	}
	switch {
	case dd == nil && target == "":
		return failed(kind, HintNotFound, "", "there is no dropdown here")
	case dd == nil:
		return failed(kind, HintNotFound, target, "could not find a %s dropdown", target)
	case dd.IsDisabled:
		return failed(kind, HintDisabled, dd.Identifier(), "%s is disabled", dd.Label)
	}

	nodes := resolver.Options(doc, dd.Node)
	if len(nodes) == 0 {
		return failed(kind, HintNotFound, dd.Identifier(), "%s has no options", dd.Label)
	}
	choices := resolver.Choices(nodes)
	i, ok := e.pickOption(choices, a)
	if !ok {
		wanted := a.Value
		if wanted == "" {
			wanted = a.Option
		}
		return failed(kind, HintNotFound, dd.Identifier(), "%s has no option %s", dd.Label, wanted)
	}
	choice := choices[i]
	if choice.Disabled {
		return failed(kind, HintDisabled, dd.Identifier(), "%s is not available in %s", choice.Label, dd.Label)
	}

	if dom.Tag(dd.Node) == "select" {
		err = e.page.SelectValue(ctx, dd.XPath, choice.Value)
	} else {
		err = e.clickOption(ctx, dd, nodes[i])
	}
	if err != nil {
		return fromError(kind, dd.Label, err)
	}
	return done(kind, dd.Identifier(), "selected %s in %s", choice.Label, dd.Label)
}

// pickOption tries the explicit value, then the index, then the spoken option.
func (e *Executor) pickOption(choices []resolver.Choice, a SelectOption) (int, bool) {
	if v := strings.TrimSpace(a.Value); v != "" {
		for i, c := range choices {
			if strings.EqualFold(strings.TrimSpace(c.Value), v) {
				return i, true
			}
		}
		if i, _, ok := e.resolver.ResolveChoice(choices, v); ok {
			return i, true
		}
	}
	if a.Index != nil {
		if i, ok := resolver.IndexFor(*a.Index, len(choices)); ok {
			return i, true
		}
	}
	if a.Option != "" {
		if i, _, ok := e.resolver.ResolveChoice(choices, a.Option); ok {
			return i, true
		}
	}
	return 0, false
}

// clickOption opens a closed ARIA listbox through its combobox, then clicks
// the option. Handles stay valid because opening only changes attributes.
func (e *Executor) clickOption(ctx context.Context, dd *resolver.ElementDescriptor, opt *html.Node) error {
	optPath := dom.XPath(opt)
	if dom.IsHidden(opt) && dom.Attr(dd.Node, "role") != "listbox" {
		if err := e.page.Click(ctx, dd.XPath); err != nil {
			return err
		}
	}
	return e.page.Click(ctx, optPath)
}

func (e *Executor) selectListItem(ctx context.Context, a SelectListItem) Result {
	const kind = KindSelectListItem
	target := strings.TrimSpace(a.Target)
	doc, err := dom.Load(ctx, e.page)
	if err != nil {
		return fromError(kind, target, err)
	}

	var list *resolver.ElementDescriptor
	if target != "" {
		if list, err = e.resolver.Resolve(ctx, doc, target, resolver.KindList); err != nil {
			return fromError(kind, target, err)
		}
	} else if lists := resolver.Discover(doc, resolver.KindList); len(lists) > 0 {
		list = lists[0]
	}
	if list == nil {
		return failed(kind, HintNotFound, target, "could not find a list %s", target)
	}
	name := list.Label
	if name == "" {
		name = "the list"
	}

	items := resolver.Items(doc, list.Node)
	if len(items) == 0 {
		return failed(kind, HintNotFound, list.Identifier(), "%s is empty", name)
	}
	i, ok := e.pickItem(items, a)
	if !ok {
		wanted := a.Item
		if wanted == "" {
			wanted = a.ItemID
		}
		return failed(kind, HintNotFound, list.Identifier(), "could not find %s in %s", wanted, name)
	}
	item := resolver.Describe(doc, items[i], resolver.KindListItem)
	if item.IsDisabled {
		return failed(kind, HintDisabled, item.Identifier(), "%s is disabled", item.Label)
	}

	handle := item.XPath
	if inner := doc.QueryWithin(items[i], ".//a[@href] | .//button | .//*[@role='button' or @role='link']"); len(inner) > 0 && !dom.IsHidden(inner[0]) {
		if dom.IsDisabled(inner[0]) {
			return failed(kind, HintDisabled, item.Identifier(), "%s is disabled", item.Label)
		}
		handle = dom.XPath(inner[0])
	}
	if err := e.page.Click(ctx, handle); err != nil {
		return fromError(kind, item.Label, err)
	}
	return done(kind, item.Identifier(), "selected %s", item.Label)
}

func (e *Executor) pickItem(items []*html.Node, a SelectListItem) (int, bool) {
	if id := strings.TrimSpace(a.ItemID); id != "" {
		for i, n := range items {
			for _, attr := range []string{dom.VoiceIDAttr, "id", "data-id", "data-value"} {
				if v := dom.Attr(n, attr); v != "" && strings.EqualFold(v, id) {
					return i, true
				}
			}
		}
	}
	if a.Index != nil {
		if i, ok := resolver.IndexFor(*a.Index, len(items)); ok {
			return i, true
		}
	}
	if a.Item != "" {
		if i, _, ok := e.resolver.ResolveChoice(resolver.Choices(items), a.Item); ok {
			return i, true
		}
	}
	return 0, false
}

func firstEnabled(ds []*resolver.ElementDescriptor) *resolver.ElementDescriptor {
	for _, d := range ds {
		if !d.IsDisabled {
			return d
		}
	}
	if len(ds) > 0 {
		return ds[0]
	}
	return nil
}
