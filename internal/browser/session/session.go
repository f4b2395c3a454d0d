// File: internal/browser/session/session.go
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

// ErrClosed is returned by every operation on a closed session.
var ErrClosed = errors.New("session: closed")

// EventType names a synthesized DOM event.
type EventType string

const (
	EventPointerDown EventType = "pointerdown"
	EventMouseDown   EventType = "mousedown"
	EventPointerUp   EventType = "pointerup"
	EventMouseUp     EventType = "mouseup"
	EventClick       EventType = "click"
	EventFocus       EventType = "focus"
	EventBlur        EventType = "blur"
	EventInput       EventType = "input"
	EventChange      EventType = "change"
	EventSubmit      EventType = "submit"
	EventNavigate    EventType = "navigate"
)

// Event is a notification raised by a mutation, in the order a browser would raise it.
type Event struct {
	Type  EventType
	XPath string
	Tag   string
	Value string
	Route string
}

// Listener observes synthesized events. Listeners run synchronously after the
// mutation has been applied and must not call back into the session.
type Listener func(Event)

// Session is an in-process page: a stateful element tree that mutations edit
// directly, loaded per route through a Loader. It implements dom.Page.
type Session struct {
	id     string
	logger *zap.Logger
	loader Loader

	mu        sync.RWMutex
	doc       *html.Node
	route     string
	focused   *html.Node
	listeners []Listener
	closed    bool

	mutations atomic.Uint64
}

var _ dom.Page = (*Session)(nil)

// New creates an empty session. Call Navigate or Mount to load a view.
func New(loader Loader, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		loader: loader,
		logger: logger.Named("page").With(zap.String("page_id", id), zap.String("mode", "session")),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// OnEvent registers a listener for synthesized events.
func (s *Session) OnEvent(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Close releases the tree. Further operations return ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	s.focused = nil
}

// Navigate loads and mounts the view for route. Relative routes resolve
// against the current one.
func (s *Session) Navigate(ctx context.Context, route string) error {
	if strings.TrimSpace(route) == "" {
		return fmt.Errorf("navigate: empty route")
	}
	target, err := s.resolveRoute(route)
	if err != nil {
		return err
	}
	s.logger.Info("Navigating", zap.String("route", target))

	r, err := s.loader.Load(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", target, err)
	}
	return s.Mount(target, r)
}

// Mount replaces the current view with the given markup.
func (s *Session) Mount(route string, markup io.Reader) error {
	doc, err := html.Parse(markup)
	if err != nil {
		return fmt.Errorf("failed to parse view for %s: %w", route, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.doc = doc
	s.route = route
	s.focused = nil
	for _, stale := range htmlquery.Find(doc, "//*[@"+dom.FocusedAttr+"]") {
		removeAttr(stale, dom.FocusedAttr)
	}
	// A view can ship with autofocus; honour the first one.
	if af := htmlquery.FindOne(doc, "//*[@autofocus]"); af != nil {
		s.focused = af
		setAttr(af, dom.FocusedAttr, "true")
	}
	s.mutations.Add(1)
	listeners := s.listeners
	s.mu.Unlock()

	emit(listeners, []Event{{Type: EventNavigate, Route: route}})
	return nil
}

// CurrentRoute returns the route of the mounted view.
func (s *Session) CurrentRoute() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.route
}

// Snapshot serializes the current tree.
func (s *Session) Snapshot(ctx context.Context) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil {
		return strings.NewReader("<html><head></head><body></body></html>"), nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, s.doc); err != nil {
		return nil, fmt.Errorf("failed to render snapshot: %w", err)
	}
	return &buf, nil
}

// Mutations returns the tree change counter.
func (s *Session) Mutations(context.Context) (uint64, error) {
	return s.mutations.Load(), nil
}

// Click raises the pointer and mouse sequence on the element, moves focus to
// it when focusable, and applies the view behaviour the click implies.
func (s *Session) Click(ctx context.Context, xpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	el, err := s.find(xpath)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if dom.IsDisabled(el) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", dom.ErrDisabled, xpath)
	}

	ev := func(t EventType) Event { return Event{Type: t, XPath: xpath, Tag: dom.Tag(el), Route: s.route} }
	events := []Event{ev(EventPointerDown), ev(EventMouseDown)}
	if isFocusable(el) {
		events = append(events, s.focus(el)...)
	}
	events = append(events, ev(EventPointerUp), ev(EventMouseUp), ev(EventClick))

	outcome := applyClick(el)
	events = append(events, outcome.events...)
	s.mutations.Add(1)
	listeners := s.listeners
	s.mu.Unlock()

	emit(listeners, events)
	s.logger.Debug("Clicked element", zap.String("xpath", xpath), zap.String("tag", dom.Tag(el)))

	if outcome.navigate != "" {
		return s.Navigate(ctx, outcome.navigate)
	}
	return nil
}

// SetValue focuses a text control and replaces its value, raising focus,
// input and change in that order.
func (s *Session) SetValue(ctx context.Context, xpath, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	el, err := s.find(xpath)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	switch {
	case dom.IsDisabled(el):
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", dom.ErrDisabled, xpath)
	case !dom.IsTextInput(el) || dom.IsReadOnly(el):
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", dom.ErrNotEditable, xpath)
	}

	events := s.focus(el)
	if dom.Tag(el) == "input" {
		setAttr(el, "value", value)
	} else {
		replaceText(el, value)
	}
	base := Event{XPath: xpath, Tag: dom.Tag(el), Value: value, Route: s.route}
	input, change := base, base
	input.Type, change.Type = EventInput, EventChange
	events = append(events, input, change)
	s.mutations.Add(1)
	listeners := s.listeners
	s.mu.Unlock()

	emit(listeners, events)
	return nil
}

// SelectValue selects the option of a native select whose value (or, failing
// that, label) equals value.
func (s *Session) SelectValue(ctx context.Context, xpath, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	el, err := s.find(xpath)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if dom.Tag(el) != "select" {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is a <%s>, not a select", dom.ErrNotEditable, xpath, dom.Tag(el))
	}
	if dom.IsDisabled(el) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", dom.ErrDisabled, xpath)
	}

	options := htmlquery.Find(el, ".//option")
	var chosen *html.Node
	for _, opt := range options {
		if dom.OptionValue(opt) == value {
			chosen = opt
			break
		}
	}
	if chosen == nil {
		for _, opt := range options {
			if strings.EqualFold(dom.Text(opt), value) {
				chosen = opt
				break
			}
		}
	}
	if chosen == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q in %s", dom.ErrOptionNotFound, value, xpath)
	}
	if dom.IsDisabled(chosen) || (dom.Tag(chosen.Parent) == "optgroup" && dom.IsDisabled(chosen.Parent)) {
		s.mu.Unlock()
		return fmt.Errorf("%w: option %q", dom.ErrDisabled, value)
	}
	for _, opt := range options {
		removeAttr(opt, "selected")
	}
	setAttr(chosen, "selected", "selected")

	events := s.focus(el)
	base := Event{XPath: xpath, Tag: "select", Value: dom.OptionValue(chosen), Route: s.route}
	input, change := base, base
	input.Type, change.Type = EventInput, EventChange
	events = append(events, input, change)
	s.mutations.Add(1)
	listeners := s.listeners
	s.mu.Unlock()

	emit(listeners, events)
	return nil
}

// find must be called with mu held.
func (s *Session) find(xpath string) (*html.Node, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.doc == nil {
		return nil, fmt.Errorf("%w: no view mounted", dom.ErrElementNotFound)
	}
	el, err := htmlquery.Query(s.doc, xpath)
	if err != nil {
		return nil, fmt.Errorf("invalid element handle %q: %w", xpath, err)
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %s", dom.ErrElementNotFound, xpath)
	}
	return el, nil
}

// focus moves the focus marker to el. Must be called with mu held.
func (s *Session) focus(el *html.Node) []Event {
	if s.focused == el {
		return nil
	}
	var events []Event
	if prev := s.focused; prev != nil {
		removeAttr(prev, dom.FocusedAttr)
		events = append(events, Event{Type: EventBlur, XPath: dom.XPath(prev), Tag: dom.Tag(prev), Route: s.route})
	}
	s.focused = el
	setAttr(el, dom.FocusedAttr, "true")
	return append(events, Event{Type: EventFocus, XPath: dom.XPath(el), Tag: dom.Tag(el), Route: s.route})
}

func (s *Session) resolveRoute(route string) (string, error) {
	ref, err := url.Parse(route)
	if err != nil {
		return "", fmt.Errorf("invalid route %q: %w", route, err)
	}
	if ref.IsAbs() {
		ref = &url.URL{Path: ref.Path, RawQuery: ref.RawQuery}
	}
	current := s.CurrentRoute()
	if current == "" {
		current = "/"
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("invalid current route %q: %w", current, err)
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	out := resolved.Path
	if out == "" {
		out = "/"
	}
	if resolved.RawQuery != "" {
		out += "?" + resolved.RawQuery
	}
	return out, nil
}

func emit(listeners []Listener, events []Event) {
	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

func isFocusable(n *html.Node) bool {
	switch dom.Tag(n) {
	case "button", "input", "select", "textarea", "summary":
		return true
	case "a":
		return dom.HasAttr(n, "href")
	}
	return dom.HasAttr(n, "tabindex") || dom.IsTextInput(n) || dom.Attr(n, "role") == "tab"
}

// -- attribute helpers --

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func replaceText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}
