// File: internal/browser/dom/page.go
package dom

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrElementNotFound is returned when an XPath handle no longer matches the live page.
	ErrElementNotFound = errors.New("dom: element not found")
	// ErrNotEditable is returned when a value write targets an element that does not accept text.
	ErrNotEditable = errors.New("dom: element is not editable")
	// ErrDisabled is returned when a mutation targets a disabled element.
	ErrDisabled = errors.New("dom: element is disabled")
	// ErrOptionNotFound is returned when a select has no option with the requested value.
	ErrOptionNotFound = errors.New("dom: option not found")
)

// Page is the set of primitives the executor drives. Every mutation must
// raise the same notifications a real user interaction would (pointer and
// mouse events for clicks; focus, input and change for value writes) so the
// host application's state stays in sync with what was done on its behalf.
//
// Elements are addressed by XPath handles taken from a Document parsed from
// Snapshot. Handles are only valid for the tree they were taken from.
type Page interface {
	// Navigate requests a route change. Implementations may return before the
	// new view has settled; callers use WaitStable for that.
	Navigate(ctx context.Context, route string) error
	// CurrentRoute returns the path of the view currently mounted.
	CurrentRoute() string
	// Snapshot serializes the current element tree. The focused element
	// carries FocusedAttr="true".
	Snapshot(ctx context.Context) (io.Reader, error)
	// Click performs a user-equivalent click on the element.
	Click(ctx context.Context, xpath string) error
	// SetValue focuses a text-accepting element and replaces its value.
	SetValue(ctx context.Context, xpath, value string) error
	// SelectValue chooses the option with the given value on a native select.
	SelectValue(ctx context.Context, xpath, value string) error
	// Mutations returns a counter that increases whenever the element tree changes.
	Mutations(ctx context.Context) (uint64, error)
}

// FocusedAttr marks the element that had focus when a snapshot was taken.
const FocusedAttr = "data-voice-focused"

// VoiceIDAttr is the semantic identifier the host application puts on
// elements it wants to be addressable by voice.
const VoiceIDAttr = "voice-id"

// Load snapshots the page and parses it into a fresh Document.
func Load(ctx context.Context, p Page) (*Document, error) {
	r, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(r)
}
