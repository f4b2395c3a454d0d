package dom_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

const docHTML = `<html><body>
	<div role="tablist">
		<button role="tab" voice-id="tab-courses">Cour<b>ses</b></button>
		<button role="tab" disabled>Create</button>
	</div>
	<fieldset disabled><input id="locked" value="x"></fieldset>
	<input id="email" placeholder="Email" data-voice-focused="true">
	<input type="hidden" id="csrf" value="t">
	<input type="checkbox" id="agree">
	<textarea id="bio">hello
	world</textarea>
	<div contenteditable="true" id="notes">notes</div>
	<select id="subject"><option value="">Pick one</option><option value="bio" selected>Biology</option><option>Math</option></select>
	<div style="display: none"><button id="ghost">Ghost</button></div>
	<div aria-hidden="true"><span id="muted">Muted</span></div>
	<dialog><p id="closed">Closed dialog</p></dialog>
	<p id="para">Line one<br>Line two <script>var x = 1;</script><span hidden>secret</span></p>
	<input type="submit" value=" Save ">
</body></html>`

func parseDoc(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestDocumentQueries(t *testing.T) {
	doc := parseDoc(t, docHTML)

	t.Run("unions come back in document order without duplicates", func(t *testing.T) {
		nodes := doc.QueryAll("//textarea | //input[@id='email'] | //*[@id='email']")
		require.Len(t, nodes, 2)
		assert.Equal(t, "email", dom.Attr(nodes[0], "id"))
		assert.Equal(t, "textarea", dom.Tag(nodes[1]))
	})

	t.Run("invalid expressions yield nothing", func(t *testing.T) {
		assert.Nil(t, doc.QueryAll("//*[@id="))
		assert.Nil(t, doc.Query("//*[@id="))
	})

	t.Run("focused element is read from the marker", func(t *testing.T) {
		assert.Equal(t, "email", dom.Attr(doc.Focused(), "id"))
	})

	t.Run("by id", func(t *testing.T) {
		assert.Equal(t, "textarea", dom.Tag(doc.ByID("bio")))
		assert.Nil(t, doc.ByID(""))
		assert.Nil(t, doc.ByID("it's"))
	})
}

func TestNodeHelpers(t *testing.T) {
	doc := parseDoc(t, docHTML)
	byID := doc.ByID

	t.Run("text", func(t *testing.T) {
		assert.Equal(t, "Courses", dom.Text(doc.Query("//button[@voice-id='tab-courses']")))
		assert.Equal(t, "Line one Line two", dom.Text(byID("para")))
		assert.Equal(t, "Save", dom.Text(doc.Query("//input[@type='submit']")))
	})

	t.Run("hidden", func(t *testing.T) {
		assert.True(t, dom.IsHidden(byID("ghost")))
		assert.True(t, dom.IsHidden(byID("muted")))
		assert.True(t, dom.IsHidden(byID("closed")))
		assert.True(t, dom.IsHidden(byID("csrf")))
		assert.False(t, dom.IsHidden(byID("email")))
	})

	t.Run("disabled", func(t *testing.T) {
		assert.True(t, dom.IsDisabled(doc.Query("//button[text()='Create']")))
		assert.True(t, dom.IsDisabled(byID("locked")), "disabled fieldset disables its controls")
		assert.False(t, dom.IsDisabled(byID("email")))
	})

	t.Run("text inputs", func(t *testing.T) {
		assert.True(t, dom.IsTextInput(byID("email")))
		assert.True(t, dom.IsTextInput(byID("bio")))
		assert.True(t, dom.IsTextInput(byID("notes")))
		assert.False(t, dom.IsTextInput(byID("agree")))
		assert.False(t, dom.IsTextInput(byID("csrf")))
	})

	t.Run("values", func(t *testing.T) {
		assert.Equal(t, "bio", dom.Value(byID("subject")))
		assert.Equal(t, "x", dom.Value(byID("locked")))
		assert.Equal(t, "notes", dom.Value(byID("notes")))
		math := doc.Query("//option[text()='Math']")
		assert.Equal(t, "Math", dom.OptionValue(math), "options without a value fall back to their text")
	})
}

type fakeCounter struct {
	n atomic.Uint64
}

func (f *fakeCounter) Mutations(context.Context) (uint64, error) { return f.n.Load(), nil }

func TestWaitStable(t *testing.T) {
	t.Run("returns once the counter is quiet", func(t *testing.T) {
		c := &fakeCounter{}
		start := time.Now()
		err := dom.WaitStable(context.Background(), c, 30*time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("gives up when the tree never settles", func(t *testing.T) {
		c := &fakeCounter{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			ticker := time.NewTicker(5 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.n.Add(1)
				}
			}
		}()
		err := dom.WaitStable(ctx, c, 100*time.Millisecond, 250*time.Millisecond)
		assert.ErrorIs(t, err, dom.ErrUnstable)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := dom.WaitStable(ctx, &fakeCounter{}, time.Second, 2*time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
