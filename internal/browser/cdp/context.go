// File: internal/browser/cdp/context.go
package cdp

import "context"

// CombineContext derives a context from primary that is also canceled when
// secondary is. Values (the CDP target chromedp stores in the tab context)
// come from primary; the operation deadline usually comes from secondary.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
