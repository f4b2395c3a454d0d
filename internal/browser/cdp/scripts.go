// File: internal/browser/cdp/scripts.go
package cdp

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Result codes returned by the in-page scripts.
const (
	resultOK          = "ok"
	resultMissing     = "missing"
	resultDisabled    = "disabled"
	resultNotEditable = "not_editable"
	resultNoOption    = "no_option"
)

// observerScript installs a mutation counter on every new document. Changes
// to the focus marker are ignored so snapshots do not disturb stability.
var observerScript = fmt.Sprintf(`(() => {
	if (window.__voicepilotObserver) return;
	window.__voicepilotMutations = 0;
	const start = () => {
		window.__voicepilotObserver = new MutationObserver((records) => {
			for (const r of records) {
				if (r.type === 'attributes' && r.attributeName === %[1]q) continue;
				window.__voicepilotMutations++;
				return;
			}
		});
		window.__voicepilotObserver.observe(document.documentElement, {subtree: true, childList: true, attributes: true, characterData: true});
	};
	if (document.documentElement) start(); else document.addEventListener('DOMContentLoaded', start);
})()`, dom.FocusedAttr)

const mutationsScript = `window.__voicepilotMutations || 0`

// snapshotScript reflects live control state into attributes, moves the
// focus marker to document.activeElement and returns the serialized tree with
// the current route. Its own edits are dropped from the mutation counter.
var snapshotScript = fmt.Sprintf(`(() => {
	for (const el of document.querySelectorAll('input, textarea, select')) {
		if (el instanceof HTMLSelectElement) {
			for (const o of el.options) o.selected ? o.setAttribute('selected', '') : o.removeAttribute('selected');
		} else if (el.type === 'checkbox' || el.type === 'radio') {
			el.checked ? el.setAttribute('checked', '') : el.removeAttribute('checked');
		} else if (el instanceof HTMLTextAreaElement) {
			if (el.textContent !== el.value) el.textContent = el.value;
		} else if (el.getAttribute('value') !== el.value) {
			el.setAttribute('value', el.value);
		}
	}
	for (const el of document.querySelectorAll('[%[1]s]')) el.removeAttribute(%[1]q);
	const active = document.activeElement;
	if (active && active !== document.body) active.setAttribute(%[1]q, 'true');
	if (window.__voicepilotObserver) window.__voicepilotObserver.takeRecords();
	return {html: document.documentElement.outerHTML, route: location.pathname + location.search};
})()`, dom.FocusedAttr)

const locateJS = `const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) return 'missing';
	const fs = el.closest && el.closest('fieldset[disabled]');
	if (el.disabled || fs || el.getAttribute('aria-disabled') === 'true' || el.hasAttribute('data-disabled')) return 'disabled';`

// probeScript reports whether the handle resolves to an enabled element.
func probeScript(xpath string) string {
	return fmt.Sprintf(`((xpath) => {
	%s
	el.scrollIntoView({block: 'center', inline: 'center'});
	return 'ok';
})(%s)`, locateJS, quote(xpath))
}

// setValueScript writes through the native value setter so framework-managed
// inputs observe the change, then raises input and change.
func setValueScript(xpath, value string) string {
	return fmt.Sprintf(`((xpath, value) => {
	%s
	if (el.readOnly) return 'not_editable';
	el.focus();
	if (el.isContentEditable) {
		el.textContent = value;
	} else if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) {
		const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, value);
	} else {
		return 'not_editable';
	}
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return 'ok';
})(%s, %s)`, locateJS, quote(xpath), quote(value))
}

// selectValueScript picks an option of a native select by value, then by label.
func selectValueScript(xpath, value string) string {
	return fmt.Sprintf(`((xpath, value) => {
	%s
	if (!(el instanceof HTMLSelectElement)) return 'not_editable';
	const opts = Array.from(el.options);
	const opt = opts.find(o => o.value === value) || opts.find(o => o.text.trim().toLowerCase() === value.toLowerCase());
	if (!opt) return 'no_option';
	if (opt.disabled) return 'disabled';
	el.focus();
	Object.getOwnPropertyDescriptor(HTMLSelectElement.prototype, 'value').set.call(el, opt.value);
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return 'ok';
})(%s, %s)`, locateJS, quote(xpath), quote(value))
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
