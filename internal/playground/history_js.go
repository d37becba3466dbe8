//go:build js && wasm

package playground

import (
	"fmt"
	"syscall/js"
)

// BrowserHistory is the History of the page the wasm module runs in.
type BrowserHistory struct {
	window js.Value
}

// NewBrowserHistory binds to the global window.
func NewBrowserHistory() *BrowserHistory {
	return &BrowserHistory{window: js.Global()}
}

// Fragment returns location.hash without the leading '#'.
func (h *BrowserHistory) Fragment() string {
	hash := h.window.Get("location").Get("hash").String()
	if len(hash) > 0 && hash[0] == '#' {
		return hash[1:]
	}
	return hash
}

// ReplaceFragment calls history.replaceState so the address changes without
// a new navigation entry.
func (h *BrowserHistory) ReplaceFragment(fragment string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("history.replaceState: %v", r)
		}
	}()
	h.window.Get("history").Call("replaceState", js.Undefined(), "", "#"+fragment)
	return nil
}
