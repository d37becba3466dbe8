//go:build js && wasm

// Command tstlplay-wasm exposes the playground link codec to a page that
// hosts its own editor. It registers three functions on window:
//
//	tstlplayInitialCode()      source for the current location.hash
//	tstlplayUpdateHistory(src) replace the address with a link to src
//	tstlplayLinkFor(src)       absolute-path shareable link for src
package main

import (
	"syscall/js"

	"github.com/conneroisu/tstlplay/internal/playground"
)

func main() {
	basePath := playground.DefaultBasePath
	if v := js.Global().Get("tstlplayBasePath"); v.Type() == js.TypeString {
		basePath = v.String()
	}

	codec := playground.NewCodec(playground.WithBasePath(basePath))
	history := playground.NewBrowserHistory()

	js.Global().Set("tstlplayInitialCode", js.FuncOf(func(this js.Value, args []js.Value) any {
		src, err := codec.DecodeInitialState(history.Fragment())
		if err != nil {
			js.Global().Get("console").Call("warn", "tstlplay: "+err.Error())
			return codec.Example()
		}
		return src
	}))

	js.Global().Set("tstlplayUpdateHistory", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) != 1 {
			return nil
		}
		if err := codec.EncodeAndReplaceHistory(history, args[0].String()); err != nil {
			return err.Error()
		}
		return nil
	}))

	js.Global().Set("tstlplayLinkFor", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) != 1 {
			return codec.BuildShareableLink("")
		}
		return codec.BuildShareableLink(args[0].String())
	}))

	select {}
}
