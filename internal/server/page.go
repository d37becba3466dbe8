package server

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"

	"github.com/a-h/templ"
)

//go:embed static
var staticFiles embed.FS

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

// clientConfig is handed to playground.js as a JSON script element.
type clientConfig struct {
	BasePath      string `json:"basePath"`
	DecodeURL     string `json:"decodeURL"`
	ShareURL      string `json:"shareURL"`
	SnippetsURL   string `json:"snippetsURL,omitempty"`
	WebSocketPath string `json:"webSocketPath"`
}

type pageData struct {
	Title  string
	Source string
	Lua    string
	Client clientConfig
}

// playgroundPage renders the editor with source and its compiled output
// already filled in, so the page is usable before any script runs.
func playgroundPage(data pageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<link rel="stylesheet" href="/static/playground.css">
</head>
<body>
<header>
<h1>%s</h1>
<nav>
<button id="share" type="button">Share</button>
<input id="share-link" type="text" readonly aria-label="Shareable link">
</nav>
</header>
<main>
<section class="pane">
<label for="editor">TypeScript</label>
<textarea id="editor" name="source" spellcheck="false" autocomplete="off">
%s</textarea>
</section>
<section class="pane">
<label for="output">Lua</label>
<pre id="output">%s</pre>
<ul id="diagnostics"></ul>
</section>
</main>
`,
			templ.EscapeString(data.Title),
			templ.EscapeString(data.Title),
			templ.EscapeString(data.Source),
			templ.EscapeString(data.Lua))
		if err != nil {
			return err
		}

		if err := templ.JSONScript("tstlplay-config", data.Client).Render(ctx, w); err != nil {
			return err
		}

		_, err = io.WriteString(w, `
<script src="/static/playground.js" defer></script>
</body>
</html>
`)
		return err
	})
}
