package templates

import (
	"context"

	"github.com/a-h/templ"
)

const stylesheet = `
body{font-family:system-ui,sans-serif;margin:0;color:#414042;background:#f7f7f8}
header{background:#1E647F;color:#fff;padding:.75rem 1.5rem}
header a{color:#fff;text-decoration:none;margin-right:1rem}
main{max-width:72rem;margin:0 auto;padding:1.5rem}
nav.models a{display:inline-block;padding:.4rem .8rem;margin:0 .3rem .3rem 0;border:1px solid #1E647F;border-radius:4px;color:#1E647F;text-decoration:none}
nav.models a.active{background:#1E647F;color:#fff}
.grid{display:grid;grid-template-columns:2fr 1fr;gap:1.5rem}
textarea{width:100%;min-height:12rem}
.field{margin-bottom:1rem}
.field-error{color:#b00020;font-size:.85rem}
.alert{padding:.75rem 1rem;border-radius:4px;margin-bottom:1rem}
.alert-error{background:#fdecea;border:1px solid #f5c2c0}
.alert-warning{background:#fff8e1;border:1px solid #ffe08a}
.alert-success{background:#e8f5e9;border:1px solid #b7dfb9}
.preview{overflow:auto;max-height:32rem;background:#fff}
.preview table{border-collapse:collapse;font-size:.85rem}
.preview th,.preview td{border:1px solid #ddd;padding:.25rem .5rem;white-space:nowrap}
button[disabled]{opacity:.5;cursor:not-allowed}
`

// Layout wraps body in the page shell. refresh > 0 adds a meta refresh so a
// page showing an in-flight generation updates without script.
func Layout(title string, refresh int, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		if refresh > 0 {
			h.rawf(`<meta http-equiv="refresh" content="%d">`, refresh)
		}
		h.raw(`<title>`)
		h.text(title)
		h.raw(` · synthgen</title><style>`)
		h.raw(stylesheet)
		h.raw(`</style></head><body>`)
		h.raw(`<header><a href="/generator"><strong>synthgen</strong></a><a href="/generator">Generator</a></header>`)
		h.raw(`<main>`)
		h.render(ctx, body)
		h.raw(`</main></body></html>`)
	})
}
