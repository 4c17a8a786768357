package templates

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/synthgen/internal/core"
)

// Banner is a page-level message, distinct from field errors.
type Banner struct {
	Level   string // error, warning, success
	Message string
	Action  string
	Code    string
}

// ErrorAlert renders a user-facing error with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return BannerAlert(Banner{Level: "error", Message: message, Action: action, Code: code})
}

// BannerAlert renders b as an alert box.
func BannerAlert(b Banner) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		level := b.Level
		if level == "" {
			level = "error"
		}
		h.rawf(`<div class="alert alert-%s" role="alert"><p><strong>`, attr(level))
		h.text(b.Message)
		h.raw(`</strong>`)
		if b.Code != "" {
			h.raw(` <small>(Code: `)
			h.text(b.Code)
			h.raw(`)</small>`)
		}
		h.raw(`</p>`)
		if b.Action != "" {
			h.raw(`<p>`)
			h.text(b.Action)
			h.raw(`</p>`)
		}
		h.raw(`</div>`)
	})
}

// FieldError renders the message for one form field, or nothing when valid.
func FieldError(res core.ValidationResult, ok bool) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		if !ok || res.Valid {
			return
		}
		h.rawf(`<p class="field-error" id="%s-error">`, attr(res.Field))
		h.text(res.Message)
		h.raw(`</p>`)
	})
}

// PreviewTable renders a preview. Cell text is shown exactly as parsed.
func PreviewTable(t *core.PreviewTable) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		if t == nil {
			return
		}
		h.raw(`<div class="preview"><table><thead><tr>`)
		for _, col := range t.Header {
			h.raw(`<th>`)
			h.text(col)
			h.raw(`</th>`)
		}
		h.raw(`</tr></thead><tbody>`)
		for _, row := range t.Rows {
			h.raw(`<tr>`)
			for _, cell := range row {
				h.raw(`<td>`)
				h.text(cell)
				h.raw(`</td>`)
			}
			h.raw(`</tr>`)
		}
		h.raw(`</tbody></table></div>`)
		if t.Truncated() {
			h.rawf(`<p><small>Showing %d of %d rows.</small></p>`, len(t.Rows), t.TotalRows)
		} else {
			h.rawf(`<p><small>%s rows.</small></p>`, strconv.Itoa(t.TotalRows))
		}
	})
}

// ExamplePrompts renders the list of sample themes.
func ExamplePrompts(prompts []string) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		if len(prompts) == 0 {
			return
		}
		h.raw(`<section class="examples"><h3>Examples</h3><ul>`)
		for _, p := range prompts {
			h.raw(`<li>`)
			h.text(p)
			h.raw(`</li>`)
		}
		h.raw(`</ul></section>`)
	})
}
