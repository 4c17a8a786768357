package templates

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/synthgen/internal/core"
)

// ResultView is the outcome of the last submission as shown on the page.
type ResultView struct {
	ID          string
	Preview     *core.PreviewTable
	PreviewErr  *Banner // Shown in place of the table
	DownloadURL string  // Empty unless a download was produced
	FileName    string
	Duration    time.Duration
}

// GeneratorParams holds everything the generator page renders.
type GeneratorParams struct {
	Models    []core.ModelProfile
	Profile   core.ModelProfile
	Form      core.FormState
	State     core.State
	Elapsed   int
	Busy      bool
	CanSubmit bool // Inputs pass their checks; Generate is disabled otherwise
	Errors    map[string]core.ValidationResult
	Banner    *Banner
	Result    *ResultView
	Examples  []string
	MaxTheme  int
	MaxUpload int64
}

// GeneratorPage renders the full generator page.
func GeneratorPage(p GeneratorParams) templ.Component {
	refresh := 0
	if p.Busy {
		refresh = 2
	}
	return Layout(p.Profile.Label, refresh, GeneratorBody(p))
}

// GeneratorBody renders the page content without the shell. It is also the
// fragment returned to HTMX requests.
func GeneratorBody(p GeneratorParams) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<div id="generator">`)
		h.render(ctx, modelNav(p.Models, p.Form.ModelID))
		if p.Banner != nil {
			h.render(ctx, BannerAlert(*p.Banner))
		}

		h.raw(`<div class="grid"><section>`)
		h.render(ctx, generatorForm(p))
		h.raw(`</section><aside>`)
		if p.Profile.Modality == core.ModalityText {
			h.render(ctx, ExamplePrompts(p.Examples))
		}
		h.raw(`</aside></div>`)

		h.render(ctx, resultSection(p.Result))
		h.raw(`</div>`)
		h.raw(submitScript)
	})
}

func modelNav(models []core.ModelProfile, selected string) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<nav class="models" aria-label="Models">`)
		for _, m := range models {
			class := ""
			if m.ID == selected {
				class = ` class="active" aria-current="page"`
			}
			h.rawf(`<a href="/generator?model=%s"%s>`, attr(url.QueryEscape(m.ID)), class)
			h.text(m.Label)
			h.raw(`</a>`)
		}
		h.raw(`</nav>`)
	})
}

func generatorForm(p GeneratorParams) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.rawf(`<form id="generate-form" method="post" action="/api/generate" enctype="multipart/form-data" data-attached="%t">`, p.Form.File != nil)
		h.rawf(`<input type="hidden" name="model" value="%s">`, attr(p.Form.ModelID))

		if p.Profile.Modality == core.ModalityFile {
			h.raw(`<div class="field"><label for="file">Seed CSV file</label><br>`)
			required := " required"
			if p.Form.File != nil {
				required = ""
			}
			h.rawf(`<input type="file" id="file" name="file" accept=".csv,text/csv"%s>`, required)
			if p.MaxUpload > 0 {
				h.rawf(`<br><small>CSV with a header and at least %d data rows, up to %d MB.</small>`,
					core.MinDataRows, p.MaxUpload>>20)
			}
			res, ok := p.Errors[core.FieldFile]
			h.render(ctx, FieldError(res, ok))
			h.raw(`</div>`)
		} else {
			h.raw(`<div class="field"><label for="theme">Theme</label><br>`)
			h.rawf(`<textarea id="theme" name="theme" maxlength="%d" required placeholder="Describe the data you want to generate and its fields...">`, p.MaxTheme)
			h.text(p.Form.Theme)
			h.raw(`</textarea>`)
			res, ok := p.Errors[core.FieldTheme]
			h.render(ctx, FieldError(res, ok))
			h.raw(`</div>`)
		}

		h.rawf(`<div class="field"><label for="rows">Rows (%d to %d)</label><br>`, p.Profile.RowsMin, p.Profile.RowsMax)
		h.rawf(`<input type="number" id="rows" name="rows" min="%d" max="%d" value="%d"></div>`,
			p.Profile.RowsMin, p.Profile.RowsMax, p.Form.Rows)

		checked := ""
		if p.Form.DownloadEnabled {
			checked = " checked"
		}
		h.raw(`<div class="field">`)
		h.rawf(`<label><input type="checkbox" name="download" value="true"%s> Download result</label><br>`, checked)
		h.rawf(`<input type="text" name="outputFileName" value="%s" pattern="[A-Za-z0-9_\-]+" aria-label="File name">.csv`,
			attr(p.Form.OutputFileName))
		res, ok := p.Errors[core.FieldFileName]
		h.render(ctx, FieldError(res, ok))
		h.raw(`</div>`)

		disabled := ""
		if p.Busy || !p.CanSubmit {
			disabled = " disabled"
		}
		h.rawf(`<button type="submit" id="generate"%s>Generate</button>`, disabled)
		h.rawf(` <span id="elapsed" data-busy="%t">`, p.Busy)
		if p.Busy {
			h.rawf(`Generating... %ds`, p.Elapsed)
		}
		h.raw(`</span></form>`)
	})
}

func resultSection(r *ResultView) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		if r == nil {
			return
		}
		h.rawf(`<section id="result" data-result-id="%s"><h2>Result</h2>`, attr(r.ID))
		if r.DownloadURL != "" {
			h.rawf(`<p><a href="%s" download="%s">Download %s</a></p>`,
				attr(r.DownloadURL), attr(r.FileName), templ.EscapeString(r.FileName))
		}
		if r.PreviewErr != nil {
			h.render(ctx, BannerAlert(*r.PreviewErr))
		}
		h.render(ctx, PreviewTable(r.Preview))
		if r.Duration > 0 {
			h.raw(`<p><small>Generated in `)
			h.text(strconv.FormatFloat(r.Duration.Seconds(), 'f', 1, 64))
			h.raw(`s</small></p>`)
		}
		h.raw(`</section>`)
	})
}

// submitScript keeps the Generate button in step with the inputs, disables it
// on submit and shows the elapsed counter while the browser waits for the
// response.
const submitScript = `<script>
(function(){
  var form=document.getElementById("generate-form");
  if(!form)return;
  var btn=document.getElementById("generate");
  var name=/^[A-Za-z0-9_-]+$/;
  function ready(){
    var theme=form.elements["theme"],file=form.elements["file"];
    if(theme&&theme.value.trim()==="")return false;
    if(file&&file.files.length===0&&form.dataset.attached!=="true")return false;
    if(form.elements["download"].checked&&!name.test(form.elements["outputFileName"].value))return false;
    return true;
  }
  function check(){btn.disabled=!ready();}
  form.addEventListener("input",check);
  form.addEventListener("change",check);
  form.addEventListener("submit",function(e){
    if(!ready()){e.preventDefault();return;}
    var out=document.getElementById("elapsed"),n=0;
    btn.disabled=true;
    out.textContent="Generating... 0s";
    setInterval(function(){n++;out.textContent="Generating... "+n+"s";},1000);
  });
})();
</script>`
