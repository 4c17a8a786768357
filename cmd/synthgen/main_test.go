package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/synthgen/internal/core"
)

// fakePrompter answers prompts from a script and checks each answer with the
// prompt's validator, like survey would.
type fakePrompter struct {
	selects  []int
	inputs   []string
	confirms []bool
	asked    []string
}

func (p *fakePrompter) Select(message string, options []string, def string) (int, error) {
	p.asked = append(p.asked, message)
	if len(p.selects) == 0 {
		return 0, errAborted
	}
	n := p.selects[0]
	p.selects = p.selects[1:]
	return n, nil
}

func (p *fakePrompter) Input(message, def string, validate func(string) error) (string, error) {
	p.asked = append(p.asked, message)
	if len(p.inputs) == 0 {
		return "", errAborted
	}
	ans := p.inputs[0]
	p.inputs = p.inputs[1:]
	if ans == "" {
		ans = def
	}
	if validate != nil {
		if err := validate(ans); err != nil {
			return "", err
		}
	}
	return ans, nil
}

func (p *fakePrompter) Confirm(message string, def bool) (bool, error) {
	p.asked = append(p.asked, message)
	if len(p.confirms) == 0 {
		return def, nil
	}
	v := p.confirms[0]
	p.confirms = p.confirms[1:]
	return v, nil
}

// generationService is a stand-in for the remote /generate endpoint.
type generationService struct {
	*httptest.Server
	calls    atomic.Int32
	lastJSON map[string]any
	lastForm map[string]string
	lastFile string
}

func newGenerationService(t *testing.T, status int, body string) *generationService {
	t.Helper()
	svc := &generationService{}
	svc.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc.calls.Add(1)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				svc.lastForm = map[string]string{
					"generator_type": r.FormValue("generator_type"),
					"rows":           r.FormValue("rows"),
				}
				if f, h, err := r.FormFile("file"); err == nil {
					svc.lastFile = h.Filename
					f.Close()
				}
			}
		} else {
			_ = json.NewDecoder(r.Body).Decode(&svc.lastJSON)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(svc.Close)
	return svc
}

func run(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestModelsCmd(t *testing.T) {
	out, _, err := run(t, newApp(), "models")
	require.NoError(t, err)

	assert.Contains(t, out, "merlin *")
	assert.Contains(t, out, "Merlin Generator")
	assert.Regexp(t, `ydata\s+Ydata Generator\s+csv file\s+1-50`, out)
	assert.Equal(t, 6, strings.Count(out, "\n"))
}

func TestModelsCmd_RosterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`default: tiny
models:
  - id: tiny
    label: Tiny
    modality: text
    rows_min: 1
    rows_max: 5
`), 0o644))

	out, _, err := run(t, newApp(), "models", "--models", path)
	require.NoError(t, err)
	assert.Contains(t, out, "tiny *")
	assert.NotContains(t, out, "merlin")
}

func TestPromptsCmd(t *testing.T) {
	out, _, err := run(t, newApp(), "prompts")
	require.NoError(t, err)
	assert.Equal(t, len(core.ExamplePrompts), strings.Count(out, "\n"))
	assert.True(t, strings.HasPrefix(out, "1. "))
}

func TestGenerateCmd_TextModel(t *testing.T) {
	const text = "name,city\nAda,London\nAlan,Wilmslow\n"
	svc := newGenerationService(t, http.StatusOK, text)
	dir := t.TempDir()

	out, _, err := run(t, newApp(), "generate",
		"--base-url", svc.URL,
		"--theme", "people and cities",
		"--rows", "500",
		"--model", "gold",
		"--out", dir,
		"--download-name", "people",
	)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"generator_type": "gold", "theme": "people and cities", "rows": float64(200)}, svc.lastJSON)
	assert.Regexp(t, `name\s+city`, out)
	assert.Regexp(t, `Ada\s+London`, out)
	assert.Contains(t, out, "2 rows.")
	assert.Contains(t, out, "Saved "+filepath.Join(dir, "people.csv"))

	saved, err := os.ReadFile(filepath.Join(dir, "people.csv"))
	require.NoError(t, err)
	assert.Equal(t, text, string(saved))
}

func TestGenerateCmd_FileModel(t *testing.T) {
	svc := newGenerationService(t, http.StatusOK, "a,b\n1,2\n")
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.csv")
	require.NoError(t, os.WriteFile(seed, []byte("a,b\n1,2\n3,4\n"), 0o644))

	_, _, err := run(t, newApp(), "generate",
		"--base-url", svc.URL,
		"--model", "ydata",
		"--file", seed,
		"--rows", "20",
		"--download=false",
	)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"generator_type": "ydata", "rows": "20"}, svc.lastForm)
	assert.Equal(t, "seed.csv", svc.lastFile)
	_, statErr := os.Stat(filepath.Join(dir, core.DefaultOutputFileName+".csv"))
	assert.True(t, os.IsNotExist(statErr), "nothing is saved with --download=false")
}

func TestGenerateCmd_InvalidSeedFile(t *testing.T) {
	svc := newGenerationService(t, http.StatusOK, "")
	seed := filepath.Join(t.TempDir(), "seed.csv")
	require.NoError(t, os.WriteFile(seed, []byte("a,b\n1,2\n"), 0o644))

	_, errOut, err := run(t, newApp(), "generate", "--base-url", svc.URL, "--model", "ydata", "--file", seed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientRows))
	assert.Contains(t, errOut, "file: The CSV must have a header and at least 2 data rows (found 1).")
	assert.Zero(t, svc.calls.Load())
}

func TestGenerateCmd_EmptyThemeBlocksRequest(t *testing.T) {
	svc := newGenerationService(t, http.StatusOK, "a\n1\n")

	_, errOut, err := run(t, newApp(), "generate", "--base-url", svc.URL, "--out", t.TempDir())
	require.Error(t, err)

	var verrs core.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, errOut, "theme: Please enter a theme.")
	assert.Zero(t, svc.calls.Load())
}

func TestGenerateCmd_BadDownloadName(t *testing.T) {
	svc := newGenerationService(t, http.StatusOK, "a\n1\n")

	_, _, err := run(t, newApp(), "generate", "--base-url", svc.URL, "--theme", "x", "--download-name", "my file")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidCharacters))
	assert.Zero(t, svc.calls.Load())
}

func TestGenerateCmd_ServiceError(t *testing.T) {
	svc := newGenerationService(t, http.StatusInternalServerError, "boom")

	_, _, err := run(t, newApp(), "generate", "--base-url", svc.URL, "--theme", "pets", "--download=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Code: GEN001")
	assert.EqualValues(t, 1, svc.calls.Load())
}

func TestGenerateCmd_Interactive(t *testing.T) {
	svc := newGenerationService(t, http.StatusOK, "a,b\n1,2\n")
	dir := t.TempDir()

	a := newApp()
	p := &fakePrompter{
		selects:  []int{2}, // premium
		inputs:   []string{"favourite snacks", "7", "snacks"},
		confirms: []bool{true},
	}
	a.prompter = p

	_, _, err := run(t, a, "generate", "-i", "--base-url", svc.URL, "--out", dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"Model", "Theme", "Rows (1-200)", "Save the result as a CSV file?", "File name (without .csv)"}, p.asked)
	assert.Equal(t, map[string]any{"generator_type": "premium", "theme": "favourite snacks", "rows": float64(7)}, svc.lastJSON)
	assert.FileExists(t, filepath.Join(dir, "snacks.csv"))
}

func TestGenerateCmd_InteractiveRejectsBadRows(t *testing.T) {
	svc := newGenerationService(t, http.StatusOK, "a\n1\n")

	a := newApp()
	a.prompter = &fakePrompter{selects: []int{1}, inputs: []string{"pets", "900"}}

	_, _, err := run(t, a, "generate", "-i", "--base-url", svc.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from 1 to 200")
	assert.Zero(t, svc.calls.Load())
}
