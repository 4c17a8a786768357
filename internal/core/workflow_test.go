package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator returns text or err and counts calls.
type stubGenerator struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32

	mu   sync.Mutex
	last GenerationRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.last = req
	g.mu.Unlock()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.text, g.err
}

func (g *stubGenerator) lastRequest() GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

type memorySaver struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memorySaver) Save(ctx context.Context, name string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[name] = append([]byte(nil), content...)
	return "mem://" + name, nil
}

type memoryRecorder struct {
	mu   sync.Mutex
	subs []Submission
}

func (r *memoryRecorder) Record(ctx context.Context, s Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
	return nil
}

func validCSV() *MemoryFile {
	return &MemoryFile{FileName: "seed.csv", Data: []byte("name,age\nAnn,7\nBob,9\n")}
}

func TestNewWorkflow_Defaults(t *testing.T) {
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{})

	form := w.Form()
	assert.Equal(t, "merlin", form.ModelID)
	assert.Equal(t, 1, form.Rows)
	assert.Equal(t, DefaultOutputFileName, form.OutputFileName)
	assert.False(t, form.DownloadEnabled)
	assert.Equal(t, StateIdle, w.State())
	assert.False(t, w.CanSubmit(), "empty theme blocks submit")
}

func TestWorkflow_RowsAlwaysClampedAfterModelChange(t *testing.T) {
	reg := DefaultRegistry()
	w := NewWorkflow(reg, &stubGenerator{})

	ids := []string{"unknown-model"}
	for _, p := range reg.All() {
		ids = append(ids, p.ID)
	}

	for _, id := range ids {
		require.NoError(t, w.SelectModel(id))
		profile := w.Profile()
		assert.Equal(t, profile.RowsMin, w.Form().Rows, "%s: rows reset to minimum", id)

		for _, n := range []int{-1, 0, profile.RowsMin, profile.RowsMax, profile.RowsMax + 1, 1 << 30} {
			got, err := w.SetRows(n)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, profile.RowsMin, "%s SetRows(%d)", id, n)
			assert.LessOrEqual(t, got, profile.RowsMax, "%s SetRows(%d)", id, n)
		}
	}
}

func TestWorkflow_SelectModelResetsForm(t *testing.T) {
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{})

	_, err := w.SetTheme("")
	require.NoError(t, err)
	_, err = w.SetDownload(true, "bad name")
	require.NoError(t, err)
	_, err = w.SetRows(75)
	require.NoError(t, err)
	require.Len(t, w.Errors(), 2)

	require.NoError(t, w.SelectModel("ydata"))
	_, err = w.AttachFile(context.Background(), validCSV())
	require.NoError(t, err)
	require.NotNil(t, w.Form().File)

	require.NoError(t, w.SelectModel("gold"))
	form := w.Form()
	assert.Equal(t, "gold", form.ModelID)
	assert.Equal(t, 1, form.Rows)
	assert.Empty(t, form.Theme)
	assert.Nil(t, form.File)
	assert.False(t, form.DownloadEnabled)
	assert.Equal(t, DefaultOutputFileName, form.OutputFileName)
	assert.Empty(t, w.Errors())
}

func TestWorkflow_SelectEmptyModelUsesDefault(t *testing.T) {
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{})
	require.NoError(t, w.SelectModel("gold"))
	require.NoError(t, w.SelectModel(""))
	assert.Equal(t, DefaultModelID, w.Form().ModelID)
}

func TestWorkflow_AttachInvalidFileClearsSelection(t *testing.T) {
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{})
	require.NoError(t, w.SelectModel("ydata"))

	res, err := w.AttachFile(context.Background(), validCSV())
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.True(t, w.CanSubmit())

	res, err = w.AttachFile(context.Background(), &MemoryFile{FileName: "data.txt", Data: []byte("a\n1\n2\n")})
	require.NoError(t, err)
	assert.Equal(t, KindInvalidExtension, res.Kind)
	assert.Nil(t, w.Form().File, "stale file must not survive a failed check")
	assert.Contains(t, w.Errors(), FieldFile)
	assert.False(t, w.CanSubmit())
}

func TestWorkflow_SubmitValidationBlocksNetwork(t *testing.T) {
	gen := &stubGenerator{text: "a\n1\n"}
	w := NewWorkflow(DefaultRegistry(), gen)

	_, _ = w.SetDownload(true, "my file")
	result, err := w.Submit(context.Background())

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "got %v", err)
	assert.Len(t, verrs, 2)
	assert.True(t, errors.Is(err, ErrEmptyInput))
	assert.True(t, errors.Is(err, ErrInvalidCharacters))
	require.NotNil(t, result)
	assert.Len(t, result.Validation, 2)

	assert.Equal(t, int32(0), gen.calls.Load())
	assert.Equal(t, StateIdle, w.State())
	assert.Contains(t, w.Errors(), FieldTheme)
	assert.Contains(t, w.Errors(), FieldFileName)
}

func TestWorkflow_SubmitRevalidatesFile(t *testing.T) {
	gen := &stubGenerator{text: "a\n1\n"}
	w := NewWorkflow(DefaultRegistry(), gen)
	require.NoError(t, w.SelectModel("ydata"))

	// Content changes between selection and submit.
	file := validCSV()
	_, err := w.AttachFile(context.Background(), file)
	require.NoError(t, err)
	file.Data = []byte("name,age\nAnn,7\n")

	_, err = w.Submit(context.Background())
	assert.True(t, errors.Is(err, ErrInsufficientRows), "got %v", err)
	assert.Nil(t, w.Form().File)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestWorkflow_SubmitText(t *testing.T) {
	gen := &stubGenerator{text: "name,age\nAnn,7\nBob,9\n"}
	var (
		mu          sync.Mutex
		transitions []string
	)
	w := NewWorkflow(DefaultRegistry(), gen,
		WithTransitionFunc(func(from, to State) {
			mu.Lock()
			transitions = append(transitions, fmt.Sprintf("%s->%s", from, to))
			mu.Unlock()
		}),
	)
	_, _ = w.SetTheme("patients")
	_, _ = w.SetRows(10)
	require.True(t, w.CanSubmit())

	result, err := w.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome.Status)
	require.NotNil(t, result.Preview)
	assert.Equal(t, []string{"name", "age"}, result.Preview.Header)
	assert.Len(t, result.Preview.Rows, 2)
	assert.Empty(t, result.SavedAs, "download disabled")
	assert.NotEmpty(t, result.ID)

	req, ok := gen.lastRequest().(*JSONRequest)
	require.True(t, ok)
	assert.Equal(t, &JSONRequest{GeneratorType: "merlin", Theme: "patients", Rows: 10}, req)

	assert.Equal(t, StateIdle, w.State())
	assert.Same(t, result, w.LastResult())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"idle->validating",
		"validating->submitting",
		"submitting->success",
		"success->idle",
	}, transitions)
}

func TestWorkflow_SubmitFileClearsFileOnEveryOutcome(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
		want OutcomeStatus
	}{
		{"success", &stubGenerator{text: "a\n1\n"}, OutcomeSuccess},
		{"failure", &stubGenerator{err: errors.New("status 500")}, OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorkflow(DefaultRegistry(), tt.gen)
			require.NoError(t, w.SelectModel("ydata"))
			_, _ = w.SetRows(20)
			_, err := w.AttachFile(context.Background(), validCSV())
			require.NoError(t, err)

			result, err := w.Submit(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Outcome.Status)
			assert.Nil(t, w.Form().File)
			assert.False(t, w.CanSubmit(), "a fresh file must be chosen")

			req, ok := tt.gen.lastRequest().(*MultipartRequest)
			require.True(t, ok)
			assert.Equal(t, "20", req.Fields()["rows"])
		})
	}
}

func TestWorkflow_SubmitFailure(t *testing.T) {
	rec := &memoryRecorder{}
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{err: errors.New("unexpected status 502")}, WithRecorder(rec))
	_, _ = w.SetTheme("orders")

	result, err := w.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, result.Outcome.Status)
	assert.Equal(t, KindRequestFailed, result.Outcome.Kind)
	assert.Equal(t, "Error generating data", result.Outcome.Message)
	assert.Nil(t, result.Preview)
	assert.Equal(t, StateIdle, w.State())
	assert.True(t, w.CanSubmit(), "workflow stays usable after failure")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.subs, 1)
	assert.Equal(t, OutcomeError, rec.subs[0].Status)
	assert.Equal(t, result.ID, rec.subs[0].ID)
}

func TestWorkflow_TimeoutIsCancelledNotFailed(t *testing.T) {
	// The generator ignores ctx and answers late; the answer must be dropped.
	gen := &stubGenerator{text: "a\n1\n", delay: 300 * time.Millisecond}
	saver := &memorySaver{}
	w := NewWorkflow(DefaultRegistry(), gen, WithTimeout(30*time.Millisecond), WithSaver(saver))
	_, _ = w.SetTheme("slow")
	_, _ = w.SetDownload(true, "late")

	start := time.Now()
	result, err := w.Submit(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, OutcomeCancelled, result.Outcome.Status)
	assert.Equal(t, KindRequestTimedOut, result.Outcome.Kind)
	assert.Equal(t, "The request timed out", result.Outcome.Message)
	assert.Empty(t, result.Outcome.CSVText)

	time.Sleep(350 * time.Millisecond)
	assert.Nil(t, w.LastResult().Preview)
	assert.Empty(t, saver.files, "late response must not be saved")
	assert.Equal(t, StateIdle, w.State())
}

type ctxAwareGenerator struct{}

func (ctxAwareGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	<-ctx.Done()
	return "", fmt.Errorf("post: %w", ctx.Err())
}

func TestWorkflow_TimeoutWithContextAwareGenerator(t *testing.T) {
	w := NewWorkflow(DefaultRegistry(), ctxAwareGenerator{}, WithTimeout(20*time.Millisecond))
	_, _ = w.SetTheme("slow")

	result, err := w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, result.Outcome.Status)
}

type gatedGenerator struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	g.calls.Add(1)
	close(g.started)
	<-g.release
	return "a\n1\n", nil
}

func TestWorkflow_ReentrantSubmitRejected(t *testing.T) {
	gen := &gatedGenerator{started: make(chan struct{}), release: make(chan struct{})}
	w := NewWorkflow(DefaultRegistry(), gen)
	_, _ = w.SetTheme("patients")

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-gen.started

	assert.Equal(t, StateSubmitting, w.State())
	assert.False(t, w.CanSubmit())

	for i := 0; i < 3; i++ {
		_, err := w.Submit(context.Background())
		assert.ErrorIs(t, err, ErrSubmitInProgress)
	}
	_, err := w.SetRows(5)
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.ErrorIs(t, w.SelectModel("gold"), ErrSubmitInProgress)

	close(gen.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, StateIdle, w.State())
}

// gatedSaver blocks in Save until released.
type gatedSaver struct {
	started chan struct{}
	release chan struct{}
}

func (s *gatedSaver) Save(ctx context.Context, name string, content []byte) (string, error) {
	close(s.started)
	<-s.release
	return "mem://" + name, nil
}

func TestWorkflow_EditsRejectedWhileDelivering(t *testing.T) {
	saver := &gatedSaver{started: make(chan struct{}), release: make(chan struct{})}
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{text: "a,b\n1,2\n"}, WithSaver(saver))
	_, _ = w.SetTheme("patients")
	_, _ = w.SetDownload(true, "out")

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-saver.started

	assert.Equal(t, StateSuccess, w.State())
	assert.False(t, w.CanSubmit())
	assert.ErrorIs(t, w.SelectModel("ydata"), ErrSubmitInProgress)
	_, err := w.SetTheme("changed")
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	_, err = w.SetRows(5)
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	_, err = w.SetDownload(false, "")
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(saver.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, w.State())

	form := w.Form()
	assert.Equal(t, "merlin", form.ModelID)
	assert.Equal(t, "patients", form.Theme)
	require.NotNil(t, w.LastResult())
	assert.Equal(t, form.ModelID, w.LastResult().ModelID)

	require.NoError(t, w.SelectModel("ydata"))
	assert.Nil(t, w.LastResult())
}

func TestWorkflow_ElapsedCounter(t *testing.T) {
	var ticks atomic.Int32
	gen := &stubGenerator{text: "a\n1\n", delay: 120 * time.Millisecond}
	w := NewWorkflow(DefaultRegistry(), gen,
		WithTickInterval(20*time.Millisecond),
		WithTickFunc(func(n int) { ticks.Store(int32(n)) }),
	)
	_, _ = w.SetTheme("ticking")

	done := make(chan struct{})
	go func() {
		_, _ = w.Submit(context.Background())
		close(done)
	}()

	time.Sleep(70 * time.Millisecond)
	assert.Greater(t, w.Elapsed(), 0, "counter advances while submitting")
	<-done

	assert.Greater(t, ticks.Load(), int32(0))
	assert.Equal(t, 0, w.Elapsed(), "counter resets on exit")
}

func TestWorkflow_DownloadUsesSameTextAsPreview(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&b, "%d,%d\n", i, i*i)
	}
	text := b.String()

	saver := &memorySaver{}
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{text: text}, WithSaver(saver))
	_, _ = w.SetTheme("squares")
	_, _ = w.SetDownload(true, "out")

	result, err := w.Submit(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Preview.Rows, DefaultPreviewRowCap)
	assert.Equal(t, 5000, result.Preview.TotalRows)
	assert.Equal(t, "mem://out.csv", result.SavedAs)
	assert.Equal(t, text, string(saver.files["out.csv"]))
}

func TestWorkflow_EmptyPayloadShownInPlaceOfTable(t *testing.T) {
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{text: "\n\n"})
	_, _ = w.SetTheme("nothing")

	result, err := w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome.Status)
	assert.Nil(t, result.Preview)
	assert.ErrorIs(t, result.PreviewErr, ErrEmptyPayload)
	assert.Equal(t, StateIdle, w.State())
}

func TestWorkflow_RecordsClientFromContext(t *testing.T) {
	rec := &memoryRecorder{}
	w := NewWorkflow(DefaultRegistry(), &stubGenerator{text: "a\n1\n"}, WithRecorder(rec))
	_, _ = w.SetTheme("people")

	ctx := ContextWithUserAgent(ContextWithIPAddress(context.Background(), "203.0.113.7"), "test-agent")
	_, err := w.Submit(ctx)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.subs, 1)
	sub := rec.subs[0]
	assert.Equal(t, "203.0.113.7", sub.IPAddress)
	assert.Equal(t, "test-agent", sub.UserAgent)
	assert.Equal(t, OutcomeSuccess, sub.Status)
	assert.Equal(t, len("a\n1\n"), sub.Bytes)
	assert.Equal(t, ModalityText, sub.Modality)
}
