package core

// workflow.go implements the generation request state machine:
//
//	Idle -> Validating -> Submitting -> (Success | Failed | Cancelled) -> Idle
//
// A Workflow owns one FormState. Only one submission may be validating or in
// flight at a time; a second Submit returns ErrSubmitInProgress without
// touching the network. The network call runs outside the lock so State,
// Elapsed and Form stay responsive while a request is pending.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRequestTimeout is the hard deadline for one generation request.
const DefaultRequestTimeout = 300 * time.Second

// DefaultOutputFileName is the download name offered before the user edits it.
const DefaultOutputFileName = "synthetic_data"

// Generator performs one generation request and returns the response body as
// text. Any non-success HTTP status must be reported as an error.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Saver stores a downloaded artifact and returns where it went.
type Saver interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
}

// Recorder receives a record of every dispatched submission.
type Recorder interface {
	Record(ctx context.Context, s Submission) error
}

// TransitionFunc observes state changes. It is called with the workflow lock
// held and must not call back into the Workflow.
type TransitionFunc func(from, to State)

// Option configures a Workflow.
type Option func(*Workflow)

// WithTimeout overrides DefaultRequestTimeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithTickInterval overrides the one-second elapsed counter interval.
func WithTickInterval(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.tick = d
		}
	}
}

// WithSaver sets where downloads are written.
func WithSaver(s Saver) Option {
	return func(w *Workflow) { w.saver = s }
}

// WithRecorder sets the submission history sink.
func WithRecorder(r Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

// WithRenderer sets the preview renderer.
func WithRenderer(r Renderer) Option {
	return func(w *Workflow) { w.renderer = r }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTransitionFunc registers a state change observer.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(w *Workflow) { w.onTransition = fn }
}

// WithTickFunc registers a callback for each elapsed-counter tick.
func WithTickFunc(fn func(seconds int)) Option {
	return func(w *Workflow) { w.onTick = fn }
}

// Workflow is one user's generation form and its request lifecycle.
type Workflow struct {
	registry *Registry
	gen      Generator
	saver    Saver
	recorder Recorder
	renderer Renderer
	timeout  time.Duration
	tick     time.Duration
	logger   *slog.Logger

	onTransition TransitionFunc
	onTick       func(int)

	mu      sync.Mutex
	state   State
	form    FormState
	errs    map[string]ValidationResult
	elapsed int
	last    *SubmitResult
}

// NewWorkflow creates a workflow with the registry's default model selected.
func NewWorkflow(registry *Registry, gen Generator, opts ...Option) *Workflow {
	w := &Workflow{
		registry: registry,
		gen:      gen,
		timeout:  DefaultRequestTimeout,
		tick:     time.Second,
		logger:   slog.Default(),
		state:    StateIdle,
		errs:     make(map[string]ValidationResult),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.form = w.defaultForm(registry.DefaultModel())
	return w
}

func (w *Workflow) defaultForm(modelID string) FormState {
	profile := w.registry.Lookup(modelID)
	return FormState{
		ModelID:        modelID,
		Rows:           profile.RowsMin,
		OutputFileName: DefaultOutputFileName,
	}
}

// transition must be called with w.mu held.
func (w *Workflow) transition(to State) {
	from := w.state
	w.state = to
	if w.onTransition != nil && from != to {
		w.onTransition(from, to)
	}
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Elapsed returns whole seconds spent in Submitting; zero outside it.
func (w *Workflow) Elapsed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

// Form returns a copy of the form state.
func (w *Workflow) Form() FormState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form
}

// Profile returns the profile of the selected model.
func (w *Workflow) Profile() ModelProfile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.registry.Lookup(w.form.ModelID)
}

// Errors returns the current field-level validation failures keyed by field.
func (w *Workflow) Errors() map[string]ValidationResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]ValidationResult, len(w.errs))
	for k, v := range w.errs {
		out[k] = v
	}
	return out
}

// LastResult returns the most recent submission result, or nil.
func (w *Workflow) LastResult() *SubmitResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// editable rejects edits until the last outcome has been delivered and the
// workflow is back in Idle.
func (w *Workflow) editable() error {
	if w.state != StateIdle {
		return ErrSubmitInProgress
	}
	return nil
}

// SelectModel switches models and resets the form to its defaults: rows at
// the model minimum, theme, file and download cleared, errors dropped.
// An empty id selects the registry default; an unknown id keeps the id with
// FallbackProfile bounds.
func (w *Workflow) SelectModel(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if id == "" {
		id = w.registry.DefaultModel()
	}
	w.form = w.defaultForm(id)
	w.errs = make(map[string]ValidationResult)
	w.last = nil
	return nil
}

// SetRows sets the row count, clamped into the selected model's bounds.
func (w *Workflow) SetRows(n int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return w.form.Rows, err
	}
	w.form.Rows = w.registry.Lookup(w.form.ModelID).Clamp(n)
	return w.form.Rows, nil
}

// SetTheme stores theme text and re-validates it.
func (w *Workflow) SetTheme(text string) (ValidationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return ValidationResult{}, err
	}
	w.form.Theme = text
	res := ValidateTheme(text)
	w.setFieldResult(res)
	return res, nil
}

// SetDownload toggles download and sets the output file name. The name is
// only validated while download is enabled.
func (w *Workflow) SetDownload(enabled bool, name string) (ValidationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return ValidationResult{}, err
	}
	w.form.DownloadEnabled = enabled
	w.form.OutputFileName = name
	if !enabled {
		delete(w.errs, FieldFileName)
		return valid(FieldFileName), nil
	}
	res := ValidateOutputFileName(name)
	w.setFieldResult(res)
	return res, nil
}

// AttachFile validates f and keeps it only if it passes. A failing file is
// discarded so a stale selection cannot be submitted. The structural check
// reads the content and runs without the lock held; the workflow is in
// Validating meanwhile.
func (w *Workflow) AttachFile(ctx context.Context, f UploadedFile) (ValidationResult, error) {
	w.mu.Lock()
	if err := w.editable(); err != nil {
		w.mu.Unlock()
		return ValidationResult{}, err
	}
	prev := w.state
	w.transition(StateValidating)
	w.form.File = nil
	w.mu.Unlock()

	res := ValidateUploadedFile(ctx, f)

	w.mu.Lock()
	defer w.mu.Unlock()
	if res.Valid {
		w.form.File = f
	}
	w.setFieldResult(res)
	w.transition(prev)
	return res, nil
}

// ClearFile drops the selected file.
func (w *Workflow) ClearFile() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.form.File = nil
}

// setFieldResult must be called with w.mu held.
func (w *Workflow) setFieldResult(res ValidationResult) {
	if res.Valid {
		delete(w.errs, res.Field)
		return
	}
	w.errs[res.Field] = res
}

// CanSubmit reports whether the Generate action should be enabled: no
// submission is running and the active inputs pass their synchronous checks.
func (w *Workflow) CanSubmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateIdle {
		return false
	}

	switch w.registry.Lookup(w.form.ModelID).Modality {
	case ModalityFile:
		if w.form.File == nil {
			return false
		}
		if _, bad := w.errs[FieldFile]; bad {
			return false
		}
	default:
		if !ValidateTheme(w.form.Theme).Valid {
			return false
		}
	}

	if w.form.DownloadEnabled && !ValidateOutputFileName(w.form.OutputFileName).Valid {
		return false
	}
	return true
}

// Submit validates the form one final time, sends exactly one generation
// request and settles its outcome. ctx is the cancellation token: the request
// deadline is derived from it and nothing else cancels a request in flight.
//
// Returns ErrSubmitInProgress for re-entrant calls and ValidationErrors when
// validation blocks the request. Request failures are not Go errors; they are
// reported in SubmitResult.Outcome.
func (w *Workflow) Submit(ctx context.Context) (*SubmitResult, error) {
	w.mu.Lock()
	if w.state != StateIdle {
		w.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	w.transition(StateValidating)
	form := w.form
	profile := w.registry.Lookup(form.ModelID)
	w.mu.Unlock()

	results := validateForSubmit(ctx, form, profile)
	var failed ValidationErrors
	for _, res := range results {
		if !res.Valid {
			failed = append(failed, res)
		}
	}

	w.mu.Lock()
	for _, res := range results {
		w.setFieldResult(res)
	}
	if len(failed) > 0 {
		if _, bad := w.errs[FieldFile]; bad {
			w.form.File = nil
		}
		w.transition(StateIdle)
		w.mu.Unlock()
		return &SubmitResult{ModelID: form.ModelID, Validation: results}, failed
	}

	req, err := BuildRequest(form, profile)
	if err != nil {
		w.transition(StateIdle)
		w.mu.Unlock()
		return nil, err
	}
	w.elapsed = 0
	w.transition(StateSubmitting)
	w.mu.Unlock()

	result := &SubmitResult{ID: uuid.NewString(), ModelID: profile.ID}
	logger := w.logger.With("submission_id", result.ID, "model", profile.ID, "rows", req.RowCount())
	logger.Info("generation request dispatched", "kind", req.Kind())

	start := time.Now()
	stopTicker := w.startTicker()
	outcome := w.dispatch(ctx, req, logger)
	stopTicker()
	result.Duration = time.Since(start)
	result.Outcome = outcome

	w.mu.Lock()
	w.elapsed = 0
	w.form.File = nil
	w.transition(outcomeState(outcome.Status))
	w.mu.Unlock()

	if outcome.Status == OutcomeSuccess {
		w.deliver(ctx, form, result, logger)
	}

	w.mu.Lock()
	w.last = result
	w.transition(StateIdle)
	w.mu.Unlock()

	w.record(ctx, profile, req, result, logger)
	return result, nil
}

// validateForSubmit re-runs every check required for the active modality.
func validateForSubmit(ctx context.Context, form FormState, profile ModelProfile) []ValidationResult {
	var results []ValidationResult
	switch profile.Modality {
	case ModalityFile:
		results = append(results, ValidateUploadedFile(ctx, form.File))
	default:
		results = append(results, ValidateTheme(form.Theme))
	}
	if form.DownloadEnabled {
		results = append(results, ValidateOutputFileName(form.OutputFileName))
	}
	return results
}

// dispatch runs the request under the deadline. A response that arrives after
// the deadline is dropped: the buffered channel lets the goroutine finish
// without anyone reading it.
func (w *Workflow) dispatch(ctx context.Context, req GenerationRequest, logger *slog.Logger) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		text, err := w.gen.Generate(reqCtx, req)
		done <- reply{text: text, err: err}
	}()

	select {
	case r := <-done:
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return timedOutOutcome(logger, reqCtx.Err())
		}
		if r.err != nil {
			return failedOutcome(logger, r.err)
		}
		return Outcome{Status: OutcomeSuccess, CSVText: r.text}
	case <-reqCtx.Done():
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return timedOutOutcome(logger, reqCtx.Err())
		}
		return failedOutcome(logger, reqCtx.Err())
	}
}

func timedOutOutcome(logger *slog.Logger, cause error) Outcome {
	logger.Warn("generation request timed out", "error", cause)
	return Outcome{
		Status:  OutcomeCancelled,
		Kind:    KindRequestTimedOut,
		Message: MessageFor(KindRequestTimedOut).Message,
	}
}

func failedOutcome(logger *slog.Logger, cause error) Outcome {
	logger.Error("generation request failed", "error", cause)
	msg := MessageFor(KindRequestFailed).Message
	if errors.Is(cause, ErrTooManyGenerations) {
		msg = MapError(cause).Message
	}
	return Outcome{
		Status:  OutcomeError,
		Kind:    KindRequestFailed,
		Message: msg,
	}
}

func outcomeState(s OutcomeStatus) State {
	switch s {
	case OutcomeSuccess:
		return StateSuccess
	case OutcomeCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}

// deliver renders the preview and saves the download from the same text.
func (w *Workflow) deliver(ctx context.Context, form FormState, result *SubmitResult, logger *slog.Logger) {
	text := result.Outcome.CSVText

	table, err := w.renderer.Render(text)
	if err != nil {
		result.PreviewErr = err
		logger.Warn("preview not rendered", "error", err)
	} else {
		result.Preview = table
	}

	if !form.DownloadEnabled || w.saver == nil {
		return
	}
	name := form.OutputFileName + ".csv"
	location, err := w.saver.Save(ctx, name, []byte(text))
	if err != nil {
		result.SaveErr = err
		logger.Error("download not saved", "name", name, "error", err)
		return
	}
	result.SavedAs = location
	logger.Info("download saved", "name", name, "location", location, "bytes", len(text))
}

func (w *Workflow) record(ctx context.Context, profile ModelProfile, req GenerationRequest, result *SubmitResult, logger *slog.Logger) {
	if w.recorder == nil {
		return
	}
	s := Submission{
		ID:        result.ID,
		ModelID:   profile.ID,
		Modality:  profile.Modality,
		Rows:      req.RowCount(),
		Status:    result.Outcome.Status,
		Kind:      result.Outcome.Kind,
		Message:   result.Outcome.Message,
		Bytes:     len(result.Outcome.CSVText),
		Duration:  result.Duration,
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if err := w.recorder.Record(context.WithoutCancel(ctx), s); err != nil {
		logger.Warn("submission not recorded", "error", err)
	}
}

// startTicker increments the elapsed counter every tick until the returned
// stop function is called. Stop waits for the ticker goroutine to exit.
func (w *Workflow) startTicker() func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.tick)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				w.mu.Lock()
				w.elapsed++
				n := w.elapsed
				w.mu.Unlock()
				if w.onTick != nil {
					w.onTick(n)
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
