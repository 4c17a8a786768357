package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/synthgen/internal/core"
	"github.com/JonMunkholm/synthgen/internal/history"
	"github.com/JonMunkholm/synthgen/internal/logging"
	"github.com/JonMunkholm/synthgen/internal/web/templates"
)

const (
	// formOverhead is allowed on top of the upload limit for the other form
	// fields and multipart framing.
	formOverhead = 1 << 20

	multipartMemory = 32 << 20
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndex sends the root path to the generator page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/generator", http.StatusFound)
}

// handleGenerator renders the generator page. A ?model= parameter switches
// models, which resets the form.
func (s *Server) handleGenerator(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)

	if id := r.URL.Query().Get("model"); id != "" && id != sess.wf.Form().ModelID {
		err := sess.wf.SelectModel(id)
		switch {
		case err == nil:
			sess.reset()
		case !errors.Is(err, core.ErrSubmitInProgress):
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
	}

	s.renderGenerator(w, r, sess, http.StatusOK)
}

// handleSelectModel switches models from a form post.
func (s *Server) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, fmt.Errorf("parse form: %w", err), http.StatusBadRequest)
		return
	}

	if err := sess.wf.SelectModel(r.FormValue("model")); err != nil {
		s.respondError(w, r, err, http.StatusConflict)
		return
	}
	sess.reset()

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, newModelResponse(sess.wf.Profile(), s.registry.DefaultModel()))
		return
	}
	if isHTMX(r) {
		s.renderGenerator(w, r, sess, http.StatusOK)
		return
	}
	http.Redirect(w, r, "/generator?model="+url.QueryEscape(sess.wf.Form().ModelID), http.StatusSeeOther)
}

// generateInput is the submitted form, from either a browser form post or a
// JSON body.
type generateInput struct {
	Model          string `json:"model"`
	Theme          string `json:"theme"`
	Rows           *int   `json:"rows"`
	Download       bool   `json:"download"`
	OutputFileName string `json:"outputFileName"`

	file core.UploadedFile
}

// handleGenerate applies the submitted form to the session's workflow and
// submits it. The request is not bound to the client connection: once
// dispatched it runs to its own deadline.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)

	in, status, err := s.readGenerateInput(w, r)
	if err != nil {
		s.respondError(w, r, err, status)
		return
	}

	fileRes, err := s.applyInput(r.Context(), sess, in)
	if err != nil {
		s.respondError(w, r, err, http.StatusConflict)
		return
	}
	if !fileRes.Valid {
		s.respondValidation(w, r, sess, core.ValidationErrors{fileRes})
		return
	}

	ctx := WithRequestMetadata(context.WithoutCancel(r.Context()), r)
	result, err := sess.wf.Submit(ctx)

	var verrs core.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		s.respondValidation(w, r, sess, verrs)
		return
	case errors.Is(err, core.ErrSubmitInProgress):
		s.respondError(w, r, err, http.StatusConflict)
		return
	case err != nil:
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	view, banner := s.resultView(sess, result)
	sess.setView(view, banner)

	logging.FromContext(r.Context()).Info("generation settled",
		"submission_id", result.ID,
		"status", result.Outcome.Status,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if wantsJSON(r) {
		writeJSON(w, outcomeHTTPStatus(result.Outcome.Status), newGenerateResponse(result, view, banner))
		return
	}
	s.renderGenerator(w, r, sess, http.StatusOK)
}

// readGenerateInput decodes a JSON, multipart or urlencoded body. The body is
// capped at the upload limit plus formOverhead.
func (s *Server) readGenerateInput(w http.ResponseWriter, r *http.Request) (generateInput, int, error) {
	var in generateInput
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+formOverhead)

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, bodyErrorStatus(err), bodyError(err)
		}
		return in, 0, nil
	}

	if err := parseForm(r); err != nil {
		return in, bodyErrorStatus(err), bodyError(err)
	}

	in.Model = r.FormValue("model")
	in.Theme = r.FormValue("theme")
	in.OutputFileName = r.FormValue("outputFileName")
	in.Download = isChecked(r.FormValue("download"))
	if v := r.FormValue("rows"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			in.Rows = &n
		}
	}

	f, err := formFile(r)
	if err != nil {
		return in, bodyErrorStatus(err), bodyError(err)
	}
	in.file = f
	return in, 0, nil
}

// applyInput copies the submitted values into the workflow. It returns the
// file validation result when a file was attached and failed, so the more
// specific message is not replaced by "no file selected" on submit.
func (s *Server) applyInput(ctx context.Context, sess *session, in generateInput) (core.ValidationResult, error) {
	wf := sess.wf
	ok := core.ValidationResult{Field: core.FieldFile, Valid: true}

	if in.Model != "" && in.Model != wf.Form().ModelID {
		if err := wf.SelectModel(in.Model); err != nil {
			return ok, err
		}
		sess.reset()
	}
	if in.Rows != nil {
		if _, err := wf.SetRows(*in.Rows); err != nil {
			return ok, err
		}
	}

	if wf.Profile().Modality == core.ModalityFile {
		if in.file != nil {
			res, err := wf.AttachFile(ctx, in.file)
			if err != nil {
				return ok, err
			}
			if !res.Valid {
				return res, nil
			}
		}
	} else if _, err := wf.SetTheme(in.Theme); err != nil {
		return ok, err
	}

	name := in.OutputFileName
	if name == "" && !in.Download {
		name = wf.Form().OutputFileName
	}
	if _, err := wf.SetDownload(in.Download, name); err != nil {
		return ok, err
	}
	return ok, nil
}

// handleValidateFile validates and attaches a CSV as soon as it is selected.
func (s *Server) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+formOverhead)

	if err := parseForm(r); err != nil {
		s.respondError(w, r, bodyError(err), bodyErrorStatus(err))
		return
	}
	f, err := formFile(r)
	if err != nil {
		s.respondError(w, r, bodyError(err), bodyErrorStatus(err))
		return
	}

	res, err := sess.wf.AttachFile(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err, http.StatusConflict)
		return
	}

	status := http.StatusOK
	if !res.Valid {
		status = http.StatusUnprocessableEntity
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := templates.FieldError(res, true).Render(r.Context(), w); err != nil {
			s.logger.Error("render field error", "error", err)
		}
	case wantsJSON(r):
		writeJSON(w, status, newFieldResponse(res))
	default:
		s.renderGenerator(w, r, sess, status)
	}
}

// handleListModels returns the model roster.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	def := s.registry.DefaultModel()
	models := s.registry.All()

	resp := struct {
		Default string          `json:"default"`
		Models  []modelResponse `json:"models"`
	}{Default: def, Models: make([]modelResponse, 0, len(models))}

	for _, m := range models {
		resp.Models = append(resp.Models, newModelResponse(m, def))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus reports the session's workflow state and server load.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	wf := sess.wf

	resp := struct {
		State     core.State          `json:"state"`
		Elapsed   int                 `json:"elapsed"`
		Model     string              `json:"model"`
		CanSubmit bool                `json:"canSubmit"`
		Sessions  int                 `json:"sessions"`
		Limiter   *core.LimiterStatus `json:"limiter,omitempty"`
	}{
		State:     wf.State(),
		Elapsed:   wf.Elapsed(),
		Model:     wf.Form().ModelID,
		CanSubmit: wf.CanSubmit(),
		Sessions:  s.sessions.Len(),
	}
	if s.limiter != nil {
		st := s.limiter.Status()
		resp.Limiter = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDownload serves the CSV produced by a submission with download
// enabled, byte for byte as the generator returned it.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	id := chi.URLParam(r, "id")

	d, ok := sess.file(id)
	if !ok {
		s.respondError(w, r, fmt.Errorf("download not found: %s", id), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(d.content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(d.content); err != nil {
		logging.FromContext(r.Context()).Warn("download write failed", "error", err)
	}
}

// handleHistory lists recent submissions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Submissions []core.Submission `json:"submissions"`
	}{Submissions: []core.Submission{}}

	if s.history != nil {
		limit := parseIntParam(r, "limit", history.DefaultRecentLimit)
		subs, err := s.history.Recent(r.Context(), limit)
		if err != nil {
			s.respondError(w, r, fmt.Errorf("load history: %w", err), http.StatusInternalServerError)
			return
		}
		if subs != nil {
			resp.Submissions = subs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// renderGenerator writes the page, or just its body for HTMX requests.
func (s *Server) renderGenerator(w http.ResponseWriter, r *http.Request, sess *session, status int) {
	params := s.generatorParams(sess)

	component := templates.GeneratorPage(params)
	if isHTMX(r) {
		component = templates.GeneratorBody(params)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := component.Render(r.Context(), w); err != nil {
		s.logger.Error("render generator page", "error", err)
	}
}

func (s *Server) generatorParams(sess *session) templates.GeneratorParams {
	wf := sess.wf
	state := wf.State()
	result, banner := sess.view()

	return templates.GeneratorParams{
		Models:    s.registry.All(),
		Profile:   wf.Profile(),
		Form:      wf.Form(),
		State:     state,
		Elapsed:   wf.Elapsed(),
		Busy:      state == core.StateValidating || state == core.StateSubmitting,
		CanSubmit: wf.CanSubmit(),
		Errors:    wf.Errors(),
		Banner:    banner,
		Result:    result,
		Examples:  core.ExamplePrompts,
		MaxTheme:  core.MaxThemeLength,
		MaxUpload: s.cfg.Upload.MaxFileSize,
	}
}

// respondValidation reports blocked submissions. Field errors are already
// recorded on the workflow, so the HTML page shows them next to their inputs.
func (s *Server) respondValidation(w http.ResponseWriter, r *http.Request, sess *session, verrs core.ValidationErrors) {
	if wantsJSON(r) {
		fields := make([]fieldResponse, 0, len(verrs))
		for _, res := range verrs {
			fields = append(fields, newFieldResponse(res))
		}
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			Error  string          `json:"error"`
			Fields []fieldResponse `json:"fields"`
		}{Error: "validation failed", Fields: fields})
		return
	}
	s.renderGenerator(w, r, sess, http.StatusUnprocessableEntity)
}

// resultView turns a settled submission into what the page shows. A download
// saved by the session is claimed under the submission id.
func (s *Server) resultView(sess *session, res *core.SubmitResult) (*templates.ResultView, *templates.Banner) {
	if res.Outcome.Status != core.OutcomeSuccess {
		msg := core.MessageFor(res.Outcome.Kind)
		return nil, &templates.Banner{
			Level:   "error",
			Message: res.Outcome.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		}
	}

	view := &templates.ResultView{
		ID:       res.ID,
		Preview:  res.Preview,
		Duration: res.Duration,
	}
	if res.PreviewErr != nil {
		msg := core.MapError(res.PreviewErr)
		view.PreviewErr = &templates.Banner{Level: "warning", Message: msg.Message, Action: msg.Action, Code: msg.Code}
	}
	if d, ok := sess.claim(res.ID); ok {
		view.DownloadURL = "/api/results/" + url.PathEscape(res.ID) + "/download"
		view.FileName = d.name
	}

	var banner *templates.Banner
	if res.SaveErr != nil {
		banner = &templates.Banner{Level: "warning", Message: "The data was generated but the download could not be prepared"}
	}
	return view, banner
}

// outcomeHTTPStatus maps a settled outcome to the JSON response status.
func outcomeHTTPStatus(status core.OutcomeStatus) int {
	switch status {
	case core.OutcomeSuccess:
		return http.StatusOK
	case core.OutcomeCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

type modelResponse struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Modality core.Modality `json:"modality"`
	RowsMin  int           `json:"rowsMin"`
	RowsMax  int           `json:"rowsMax"`
	Default  bool          `json:"default"`
}

func newModelResponse(p core.ModelProfile, defaultID string) modelResponse {
	return modelResponse{
		ID:       p.ID,
		Label:    p.Label,
		Modality: p.Modality,
		RowsMin:  p.RowsMin,
		RowsMax:  p.RowsMax,
		Default:  p.ID == defaultID,
	}
}

type fieldResponse struct {
	Field   string    `json:"field"`
	Valid   bool      `json:"valid"`
	Kind    core.Kind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

func newFieldResponse(res core.ValidationResult) fieldResponse {
	return fieldResponse{Field: res.Field, Valid: res.Valid, Kind: res.Kind, Message: res.Message}
}

type generateResponse struct {
	ID           string             `json:"id"`
	Status       core.OutcomeStatus `json:"status"`
	Kind         core.Kind          `json:"kind,omitempty"`
	Message      string             `json:"message,omitempty"`
	Code         string             `json:"code,omitempty"`
	Preview      *core.PreviewTable `json:"preview,omitempty"`
	PreviewError string             `json:"previewError,omitempty"`
	DownloadURL  string             `json:"downloadUrl,omitempty"`
	FileName     string             `json:"fileName,omitempty"`
	DurationMs   int64              `json:"durationMs"`
}

func newGenerateResponse(res *core.SubmitResult, view *templates.ResultView, banner *templates.Banner) generateResponse {
	resp := generateResponse{
		ID:         res.ID,
		Status:     res.Outcome.Status,
		Kind:       res.Outcome.Kind,
		Message:    res.Outcome.Message,
		DurationMs: res.Duration.Milliseconds(),
	}
	if banner != nil {
		resp.Code = banner.Code
		if resp.Message == "" {
			resp.Message = banner.Message
		}
	}
	if view != nil {
		resp.Preview = view.Preview
		resp.DownloadURL = view.DownloadURL
		resp.FileName = view.FileName
		if view.PreviewErr != nil {
			resp.PreviewError = view.PreviewErr.Message
		}
	}
	return resp
}

// parseForm parses a multipart or urlencoded body.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	return err
}

// formFile reads the "file" part into memory. It returns nil when no file
// was sent.
func formFile(r *http.Request) (core.UploadedFile, error) {
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &core.MemoryFile{FileName: header.Filename, Data: data}, nil
}

func bodyError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return fmt.Errorf("%w: file too large", err)
	}
	return fmt.Errorf("read request: %w", err)
}

func bodyErrorStatus(err error) int {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func isChecked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
