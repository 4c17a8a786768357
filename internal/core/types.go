package core

// types.go holds the workflow's data model: model profiles, form state,
// uploaded files, outcomes and submission records.

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Modality is the kind of input a generator model consumes.
type Modality string

const (
	ModalityText Modality = "text"
	ModalityFile Modality = "file"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	return m == ModalityText || m == ModalityFile
}

// ModelProfile describes one generator model.
type ModelProfile struct {
	ID       string   // Identifier sent as generator_type: "merlin"
	Label    string   // Display name: "Merlin Generator"
	Modality Modality // Theme text or uploaded CSV
	RowsMin  int      // Smallest row count the model accepts (>= 1)
	RowsMax  int      // Largest row count the model accepts (>= RowsMin)
}

// Clamp returns n constrained to [RowsMin, RowsMax].
func (p ModelProfile) Clamp(n int) int {
	if n < p.RowsMin {
		return p.RowsMin
	}
	if n > p.RowsMax {
		return p.RowsMax
	}
	return n
}

// UploadedFile is a user-selected file. Open may be called more than once;
// each call returns a fresh reader positioned at the start of the content.
type UploadedFile interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// MemoryFile is an UploadedFile held in memory (e.g. from a multipart form).
type MemoryFile struct {
	FileName string
	Data     []byte
}

func (f *MemoryFile) Name() string { return f.FileName }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// DiskFile is an UploadedFile read from the local filesystem.
type DiskFile struct {
	Path string
}

func (f *DiskFile) Name() string { return filepath.Base(f.Path) }

func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// FormState is the mutable form owned by a Workflow.
type FormState struct {
	ModelID         string
	Rows            int
	Theme           string
	File            UploadedFile // nil when no file is selected
	DownloadEnabled bool
	OutputFileName  string
}

// State is a Workflow state.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// OutcomeStatus is how a generation request settled.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeError     OutcomeStatus = "error"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the settled result of one generation request.
type Outcome struct {
	Status  OutcomeStatus
	CSVText string // Set when Status is OutcomeSuccess
	Kind    Kind   // Set when Status is OutcomeError or OutcomeCancelled
	Message string // User-facing banner message
}

// SubmitResult is everything a frontend needs after Submit returns.
type SubmitResult struct {
	ID         string
	ModelID    string
	Outcome    Outcome
	Preview    *PreviewTable // nil unless the outcome succeeded and rendered
	PreviewErr error         // EmptyPayload or ParseFailure from the renderer
	SavedAs    string        // Location returned by the Saver, if download was enabled
	SaveErr    error
	Duration   time.Duration
	Validation []ValidationResult // Field results when submission was blocked
}

// Submission is the record of one dispatched generation request.
type Submission struct {
	ID        string        `json:"id"`
	ModelID   string        `json:"modelId"`
	Modality  Modality      `json:"modality"`
	Rows      int           `json:"rows"`
	Status    OutcomeStatus `json:"status"`
	Kind      Kind          `json:"kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Bytes     int           `json:"bytes"`
	Duration  time.Duration `json:"durationNs"`
	IPAddress string        `json:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}
