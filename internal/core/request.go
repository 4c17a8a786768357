package core

import (
	"fmt"
	"strconv"
)

// RequestKind is the wire shape of a GenerationRequest.
type RequestKind string

const (
	RequestJSON      RequestKind = "json"
	RequestMultipart RequestKind = "multipart"
)

// GenerationRequest is the payload for one POST /generate call. It is
// implemented only by *JSONRequest and *MultipartRequest.
type GenerationRequest interface {
	Kind() RequestKind
	Model() string
	RowCount() int
	generationRequest()
}

// JSONRequest is sent for text-modality models.
type JSONRequest struct {
	GeneratorType string `json:"generator_type"`
	Theme         string `json:"theme"`
	Rows          int    `json:"rows"`
}

func (r *JSONRequest) Kind() RequestKind  { return RequestJSON }
func (r *JSONRequest) Model() string      { return r.GeneratorType }
func (r *JSONRequest) RowCount() int      { return r.Rows }
func (r *JSONRequest) generationRequest() {}

// MultipartRequest is sent for file-modality models.
type MultipartRequest struct {
	GeneratorType string
	File          UploadedFile
	Rows          int
}

func (r *MultipartRequest) Kind() RequestKind  { return RequestMultipart }
func (r *MultipartRequest) Model() string      { return r.GeneratorType }
func (r *MultipartRequest) RowCount() int      { return r.Rows }
func (r *MultipartRequest) generationRequest() {}

// Fields returns the non-file multipart fields. rows is sent as its string form.
func (r *MultipartRequest) Fields() map[string]string {
	return map[string]string{
		"generator_type": r.GeneratorType,
		"rows":           strconv.Itoa(r.Rows),
	}
}

// BuildRequest constructs the single request for form under profile. This is
// the only place the payload shape depends on modality.
func BuildRequest(form FormState, profile ModelProfile) (GenerationRequest, error) {
	rows := profile.Clamp(form.Rows)

	switch profile.Modality {
	case ModalityText:
		return &JSONRequest{
			GeneratorType: profile.ID,
			Theme:         form.Theme,
			Rows:          rows,
		}, nil
	case ModalityFile:
		if form.File == nil {
			return nil, &Error{Kind: KindEmptyInput, Field: FieldFile, Message: "no file selected"}
		}
		return &MultipartRequest{
			GeneratorType: profile.ID,
			File:          form.File,
			Rows:          rows,
		}, nil
	default:
		return nil, fmt.Errorf("model %s: unknown modality %q", profile.ID, profile.Modality)
	}
}
