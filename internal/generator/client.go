// Package generator is the HTTP client for the remote generation service.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JonMunkholm/synthgen/internal/core"
)

// GeneratePath is the generation endpoint relative to the base URL.
const GeneratePath = "/generate"

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned status %d", e.StatusCode)
}

// Client posts GenerationRequests to the generation service.
type Client struct {
	client *resty.Client
}

// New creates a client for baseURL. timeout bounds the transport; the
// workflow applies its own request deadline through the context.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().SetBaseURL(baseURL)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{client: c}
}

// Generate sends req and returns the response body as text. The body is read
// exactly once.
func (c *Client) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	r := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/csv, application/octet-stream, */*")

	switch req := req.(type) {
	case *core.JSONRequest:
		r.SetHeader("Content-Type", "application/json").SetBody(req)

	case *core.MultipartRequest:
		f, err := req.File.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", req.File.Name(), err)
		}
		defer f.Close()
		r.SetMultipartField("file", req.File.Name(), "text/csv", f).
			SetFormData(req.Fields())

	default:
		return "", fmt.Errorf("unsupported request type %T", req)
	}

	res, err := r.Post(GeneratePath)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", GeneratePath, err)
	}

	if !res.IsSuccess() {
		slog.Error("generation service returned error",
			"status_code", res.StatusCode(),
			"model", req.Model(),
			"body", truncate(res.String(), 512),
		)
		return "", &StatusError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	return string(res.Body()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
