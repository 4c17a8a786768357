package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/synthgen/internal/core"
)

func TestGenerate_JSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/csv")
		io.WriteString(w, "name,age\nAnn,7\n")
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	text, err := c.Generate(context.Background(), &core.JSONRequest{GeneratorType: "merlin", Theme: "patients", Rows: 10})
	require.NoError(t, err)

	assert.Equal(t, "name,age\nAnn,7\n", text)
	assert.Equal(t, map[string]any{"generator_type": "merlin", "theme": "patients", "rows": float64(10)}, got)
}

func TestGenerate_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "ydata", r.FormValue("generator_type"))
		assert.Equal(t, "25", r.FormValue("rows"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "seed.csv", hdr.Filename)
		assert.Equal(t, "a,b\n1,2\n3,4\n", string(data))

		io.WriteString(w, "a,b\n5,6\n")
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	req := &core.MultipartRequest{
		GeneratorType: "ydata",
		File:          &core.MemoryFile{FileName: "seed.csv", Data: []byte("a,b\n1,2\n3,4\n")},
		Rows:          25,
	}
	text, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n5,6\n", text)
}

func TestGenerate_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), &core.JSONRequest{GeneratorType: "gold", Theme: "x", Rows: 1})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "model exploded")
}

func TestGenerate_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(srv.URL, 0)
	_, err := c.Generate(ctx, &core.JSONRequest{GeneratorType: "merlin", Theme: "x", Rows: 1})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestGenerate_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)
	_, err := c.Generate(context.Background(), &core.JSONRequest{GeneratorType: "merlin", Theme: "x", Rows: 1})
	assert.Error(t, err)
}
