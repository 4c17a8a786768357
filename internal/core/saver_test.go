package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDirSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := DirSaver{Dir: dir}

	path, err := s.Save(context.Background(), "out.csv", []byte("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(dir, "out.csv") {
		t.Errorf("path = %q", path)
	}

	// Second save replaces content.
	if _, err := s.Save(context.Background(), "out.csv", []byte("c\n")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "c\n" {
		t.Errorf("content = %q, want %q", data, "c\n")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (temp file left behind?)", len(entries))
	}
}

func TestDirSaver_RejectsPaths(t *testing.T) {
	s := DirSaver{Dir: t.TempDir()}
	for _, name := range []string{"../escape.csv", "a/b.csv"} {
		if _, err := s.Save(context.Background(), name, []byte("x")); err == nil {
			t.Errorf("Save(%q) succeeded, want error", name)
		}
	}
}
