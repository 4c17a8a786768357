package core

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"testing"
)

func TestPackageDocOnlyInDocFile(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}

	fset := token.NewFileSet()
	for _, name := range files {
		f, err := parser.ParseFile(fset, name, nil, parser.PackageClauseOnly|parser.ParseComments)
		if err != nil {
			t.Fatalf("ParseFile(%s) error = %v", name, err)
		}
		hasDoc := f.Doc != nil
		if name == "doc.go" && !hasDoc {
			t.Error("doc.go should carry the package comment")
		}
		if name != "doc.go" && hasDoc {
			t.Errorf("%s has a package comment; keep it in doc.go", name)
		}
	}
}
