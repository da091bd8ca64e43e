package projectroot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFind(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "test", "fixtures", "fixtures.json")
	if err := os.MkdirAll(filepath.Dir(manifest), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(manifest, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(root, "test", "fixtures", "grammars", "json", "src")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		start string
	}{
		{name: "root itself", start: root},
		{name: "nested directory", start: nested},
		{name: "marker directory", start: filepath.Dir(manifest)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Find(tt.start, Marker)
			if err != nil {
				t.Fatalf("Find returned error: %v", err)
			}
			if got != root {
				t.Errorf("Find(%s) = %s, want %s", tt.start, got, root)
			}
		})
	}
}

func TestFind_NotFound(t *testing.T) {
	_, err := Find(t.TempDir(), "no/such/marker-7c1f.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFromWorkingDir(t *testing.T) {
	root, err := FromWorkingDir()
	if err != nil {
		t.Fatalf("FromWorkingDir returned error: %v", err)
	}
	if !filepath.IsAbs(root) {
		t.Errorf("expected absolute path, got %s", root)
	}
}

func TestModule(t *testing.T) {
	root, err := Module()
	if err != nil {
		t.Fatalf("Module returned error: %v", err)
	}

	goMod := filepath.Join(root, "go.mod")
	if _, err := os.Stat(goMod); err != nil {
		t.Fatalf("go.mod not found at %s: %v", goMod, err)
	}
}
