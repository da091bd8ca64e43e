package fixture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/schaermu/fixturesync/internal/refs"
)

func strPtr(s string) *string { return &s }

func TestParseManifest(t *testing.T) {
	data := []byte(`[
  ["json", "v1.0.0", null],
  ["php", "v2.0.0", "main"],
  ["typescript", "v0.23.2", null]
]`)

	got, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}

	want := []Spec{
		{Grammar: "json", Tag: "v1.0.0"},
		{Grammar: "php", Tag: "v2.0.0", Branch: strPtr("main")},
		{Grammar: "typescript", Tag: "v0.23.2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseManifest() mismatch (-want +got):\n%s", diff)
	}

	if got[0].Target() != refs.Tag("v1.0.0") {
		t.Errorf("expected tag target, got %v", got[0].Target())
	}
	if got[1].Target() != refs.Branch("main") {
		t.Errorf("expected branch target, got %v", got[1].Target())
	}
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "not json", data: `nope`, wantErr: "failed to parse fixtures manifest"},
		{name: "object instead of array", data: `{"json": "v1"}`, wantErr: "failed to parse fixtures manifest"},
		{name: "short tuple", data: `[["json", "v1"]]`, wantErr: "entry 0: expected 3 elements, got 2"},
		{name: "long tuple", data: `[["json", "v1", null, 1]]`, wantErr: "entry 0: expected 3 elements, got 4"},
		{name: "numeric tag", data: `[["json", "v1", null], ["c", 1, null]]`, wantErr: "entry 1: tag must be a string"},
		{name: "numeric branch", data: `[["json", "v1", 5]]`, wantErr: "branch must be a string or null"},
		{name: "empty grammar", data: `[["", "v1", null]]`, wantErr: "grammar name must not be empty"},
		{name: "duplicate grammar", data: `[["c", "v1", null], ["c", "v2", null]]`, wantErr: `entry 1: duplicate grammar "c"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseManifest_Empty(t *testing.T) {
	got, err := ParseManifest([]byte(`[]`))
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no specs, got %d", len(got))
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	if err := os.WriteFile(path, []byte(`[["rust", "v0.21.0", null]]`), 0644); err != nil {
		t.Fatal(err)
	}

	specs, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if len(specs) != 1 || specs[0].Grammar != "rust" {
		t.Errorf("unexpected specs: %+v", specs)
	}

	if _, err := LoadManifest(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestSpecMarshalJSON(t *testing.T) {
	specs := []Spec{
		{Grammar: "json", Tag: "v1.0.0"},
		{Grammar: "php", Tag: "v2.0.0", Branch: strPtr("main")},
	}
	data, err := json.Marshal(specs)
	if err != nil {
		t.Fatal(err)
	}
	want := `[["json","v1.0.0",null],["php","v2.0.0","main"]]`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestFilter(t *testing.T) {
	specs := []Spec{
		{Grammar: "c", Tag: "v1"},
		{Grammar: "go", Tag: "v2"},
		{Grammar: "php", Tag: "v3"},
	}

	all, err := Filter(specs, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("Filter(nil) = %v, %v", all, err)
	}

	got, err := Filter(specs, []string{"php", "c"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if diff := cmp.Diff([]Spec{specs[0], specs[2]}, got); diff != "" {
		t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
	}

	_, err = Filter(specs, []string{"go", "zig", "odin"})
	if err == nil || err.Error() != "unknown grammar(s): odin, zig" {
		t.Errorf("unexpected error: %v", err)
	}
}
