package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/schaermu/fixturesync/internal/refs"
)

// Spec describes one grammar fixture as listed in fixtures.json
type Spec struct {
	Grammar string
	Tag     string
	Branch  *string
}

// Target returns the ref the fixture should be checked out at
func (s Spec) Target() refs.Target {
	return refs.Resolve(s.Tag, s.Branch)
}

// UnmarshalJSON decodes the [grammar, tag, branch|null] tuple form
func (s *Spec) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("expected [grammar, tag, branch] array: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("expected 3 elements, got %d", len(tuple))
	}

	var spec Spec
	if err := json.Unmarshal(tuple[0], &spec.Grammar); err != nil {
		return fmt.Errorf("grammar name must be a string: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &spec.Tag); err != nil {
		return fmt.Errorf("tag must be a string: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(tuple[2]), []byte("null")) {
		var branch string
		if err := json.Unmarshal(tuple[2], &branch); err != nil {
			return fmt.Errorf("branch must be a string or null: %w", err)
		}
		spec.Branch = &branch
	}

	if spec.Grammar == "" {
		return fmt.Errorf("grammar name must not be empty")
	}

	*s = spec
	return nil
}

// MarshalJSON encodes the spec back into its tuple form
func (s Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Grammar, s.Tag, s.Branch})
}

// LoadManifest reads the fixture list from path
func LoadManifest(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a fixtures manifest, reporting the offending entry on error
func ParseManifest(data []byte) ([]Spec, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures manifest: %w", err)
	}

	specs := make([]Spec, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, entry := range raw {
		var spec Spec
		if err := json.Unmarshal(entry, &spec); err != nil {
			return nil, fmt.Errorf("invalid fixtures manifest entry %d: %w", i, err)
		}
		if seen[spec.Grammar] {
			return nil, fmt.Errorf("invalid fixtures manifest entry %d: duplicate grammar %q", i, spec.Grammar)
		}
		seen[spec.Grammar] = true
		specs = append(specs, spec)
	}

	return specs, nil
}

// Filter keeps only the specs whose grammar is listed in names, preserving manifest order.
// An empty names list keeps everything.
func Filter(specs []Spec, names []string) ([]Spec, error) {
	if len(names) == 0 {
		return specs, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.TrimSpace(name)] = true
	}

	result := make([]Spec, 0, len(names))
	for _, spec := range specs {
		if wanted[spec.Grammar] {
			result = append(result, spec)
			delete(wanted, spec.Grammar)
		}
	}

	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for name := range wanted {
			missing = append(missing, name)
		}
		slices.Sort(missing)
		return nil, fmt.Errorf("unknown grammar(s): %s", strings.Join(missing, ", "))
	}

	return result, nil
}
