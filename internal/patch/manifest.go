package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// LegacyTestCommand is the script prefix upstream grammars use to run their tests
	LegacyTestCommand = "node --test"
	// TestCommand replaces LegacyTestCommand in fixture scripts
	TestCommand = "bun test"
	// BunVersionConstraint is the runtime requirement written into every fixture manifest
	BunVersionConstraint = ">=1.3.9"
)

// ErrInvalidManifest is returned for input that is not exactly one JSON document
var ErrInvalidManifest = errors.New("invalid JSON document")

const bunEngines = `{"bun":"` + BunVersionConstraint + `"}`

// TransformManifest rewrites a package.json document so the fixture runs as an ES
// module under bun. Existing keys keep their position and new keys are appended,
// so only the edited values differ from the input. Documents that are not JSON
// objects are returned untouched. Applying it twice yields the same result as
// applying it once.
func TransformManifest(data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidManifest
	}
	if !gjson.ParseBytes(data).IsObject() {
		return data, nil
	}

	out, err := sjson.SetBytes(data, "type", "module")
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetRawBytes(out, "engines", []byte(bunEngines))
	if err != nil {
		return nil, err
	}

	if scripts := gjson.GetBytes(out, "scripts"); scripts.IsObject() {
		raw, err := rewriteScripts(scripts)
		if err != nil {
			return nil, err
		}
		out, err = sjson.SetRawBytes(out, "scripts", raw)
		if err != nil {
			return nil, err
		}
	}

	return formatManifest(out)
}

// rewriteScripts rebuilds the scripts object with every legacy test command
// replaced. Keys are copied raw so escaping and order survive.
func rewriteScripts(scripts gjson.Result) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	buf.WriteByte('{')
	first := true
	scripts.ForEach(func(key, value gjson.Result) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		buf.WriteString(key.Raw)
		buf.WriteByte(':')
		if value.Type == gjson.String && strings.HasPrefix(value.Str, LegacyTestCommand) {
			var quoted []byte
			quoted, err = quote(strings.Replace(value.Str, LegacyTestCommand, TestCommand, 1))
			if err != nil {
				return false
			}
			buf.Write(quoted)
			return true
		}
		buf.WriteString(value.Raw)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// quote encodes s as a JSON string without HTML escaping
func quote(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// formatManifest re-indents data with two spaces and a trailing newline.
// Values are copied verbatim, numbers and escapes included.
func formatManifest(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// isPrivate reports whether the manifest sets "private": true
func isPrivate(data []byte) bool {
	return gjson.GetBytes(data, "private").Type == gjson.True
}
