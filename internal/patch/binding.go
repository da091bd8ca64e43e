package patch

import (
	"embed"
	"path"
	"strings"
)

const (
	// BindingTestPath is the node binding test inside a fixture
	BindingTestPath = "bindings/node/binding_test.js"

	legacyFrameworkMarker = "node:test"
	frameworkMarker       = "bun:test"

	// templateVersion selects the directory under templates/ holding the replacement tests
	templateVersion = "v1"
)

// Shape is one of the known upstream layouts of a binding test
type Shape int

const (
	// ShapeDefault is the single-grammar test most grammars ship
	ShapeDefault Shape = iota
	// ShapePHP is the describe/it test over the php and php_only exports
	ShapePHP
	// ShapeTypeScript loads the ./typescript and ./tsx sub-grammars
	ShapeTypeScript
)

func (s Shape) String() string {
	switch s {
	case ShapePHP:
		return "php"
	case ShapeTypeScript:
		return "typescript"
	default:
		return "default"
	}
}

// Classify sniffs which upstream layout a binding test follows
func Classify(content string) Shape {
	switch {
	case strings.Contains(content, "php_only"):
		return ShapePHP
	case strings.Contains(content, "./typescript"), strings.Contains(content, "./tsx"):
		return ShapeTypeScript
	default:
		return ShapeDefault
	}
}

//go:embed templates
var templateFS embed.FS

var templates = map[Shape]string{
	ShapeDefault:    mustTemplate("default.js"),
	ShapePHP:        mustTemplate("php.js"),
	ShapeTypeScript: mustTemplate("typescript.js"),
}

func mustTemplate(name string) string {
	data, err := templateFS.ReadFile(path.Join("templates", templateVersion, name))
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Template returns the replacement binding test for shape
func Template(shape Shape) string {
	return templates[shape]
}
