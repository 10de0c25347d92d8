package configs

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

// DefaultName is the embedded configuration used when no file is given.
const DefaultName = "default.yaml"

//go:embed *.yaml
var documents embed.FS

// Names lists the embedded configuration documents.
func Names() []string {
	names, err := fs.Glob(documents, "*.yaml")
	if err != nil {
		return nil
	}
	slices.Sort(names)
	return names
}

// Load returns an embedded configuration template. An empty name selects
// DefaultName.
func Load(name string) ([]byte, error) {
	if name == "" {
		name = DefaultName
	}
	data, err := documents.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("embedded config %q not found (available: %s)", name, strings.Join(Names(), ", "))
	}
	return data, nil
}
