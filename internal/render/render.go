package render

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"
)

// Options carries values exposed to config templates.
type Options struct {
	// DataDir is returned by the dataDir helper.
	DataDir string
	// LookupEnv resolves environment variables. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Result is a rendered document plus the environment it referenced.
type Result struct {
	Data []byte
	// Used lists referenced variable names, sorted.
	Used []string
}

type renderer struct {
	opts    Options
	used    map[string]struct{}
	missing map[string]struct{}
}

func newRenderer(opts Options) *renderer {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	return &renderer{opts: opts, used: map[string]struct{}{}, missing: map[string]struct{}{}}
}

func (r *renderer) lookup(key string) (string, bool) {
	r.used[key] = struct{}{}
	return r.opts.LookupEnv(key)
}

// RenderFile loads and renders a YAML template file.
func RenderFile(path string, opts Options) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read config: %w", err)
	}
	return RenderBytes(path, raw, opts)
}

// RenderBytes renders a YAML template from raw bytes. Variables read with
// env that are not set fail the render, all of them named in the error.
func RenderBytes(name string, raw []byte, opts Options) (Result, error) {
	if strings.TrimSpace(name) == "" {
		name = "config"
	}
	r := newRenderer(opts)
	tmpl, err := template.New(name).Funcs(r.funcs()).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return Result{}, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	execErr := tmpl.Execute(&buf, nil)
	if len(r.missing) > 0 {
		return Result{}, fmt.Errorf("missing env vars: %s", strings.Join(sortedKeys(r.missing), ", "))
	}
	if execErr != nil {
		return Result{}, fmt.Errorf("render template: %w", execErr)
	}
	return Result{Data: buf.Bytes(), Used: sortedKeys(r.used)}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
