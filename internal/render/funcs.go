package render

import (
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// funcs returns the helpers available to config templates:
//
//	env KEY            value of KEY, an error at the end of rendering if unset
//	envOr KEY DEF      value of KEY or DEF
//	dataDir ELEM...    path under the private data directory
//	default DEF VALUE  VALUE or DEF when VALUE is empty
func (r *renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"env": func(key string) string {
			value, ok := r.lookup(key)
			if !ok {
				r.missing[key] = struct{}{}
			}
			return value
		},
		"envOr": func(key, def string) string {
			if value, ok := r.lookup(key); ok {
				return value
			}
			return def
		},
		"dataDir": func(elem ...string) string {
			return filepath.Join(append([]string{r.opts.DataDir}, elem...)...)
		},
		"default": func(def, value string) string {
			if value == "" {
				return def
			}
			return value
		},
		"quote":      strconv.Quote,
		"lower":      strings.ToLower,
		"trimSuffix": strings.TrimSuffix,
	}
}
