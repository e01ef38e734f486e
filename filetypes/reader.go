// Package filetypes parses structured configuration files held in ConfigMap/Secret keys or
// mounted volumes into flat property maps.
package filetypes

import (
	"path/filepath"
	"sort"
	"strings"
)

// Reader parses one family of structured files
type Reader interface {
	// Extensions lists the lower-case file extensions handled, with the leading dot
	Extensions() []string
	Read(data []byte) (map[string]any, error)
}

// Decrypter turns an encrypted document of the given format ("yaml", "json") into plaintext.
// Plain documents come back unchanged.
type Decrypter interface {
	Decrypt(data []byte, format string) ([]byte, error)
}

// Registry selects a Reader by file extension, case-insensitively
type Registry struct {
	readers map[string]Reader
}

func NewRegistry(readers ...Reader) *Registry {
	r := &Registry{readers: make(map[string]Reader)}
	for _, each := range readers {
		for _, ext := range each.Extensions() {
			r.readers[strings.ToLower(ext)] = each
		}
	}
	return r
}

// DefaultRegistry handles YAML and JSON (both SOPS-aware through decrypter) and .properties files
func DefaultRegistry(decrypter Decrypter) *Registry {
	return NewRegistry(YamlReader{Decrypter: decrypter}, JsonReader{Decrypter: decrypter}, PropertiesReader{})
}

// ForKey returns the reader for a file name or data key, if its extension is recognised
func (r *Registry) ForKey(key string) (Reader, bool) {
	ext := strings.ToLower(filepath.Ext(key))
	if ext == "" {
		return nil, false
	}
	reader, ok := r.readers[ext]
	return reader, ok
}

// Extensions lists the recognised extensions, sorted
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
