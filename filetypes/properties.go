package filetypes

import (
	"fmt"

	"github.com/magiconair/properties"
)

// PropertiesReader reads Java-style .properties files. ${...} references are left for the
// environment to resolve, so expansion is disabled here.
type PropertiesReader struct{}

func (PropertiesReader) Extensions() []string {
	return []string{".properties"}
}

func (PropertiesReader) Read(data []byte) (map[string]any, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}

	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid properties: %w", err)
	}

	out := make(map[string]any, p.Len())
	for k, v := range p.Map() {
		out[k] = v
	}
	return out, nil
}
