package environment

import (
	"strings"
	"text/template"

	"github.com/GlintPay/gkcs/config"
	"github.com/Masterminds/sprig"
)

// Templates renders property values written as Go templates, with the sprig functions plus
// dashToUnderscore. Data is the same for every property, e.g. the pod's namespace and name.
type Templates struct {
	config config.GoTemplate
	data   map[string]any
	funcs  template.FuncMap
}

func NewTemplates(cfg config.GoTemplate, data map[string]any) *Templates {
	funcs := sprig.TxtFuncMap()
	funcs["dashToUnderscore"] = func(s string) string {
		return strings.ReplaceAll(s, "-", "_")
	}
	return &Templates{config: cfg.Validate(), data: data, funcs: funcs}
}

// Applies reports whether value contains a template action. A nil Templates never applies.
func (t *Templates) Applies(value string) bool {
	if t == nil || !t.config.Enabled {
		return false
	}
	return strings.Contains(value, t.config.LeftDelim)
}

func (t *Templates) Render(name string, value string) (string, error) {
	tmpl, err := template.New(name).Delims(t.config.LeftDelim, t.config.RightDelim).Funcs(t.funcs).Parse(value)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, t.data); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}
