package environment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/GlintPay/gkcs/metrics"
	"github.com/rs/zerolog/log"
)

const UnresolvedPropertyResult = ""

var placeholderRegex = regexp.MustCompile(`\$\{[^}]*}`)

// ExternalResolver serves placeholders that are not property names, such as
// `${k8s/secret:ns/name/key}`. Resolve reports (value, found, error).
type ExternalResolver interface {
	CanResolve(placeholder string) bool
	Resolve(ctx context.Context, placeholder string) (string, bool, error)
}

// PropertiesResolver resolves `${name}` and `${name:default}` references, and renders Go
// templates, across a flat property map. Resolution rewrites the map in place.
type PropertiesResolver struct {
	data      map[string]any
	external  ExternalResolver
	templates *Templates

	messages  []string
	errs      []error
	resolved  map[string]bool
	resolving map[string]bool
}

func NewPropertiesResolver(data map[string]any, external ExternalResolver, templates *Templates) *PropertiesResolver {
	return &PropertiesResolver{
		data:      data,
		external:  external,
		templates: templates,
		resolved:  make(map[string]bool),
		resolving: make(map[string]bool),
	}
}

// ResolvePlaceholdersFromTop resolves every property. Problems never abort resolution: the
// affected value becomes empty and the problem is returned, joined.
func (pr *PropertiesResolver) ResolvePlaceholdersFromTop(ctx context.Context) (map[string]any, error) {
	for propertyName := range pr.data {
		pr.resolveProperty(ctx, propertyName)
	}
	return pr.data, errors.Join(pr.errs...)
}

// Messages lists the non-fatal resolution problems, such as missing values
func (pr *PropertiesResolver) Messages() []string {
	return pr.messages
}

func (pr *PropertiesResolver) resolveProperty(ctx context.Context, propertyName string) {
	if pr.resolved[propertyName] {
		return
	}
	pr.resolving[propertyName] = true
	defer func() {
		delete(pr.resolving, propertyName)
		pr.resolved[propertyName] = true
	}()

	switch typedVal := pr.data[propertyName].(type) {
	case string:
		pr.data[propertyName] = pr.resolveString(ctx, propertyName, typedVal)
	case map[string]any:
		pr.resolveNested(ctx, propertyName, typedVal)
	case []any:
		for i, each := range typedVal {
			if s, ok := each.(string); ok {
				typedVal[i] = pr.resolveString(ctx, propertyName, s)
			}
		}
	case []string:
		for i, each := range typedVal {
			typedVal[i] = pr.resolveString(ctx, propertyName, each)
		}
	}
}

func (pr *PropertiesResolver) resolveNested(ctx context.Context, propertyName string, m map[string]any) {
	for k, v := range m {
		switch typedVal := v.(type) {
		case string:
			m[k] = pr.resolveString(ctx, k, typedVal)
		case map[string]any:
			pr.resolveNested(ctx, k, typedVal)
		}
	}
}

func (pr *PropertiesResolver) resolveString(ctx context.Context, propertyName string, value string) string {
	if pr.templates.Applies(value) {
		rendered, err := pr.templates.Render(propertyName, value)
		if err != nil {
			pr.addError("template", fmt.Errorf("property [%s]: %w", propertyName, err))
			return UnresolvedPropertyResult
		}
		value = rendered
	}

	if !strings.Contains(value, "${") {
		return value
	}

	return placeholderRegex.ReplaceAllStringFunc(value, func(foundMatch string) string {
		clause := strings.TrimSpace(foundMatch[2 : len(foundMatch)-1])
		if clause == "" {
			// ${} is not acceptable
			pr.addMessage("Missing placeholder [%s] for property [%s]", foundMatch, propertyName)
			return UnresolvedPropertyResult
		}

		if pr.external != nil && pr.external.CanResolve(clause) {
			return pr.resolveExternal(ctx, propertyName, clause)
		}

		sourceProperty, defaultValue, hasDefault := strings.Cut(clause, ":")

		if _, ok := pr.data[sourceProperty]; ok {
			if pr.resolving[sourceProperty] {
				pr.addError("overflow", fmt.Errorf("stack overflow found when resolving ${%s} for property [%s]", sourceProperty, propertyName))
				return UnresolvedPropertyResult
			}
			pr.resolveProperty(ctx, sourceProperty)

			switch currVal := pr.data[sourceProperty].(type) {
			case string:
				return currVal
			default:
				return fmt.Sprintf("%v", currVal)
			}
		}

		if hasDefault {
			return defaultValue
		}

		pr.addMessage("Missing value for property [%s]", sourceProperty)
		return UnresolvedPropertyResult
	})
}

func (pr *PropertiesResolver) resolveExternal(ctx context.Context, propertyName string, clause string) string {
	value, found, err := pr.external.Resolve(ctx, clause)
	if err != nil {
		pr.addError("external", fmt.Errorf("property [%s]: resolving ${%s}: %w", propertyName, clause, err))
		return UnresolvedPropertyResult
	}
	if !found {
		pr.addMessage("Missing value for property [%s]", clause)
		return UnresolvedPropertyResult
	}
	return value
}

func (pr *PropertiesResolver) addMessage(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	pr.messages = append(pr.messages, msg)
	metrics.PlaceholderFailures.WithLabelValues("missing").Inc()
	log.Warn().Msg(msg)
}

func (pr *PropertiesResolver) addError(reason string, err error) {
	pr.errs = append(pr.errs, err)
	metrics.PlaceholderFailures.WithLabelValues(reason).Inc()
	log.Error().Err(err).Msg("Property resolution failed")
}
