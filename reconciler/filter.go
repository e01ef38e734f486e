package reconciler

import (
	"github.com/GlintPay/gkcs/config"
	"github.com/GlintPay/gkcs/resource"
	"k8s.io/apimachinery/pkg/labels"
)

// Filter decides which resources contribute property sources. A non-empty Includes list is
// authoritative and Excludes is then ignored. Labels, when set, must always match.
type Filter struct {
	Includes []string
	Excludes []string
	Labels   map[string]string
}

func FilterFrom(cfg config.SourceConfig) Filter {
	return Filter{Includes: cfg.Includes, Excludes: cfg.Excludes, Labels: cfg.Labels}
}

func (f Filter) Accepts(r resource.Resource) bool {
	if len(f.Labels) > 0 && !labels.SelectorFromSet(f.Labels).Matches(labels.Set(r.Labels)) {
		return false
	}
	if len(f.Includes) > 0 {
		return contains(f.Includes, r.Name)
	}
	return !contains(f.Excludes, r.Name)
}

func contains(names []string, name string) bool {
	for _, each := range names {
		if each == name {
			return true
		}
	}
	return false
}
