package health

import (
	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
)

type opts struct {
	ChiMux          *chi.Mux
	ReadinessChecks map[string]healthcheck.Check
}

type Opt func(*opts)

func WithChiMux(mux *chi.Mux) Opt {
	return func(o *opts) {
		o.ChiMux = mux
	}
}

// WithReadinessCheck holds readiness back until check passes
func WithReadinessCheck(name string, check healthcheck.Check) Opt {
	return func(o *opts) {
		if o.ReadinessChecks == nil {
			o.ReadinessChecks = make(map[string]healthcheck.Check)
		}
		o.ReadinessChecks[name] = check
	}
}
