package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/GlintPay/gkcs/config"
	"github.com/GlintPay/gkcs/propertysource"
	"github.com/GlintPay/gkcs/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"
	"github.com/riandyrn/otelchi"
	"github.com/rs/zerolog/log"
)

const (
	applicationJSON = "application/json"
)

// Discovery is the service discovery surface exposed over HTTP
type Discovery interface {
	GetServiceIDs() []string
	GetInstances(serviceID string) ([]services.Instance, error)
	Has(serviceID string) bool
}

// Configuration is the resolved environment exposed over HTTP
type Configuration interface {
	Properties() map[string]any
	Get(key string) (any, bool)
	Sources() []propertysource.PropertySource
	Precedence() string
}

type Routing struct {
	ServerName   string
	ParentRouter chi.Router

	AppConfig   config.ApplicationConfiguration
	Discovery   Discovery
	Environment Configuration
}

type Property struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (rtr *Routing) SetupFunctionalRoutes(r chi.Router) error {
	if e := rtr.enableOTelForRouter(r); e != nil {
		return e
	}
	r.Use(httplog.RequestLogger(log.Logger))

	if rtr.Discovery != nil {
		r.Get("/services", rtr.serviceIDsHandler())
		r.Get("/services/{serviceId}", rtr.instancesHandler())
	}
	if rtr.Environment != nil {
		r.Get("/propertysources", rtr.propertySourcesHandler())
		r.Get("/env", rtr.environmentHandler())
		r.Get("/env/{key}", rtr.propertyHandler())
	}
	return nil
}

func (rtr *Routing) serviceIDsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := rtr.Discovery.GetServiceIDs()
		if ids == nil {
			ids = []string{}
		}
		rtr.writeJSON(w, r, ids)
	}
}

func (rtr *Routing) instancesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID := chi.URLParam(r, "serviceId")
		if !rtr.Discovery.Has(serviceID) {
			rtr.writeStatus(w, http.StatusNotFound, "unknown service: "+serviceID)
			return
		}

		instances, err := rtr.Discovery.GetInstances(serviceID)
		if err != nil {
			if errors.Is(err, services.ErrPortNotFound) {
				rtr.writeStatus(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			rtr.writeError(w, err)
			return
		}
		if instances == nil {
			instances = []services.Instance{}
		}
		rtr.writeJSON(w, r, instances)
	}
}

func (rtr *Routing) propertySourcesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources := rtr.Environment.Sources()
		if sources == nil {
			sources = []propertysource.PropertySource{}
		}
		writeHeaders(w.Header(), rtr.Environment)
		rtr.writeJSON(w, r, sources)
	}
}

func (rtr *Routing) environmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHeaders(w.Header(), rtr.Environment)
		rtr.writeJSON(w, r, rtr.Environment.Properties())
	}
}

func (rtr *Routing) propertyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		value, ok := rtr.Environment.Get(key)
		if !ok {
			rtr.writeStatus(w, http.StatusNotFound, "unknown property: "+key)
			return
		}
		rtr.writeJSON(w, r, Property{Key: key, Value: value})
	}
}

func writeHeaders(header http.Header, env Configuration) {
	header.Set("X-Resolution-PrecedenceDisplayMessage", env.Precedence())
}

func marshalResponseJson(val any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(val, "", "  ")
	}
	return json.Marshal(val)
}

func (rtr *Routing) writeJSON(w http.ResponseWriter, r *http.Request, val any) {
	bytes, err := marshalResponseJson(val, overrideBooleanDefault(r.URL.Query().Get("pretty"), false))
	if err != nil {
		rtr.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", applicationJSON)
	_, _ = w.Write(bytes)
}

func (rtr *Routing) writeError(w http.ResponseWriter, err error) {
	rtr.writeStatus(w, http.StatusInternalServerError, err.Error())
	log.Error().Err(err).Stack().Msg("Response error")
}

func (rtr *Routing) writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", applicationJSON)
	w.WriteHeader(status)

	info := map[string]any{"message": message}
	_ = json.NewEncoder(w).Encode(info)
}

func (rtr *Routing) enableOTelForRouter(r chi.Router) error {
	if !rtr.AppConfig.Tracing.Enabled {
		return nil
	}

	if rtr.ServerName == "" || rtr.ParentRouter == nil {
		return errors.New("OTel not configured")
	}

	r.Use(otelchi.Middleware(rtr.ServerName, otelchi.WithChiRoutes(rtr.ParentRouter)))

	log.Info().Msgf("OpenTelemetry trace is enabled")
	return nil
}

func overrideBooleanDefault(queryValue string, defaultVal bool) bool {
	reqVal := strings.ToLower(queryValue)
	if reqVal == "true" {
		return true
	} else if reqVal == "false" {
		return false
	}
	return defaultVal
}
