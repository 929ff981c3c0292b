// Package router maps the KVP, REST and profile admin endpoints onto the
// service.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mohammed-shakir/sos-core/internal/binding/kvp"
	"github.com/mohammed-shakir/sos-core/internal/binding/rest"
	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/observability"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/logger"
	"github.com/mohammed-shakir/sos-core/internal/profile"
	"github.com/mohammed-shakir/sos-core/internal/service"
)

// RequestHandler answers decoded requests.
type RequestHandler interface {
	Handle(ctx context.Context, req model.Request) (any, error)
}

// ProfileAdmin is the part of the profile handler exposed over HTTP.
type ProfileAdmin interface {
	List() []profile.Profile
	Active() profile.Profile
	Activate(ctx context.Context, id string) (profile.Profile, error)
}

type Deps struct {
	Logger   *slog.Logger
	Service  RequestHandler
	KVP      *kvp.Decoder
	REST     *rest.Decoder
	Profiles ProfileAdmin
}

// Mount registers the SOS and admin routes on r.
func Mount(r chi.Router, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r.Get("/service", HandleKVP(d.Logger, d.KVP, d.Service))
	r.Route("/rest", func(r chi.Router) {
		h := HandleREST(d.Logger, d.REST, d.Service)
		r.Get("/{resource}", h)
		r.Get("/{resource}/{id}", h)
	})
	if d.Profiles != nil {
		r.Route("/admin/profiles", func(r chi.Router) {
			r.Get("/", observe("", listProfiles(d.Profiles)))
			r.Get("/active", observe("", activeProfile(d.Profiles)))
			r.Post("/{id}/activate", observe("", activateProfile(d.Logger, d.Profiles)))
		})
	}
}

// HandleKVP decodes the query string of GET /service.
func HandleKVP(log *slog.Logger, dec *kvp.Decoder, h RequestHandler) http.HandlerFunc {
	return observe(model.BindingKVP, func(w http.ResponseWriter, r *http.Request) {
		req, err := dec.Decode(r.URL.Query())
		serve(log, w, r, model.BindingKVP, req, err, h)
	})
}

// HandleREST decodes /rest/{resource}[/{id}].
func HandleREST(log *slog.Logger, dec *rest.Decoder, h RequestHandler) http.HandlerFunc {
	return observe(model.BindingREST, func(w http.ResponseWriter, r *http.Request) {
		req, err := dec.Decode(chi.URLParam(r, "resource"), chi.URLParam(r, "id"), r.URL.Query())
		serve(log, w, r, model.BindingREST, req, err, h)
	})
}

func serve(log *slog.Logger, w http.ResponseWriter, r *http.Request, binding string, req model.Request, err error, h RequestHandler) {
	ctx := logger.WithBinding(r.Context(), binding)
	if err != nil {
		log.DebugContext(ctx, "request rejected", "err", err)
		writeError(w, r, err)
		return
	}
	op := string(req.RequestHeader().Operation)
	observability.IncDecodedRequest(op, binding)
	ctx = logger.WithOperation(ctx, op)

	out, err := h.Handle(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	observability.IncOWSExceptions(err)
	if errors.Is(err, service.ErrNotFound) {
		owserr.WriteStatus(w, r, err, http.StatusNotFound)
		return
	}
	owserr.Write(w, r, err)
}

type profileList struct {
	Active   string            `json:"active"`
	Profiles []profile.Profile `json:"profiles"`
}

func listProfiles(p ProfileAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, profileList{Active: p.Active().Identifier, Profiles: p.List()})
	}
}

func activeProfile(p ProfileAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, p.Active())
	}
}

func activateProfile(log *slog.Logger, p ProfileAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		active, err := p.Activate(r.Context(), id)
		switch {
		case errors.Is(err, profile.ErrUnknownProfile):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		case err != nil:
			log.ErrorContext(r.Context(), "profile activation failed", "profile", id, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, active)
	}
}

// observe records the request against the matched chi route pattern.
func observe(binding string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		observability.ObserveHTTP(r.Method, route, binding, status, time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
