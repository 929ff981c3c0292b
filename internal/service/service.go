// Package service answers decoded SOS requests from the observation
// repository, the feature registry and the active profile.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/feature"
	"github.com/mohammed-shakir/sos-core/internal/observation"
	"github.com/mohammed-shakir/sos-core/internal/profile"
)

// ErrNotFound marks a request for a single resource that does not exist.
var ErrNotFound = errors.New("not found")

// Profiles yields the profile requests are answered under.
type Profiles interface {
	Active() profile.Profile
}

type Options struct {
	Logger       *slog.Logger
	Profiles     Profiles
	Observations *observation.Repository
	Features     *feature.Registry
	Title        string
	ProviderName string
	ProviderSite string
}

type Service struct {
	log      *slog.Logger
	profiles Profiles
	obs      *observation.Repository
	features *feature.Registry

	title, providerName, providerSite string
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Profiles == nil {
		opts.Profiles = staticProfile{p: profile.Default()}
	}
	if opts.Observations == nil {
		opts.Observations = observation.NewRepository(nil)
	}
	if opts.Features == nil {
		opts.Features, _ = feature.New(nil, feature.Options{Logger: opts.Logger})
	}
	if opts.Title == "" {
		opts.Title = "SOS"
	}
	return &Service{
		log:          opts.Logger,
		profiles:     opts.Profiles,
		obs:          opts.Observations,
		features:     opts.Features,
		title:        opts.Title,
		providerName: opts.ProviderName,
		providerSite: opts.ProviderSite,
	}
}

// staticProfile serves one fixed profile.
type staticProfile struct{ p profile.Profile }

func (s staticProfile) Active() profile.Profile { return s.p.Clone() }

// Handle dispatches req to its operation. Errors are OWS exceptions or
// wrap ErrNotFound.
func (s *Service) Handle(ctx context.Context, req model.Request) (any, error) {
	h := req.RequestHeader()
	s.log.DebugContext(ctx, "handling request", "operation", h.Operation, "binding", h.Binding)

	var (
		out any
		err error
	)
	switch r := req.(type) {
	case *model.GetCapabilitiesRequest:
		out, err = s.GetCapabilities(ctx, r)
	case *model.GetObservationRequest:
		out, err = s.GetObservation(ctx, r)
	case *model.GetFeatureOfInterestRequest:
		out, err = s.GetFeatureOfInterest(ctx, r)
	case *model.GetResultRequest:
		out, err = s.GetResult(ctx, r)
	default:
		return nil, owserr.OperationNotSupportedError(string(h.Operation))
	}
	if err != nil {
		s.log.DebugContext(ctx, "request failed", "operation", h.Operation, "err", err)
		return nil, err
	}
	return out, nil
}

func unknownIDs(param string, ids []string, known func(string) bool) error {
	var errs owserr.Composite
	for _, id := range ids {
		if !known(id) {
			errs.Add(owserr.InvalidParameterValueError(param, id, "The value '%s' of the parameter '%s' is invalid", id, param))
		}
	}
	return errs.Err()
}

func notFound(kind, id string) error {
	return owserr.InvalidParameterValueCause(kind, id, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound))
}
