// Package capability tracks which optional columns and tables exist on the remote
// store. Flags start optimistic and are downgraded at most once per process when a
// query fails because the named feature is missing.
package capability

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/apperrors"
)

// Feature is an optional piece of the remote schema.
type Feature int

const (
	FeatureAlumniType Feature = iota
	FeatureAddressLink
	FeatureRSVPStatus
	featureCount
)

var featureInfo = [featureCount]struct {
	name    string
	markers []string
}{
	FeatureAlumniType:  {name: "alumni_type", markers: []string{"alumni_type_id", "alumni_type"}},
	FeatureAddressLink: {name: "address_link", markers: []string{"address_link_id", "address_link"}},
	FeatureRSVPStatus:  {name: "rsvp_status", markers: []string{"rsvp_status"}},
}

func (f Feature) String() string {
	if f < 0 || f >= featureCount {
		return "unknown"
	}
	return featureInfo[f].name
}

// Markers are the identifiers whose absence in an error message points at f.
func (f Feature) Markers() []string {
	if f < 0 || f >= featureCount {
		return nil
	}
	return featureInfo[f].markers
}

// Capability is the outcome of a probe.
type Capability struct {
	Feature   Feature
	Supported bool
}

// Shape is a snapshot of capability flags used to build one query.
type Shape struct {
	AlumniType  bool
	AddressLink bool
	RSVPStatus  bool
}

// Has reports whether feature f is enabled in the shape.
func (s Shape) Has(f Feature) bool {
	switch f {
	case FeatureAlumniType:
		return s.AlumniType
	case FeatureAddressLink:
		return s.AddressLink
	case FeatureRSVPStatus:
		return s.RSVPStatus
	}
	return false
}

// Full is the shape with every optional feature enabled.
func Full() Shape {
	return Shape{AlumniType: true, AddressLink: true, RSVPStatus: true}
}

// Registry holds the process-wide capability flags. Construct one per process and
// share it by pointer.
type Registry struct {
	missing [featureCount]atomic.Bool
	logger  zerolog.Logger
}

// NewRegistry returns a registry that assumes every feature is present.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "schema_capability").Logger(),
	}
}

// Supported reports the current flag for f.
func (r *Registry) Supported(f Feature) bool {
	if f < 0 || f >= featureCount {
		return false
	}
	return !r.missing[f].Load()
}

// Shape snapshots every flag.
func (r *Registry) Shape() Shape {
	return Shape{
		AlumniType:  r.Supported(FeatureAlumniType),
		AddressLink: r.Supported(FeatureAddressLink),
		RSVPStatus:  r.Supported(FeatureRSVPStatus),
	}
}

// Downgrade marks f unsupported. It returns true only for the call that flipped the flag.
func (r *Registry) Downgrade(f Feature, cause error) bool {
	if f < 0 || f >= featureCount {
		return false
	}
	if !r.missing[f].CompareAndSwap(false, true) {
		return false
	}
	r.logger.Warn().
		Err(cause).
		Str("feature", f.String()).
		Msg("optional schema feature missing on remote store, using reduced query shape")
	return true
}

// IsDrift reports whether err is a schema drift error naming feature f.
func IsDrift(err error, f Feature) bool {
	return apperrors.Is(err, apperrors.KindSchemaDrift) && apperrors.Mentions(err, f.Markers()...)
}

// DetectCapability runs probe and reports whether f is available. A drift error naming
// f downgrades the registry; any other error propagates.
func (r *Registry) DetectCapability(ctx context.Context, f Feature, probe func(ctx context.Context) error) (Capability, error) {
	if !r.Supported(f) {
		return Capability{Feature: f, Supported: false}, nil
	}
	err := probe(ctx)
	if err == nil {
		return Capability{Feature: f, Supported: true}, nil
	}
	if IsDrift(err, f) {
		r.Downgrade(f, err)
		return Capability{Feature: f, Supported: false}, nil
	}
	return Capability{Feature: f}, err
}

// Run executes op with the current shape. When op fails because one of features is
// missing, that feature is downgraded and op is retried with the reduced shape. Each
// feature can cause at most one retry.
func (r *Registry) Run(ctx context.Context, features []Feature, op func(ctx context.Context, shape Shape) error) error {
	for attempt := 0; ; attempt++ {
		shape := r.Shape()
		err := op(ctx, shape)
		if err == nil {
			return nil
		}
		if attempt >= len(features) {
			return err
		}
		retried := false
		for _, f := range features {
			if shape.Has(f) && IsDrift(err, f) {
				r.Downgrade(f, err)
				retried = true
				break
			}
		}
		if !retried {
			return err
		}
	}
}

// Query is Run for operations that return a value.
func Query[T any](ctx context.Context, r *Registry, features []Feature, op func(ctx context.Context, shape Shape) (T, error)) (T, error) {
	var out T
	err := r.Run(ctx, features, func(ctx context.Context, shape Shape) error {
		v, err := op(ctx, shape)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
