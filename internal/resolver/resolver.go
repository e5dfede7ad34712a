// Package resolver computes a version assignment satisfying a set of
// root requirements and their transitive dependencies, or reports an
// actionable conflict. Candidate enumeration and artifact selection
// are delegated to internal/finder; fetching a candidate's own
// dependency list goes through internal/pypi's simple-index client
// (cheap, metadata-only, for wheels) or internal/distribution's
// fetch+build pipeline (for sdist-only candidates). Conflicts are
// explained by the edges that produced them rather than a bare
// "version conflict" string, and an already-decided package can be
// re-decided in light of a later-arriving constraint instead of
// failing outright the first time one is.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/bilusteknoloji/pipg/internal/distribution"
	"github.com/bilusteknoloji/pipg/internal/finder"
	"github.com/bilusteknoloji/pipg/internal/graph"
	"github.com/bilusteknoloji/pipg/internal/pypi"
)

// defaultIndexURL is PyPI's own simple index, used when the caller
// doesn't configure one.
const defaultIndexURL = "https://pypi.org/simple"

// Resolver defines the interface for resolving package dependencies.
type Resolver interface {
	Resolve(ctx context.Context, requirements []string) ([]ResolvedPackage, error)
}

// ResolvedPackage represents a package with its resolved version,
// the concrete artifact chosen for it, and its dependency names.
type ResolvedPackage struct {
	Name         string
	Version      string
	Extras       []string
	Dependencies []string
	Distribution distribution.Distribution
}

// Option configures a Service.
type Option func(*Service)

// WithNoDeps disables dependency resolution; only root packages are resolved.
func WithNoDeps(noDeps bool) Option {
	return func(s *Service) {
		s.noDeps = noDeps
	}
}

// WithMarkerEnv sets the environment for evaluating PEP 508 markers.
func WithMarkerEnv(env MarkerEnv) Option {
	return func(s *Service) {
		s.markerEnv = env
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPrerelease sets the prerelease policy applied while picking a
// decision's version; the default is IfNecessaryOrExplicit.
func WithPrerelease(mode finder.PrereleaseMode) Option {
	return func(s *Service) {
		s.prerelease = mode
	}
}

// WithIndexURL points the resolver at a non-default simple index.
func WithIndexURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.indexURL = url
		}
	}
}

// WithCompatTags sets the ordered, most-preferred-first wheel tags
// used to pick an artifact for each candidate version.
func WithCompatTags(tags []finder.WheelTag) Option {
	return func(s *Service) {
		s.compatTags = tags
	}
}

// WithAllowedHashes restricts candidates to files carrying at least
// one of the given digests, implementing --require-hashes.
func WithAllowedHashes(hashes map[string]struct{}) Option {
	return func(s *Service) {
		s.allowedHashes = hashes
	}
}

// WithUploadCeiling drops any file uploaded after t, implementing
// reproducible "as of" resolution.
func WithUploadCeiling(t time.Time) Option {
	return func(s *Service) {
		s.uploadCeiling = t
	}
}

// Service resolves package dependencies by narrowing each package's
// version range edge by edge over a PEP 503/691 simple index, building sdist-only
// candidates through the distribution pipeline when a dependency list
// can only be discovered that way.
type Service struct {
	registry *pypi.Service
	dist     distribution.Pipeline

	noDeps        bool
	markerEnv     MarkerEnv
	logger        *slog.Logger
	prerelease    finder.PrereleaseMode
	indexURL      string
	compatTags    []finder.WheelTag
	allowedHashes map[string]struct{}
	uploadCeiling time.Time
}

// compile-time proof that Service implements Resolver.
var _ Resolver = (*Service)(nil)

// New creates a new dependency resolver against registry (a simple
// index client) and dist (a fetch/build/metadata pipeline used for
// sdist-only candidates).
func New(registry *pypi.Service, dist distribution.Pipeline, opts ...Option) *Service {
	s := &Service{
		registry:   registry,
		dist:       dist,
		logger:     slog.Default(),
		prerelease: finder.IfNecessaryOrExplicit,
		indexURL:   defaultIndexURL,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Resolve resolves all dependencies for the given package requirements
// and returns the flattened package list.
func (s *Service) Resolve(ctx context.Context, requirements []string) ([]ResolvedPackage, error) {
	result, _, err := s.resolveGraph(ctx, requirements)
	return result, err
}

// ResolveGraph resolves the same way as Resolve, additionally returning
// the resolution graph (nodes per package, edges per dependency) so a
// caller can render it or serialize it to a lockfile.
func (s *Service) ResolveGraph(ctx context.Context, requirements []string) ([]ResolvedPackage, *graph.Graph, error) {
	result, g, err := s.resolveGraph(ctx, requirements)
	return result, g, err
}
