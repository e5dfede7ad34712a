// Package pypi talks to a PEP 503/691 "simple" package index: listing a
// project's files (Simple) and fetching a file's core metadata
// (FileMetadata) by the cheapest means the index supports.
package pypi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bilusteknoloji/pipg/internal/cache"
)

const clientTimeout = 30 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client used for index and file requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
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

// WithCache enables on-disk caching of simple-index pages, revalidated
// against the origin via cache.Manager.Freshness on every call instead
// of being fetched unconditionally. Without it, Simple always hits the
// network.
func WithCache(c *cache.Manager) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// Service implements registry access over HTTP.
type Service struct {
	httpClient *http.Client
	logger     *slog.Logger
	cache      *cache.Manager
}

// New creates a new registry client.
func New(opts ...Option) *Service {
	s := &Service{
		httpClient: &http.Client{Timeout: clientTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}
