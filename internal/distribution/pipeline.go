package distribution

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/metadata"
	"github.com/bilusteknoloji/pipg/internal/oncemap"
)

const maxRetries = 3

// defaultMaxConcurrentBuilds caps how many PEP 517 build subprocesses
// run at once: one per CPU core. Builds spawn a full interpreter and
// compiler toolchain per call, far heavier than a download, so they get
// their own bound independent of fetch concurrency.
var defaultMaxConcurrentBuilds = runtime.NumCPU()

// defaultPerHostLimit caps concurrent in-flight fetches to any single
// host, independent of how many distributions are being resolved at
// once -- a registry and its CDN serve every wheel from a small set of
// origins, so a wide resolve would otherwise open dozens of
// simultaneous connections to the same host.
const defaultPerHostLimit = 6

// retryableError wraps errors that are transient and can be retried,
// matching the teacher's downloader/pypi convention.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// BuildBackend invokes an external PEP 517 build, out of core scope
// per spec.md; the core only calls this one method.
type BuildBackend interface {
	Build(ctx context.Context, sourceTree, subdirectory, outputDir string) (wheelFilename string, err error)
}

// GitFetcher checks out a VCS reference, out of core scope per
// spec.md; the core only calls this one method.
type GitFetcher interface {
	Fetch(ctx context.Context, url, ref string) (checkoutPath, resolvedRev string, err error)
}

// Pipeline is the fetch → (unpack | build) → metadata-extraction
// surface the resolver and install driver depend on.
type Pipeline interface {
	Metadata(ctx context.Context, d Distribution) (*metadata.Metadata, error)
	Fetch(ctx context.Context, d Distribution) (string, error)
	Build(ctx context.Context, sourceTree, subdirectory string) (wheelPath string, err error)
	Unpack(ctx context.Context, wheelPath, destDir string) error
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client used for fetches.
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

// WithBuildBackend sets the external build capability used for
// sdists, VCS checkouts, and local source directories.
func WithBuildBackend(b BuildBackend) Option {
	return func(s *Service) {
		if b != nil {
			s.build = b
		}
	}
}

// WithGitFetcher sets the external VCS checkout capability.
func WithGitFetcher(g GitFetcher) Option {
	return func(s *Service) {
		if g != nil {
			s.git = g
		}
	}
}

// WithMaxConcurrentBuilds caps concurrent build-backend invocations.
// Defaults to defaultMaxConcurrentBuilds.
func WithMaxConcurrentBuilds(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.buildSem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithPerHostLimit caps concurrent fetches to any single host. Defaults
// to defaultPerHostLimit.
func WithPerHostLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.perHostLimit = int64(n)
		}
	}
}

// Service implements Pipeline against a cache.Manager, deduplicating
// concurrent requests for the same distribution via an OnceMap and
// bounding concurrent builds and per-host fetches via semaphores.
type Service struct {
	cacheMgr   *cache.Manager
	httpClient *http.Client
	logger     *slog.Logger
	build      BuildBackend
	git        GitFetcher
	buildSem   *semaphore.Weighted

	perHostLimit int64
	hostSemsMu   sync.Mutex
	hostSems     map[string]*semaphore.Weighted

	fetchOnce oncemap.OnceMap[ID, string]
}

// compile-time proof that Service implements Pipeline.
var _ Pipeline = (*Service)(nil)

// New creates a distribution pipeline backed by cacheMgr.
func New(cacheMgr *cache.Manager, opts ...Option) *Service {
	s := &Service{
		cacheMgr:     cacheMgr,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		buildSem:     semaphore.NewWeighted(int64(defaultMaxConcurrentBuilds)),
		perHostLimit: defaultPerHostLimit,
		hostSems:     make(map[string]*semaphore.Weighted),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// hostSemaphore returns the semaphore bounding concurrent fetches to
// rawURL's host, creating one on first use.
func (s *Service) hostSemaphore(rawURL string) *semaphore.Weighted {
	host := rawURL

	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	s.hostSemsMu.Lock()
	defer s.hostSemsMu.Unlock()

	sem, ok := s.hostSems[host]
	if !ok {
		sem = semaphore.NewWeighted(s.perHostLimit)
		s.hostSems[host] = sem
	}

	return sem
}

// Fetch downloads or checks out d, returning its on-disk path. The
// result is deduplicated across concurrent callers sharing d's ID.
func (s *Service) Fetch(ctx context.Context, d Distribution) (string, error) {
	id := DistributionID(d)

	if !s.fetchOnce.Register(id) {
		path, err := s.doFetch(ctx, d)
		s.fetchOnce.Done(id, path, err)

		if err != nil {
			s.fetchOnce.Forget(id)
		}

		return path, err
	}

	return s.fetchOnce.Wait(ctx, id)
}

func (s *Service) doFetch(ctx context.Context, d Distribution) (string, error) {
	switch d.Kind {
	case WheelKind:
		return s.cacheMgr.GetOrInit(ctx, cache.Wheels, d.Filename, func(ctx context.Context) ([]byte, error) {
			return s.downloadWithRetry(ctx, d.URL, d.Filename)
		})
	case SdistKind:
		return s.cacheMgr.GetOrInit(ctx, cache.Archive, d.Filename, func(ctx context.Context) ([]byte, error) {
			return s.downloadWithRetry(ctx, d.URL, d.Filename)
		})
	case VcsCheckoutKind:
		if s.git == nil {
			return "", fmt.Errorf("fetching %s: no git fetcher configured", d)
		}

		path, _, err := s.git.Fetch(ctx, d.VcsURL, d.ResolvedRev)

		return path, err
	case LocalDirectoryKind:
		if _, err := os.Stat(d.Path); err != nil {
			return "", fmt.Errorf("local directory %s: %w", d.Path, err)
		}

		return d.Path, nil
	default:
		return "", fmt.Errorf("fetching %s: unknown distribution kind", d)
	}
}

// downloadWithRetry attempts a download up to maxRetries times with
// exponential backoff, retrying only transient (network, 5xx) errors,
// generalizing the teacher's downloader.downloadWithRetry to an
// in-memory result instead of a streamed file (cache.GetOrInit owns
// the temp+rename step now).
func (s *Service) downloadWithRetry(ctx context.Context, url, filename string) ([]byte, error) {
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 500 * time.Millisecond

			s.logger.Debug("retrying download",
				slog.String("url", url),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		data, err := s.doDownload(ctx, url)
		if err == nil {
			return data, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return nil, err
		}

		lastErr = err
		s.logger.Debug("download attempt failed",
			slog.String("url", url),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("downloading %s after %d attempts: %w", filename, maxRetries, lastErr)
}

func (s *Service) doDownload(ctx context.Context, url string) ([]byte, error) {
	sem := s.hostSemaphore(url)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for host slot: %w", err)
	}
	defer sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("requesting %s: %w", url, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &retryableError{err: statusErr}
		}

		return nil, statusErr
	}

	return io.ReadAll(resp.Body)
}

// Build invokes the external build backend against a fetched source
// tree, returning the path to the resulting cached wheel.
func (s *Service) Build(ctx context.Context, sourceTree, subdirectory string) (string, error) {
	if s.build == nil {
		return "", fmt.Errorf("building %s: no build backend configured", sourceTree)
	}

	key := sourceTree + "#" + subdirectory

	return s.cacheMgr.GetOrInit(ctx, cache.BuiltWheels, hashKey(key), func(ctx context.Context) ([]byte, error) {
		if err := s.buildSem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for build slot: %w", err)
		}
		defer s.buildSem.Release(1)

		outDir, err := os.MkdirTemp("", "pipg-build-")
		if err != nil {
			return nil, fmt.Errorf("creating build output dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(outDir) }()

		wheelFilename, err := s.build.Build(ctx, sourceTree, subdirectory, outDir)
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", sourceTree, err)
		}

		return os.ReadFile(filepath.Join(outDir, wheelFilename))
	})
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Metadata extracts core metadata from d without fully unpacking it:
// for wheels this means locating and parsing *.dist-info/METADATA
// inside the fetched archive; sdists, VCS checkouts and local
// directories are built first and read from the resulting wheel.
func (s *Service) Metadata(ctx context.Context, d Distribution) (*metadata.Metadata, error) {
	path, err := s.Fetch(ctx, d)
	if err != nil {
		return nil, err
	}

	if d.IsBuildRequired() {
		subdir := d.Subdirectory

		wheelPath, err := s.Build(ctx, path, subdir)
		if err != nil {
			return nil, err
		}

		path = wheelPath
	}

	raw, err := readMetadataFile(path)
	if err != nil {
		return nil, err
	}

	return metadata.ParseBytes(raw)
}

// readMetadataFile scans a wheel/sdist zip for a *.dist-info/METADATA
// (falling back to PKG-INFO for sdists) entry and returns its bytes.
func readMetadataFile(archivePath string) ([]byte, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer func() { _ = r.Close() }()

	var metadataFile *zip.File

	for _, f := range r.File {
		name := f.Name
		if strings.HasSuffix(name, ".dist-info/METADATA") || strings.HasSuffix(name, "PKG-INFO") {
			metadataFile = f
			break
		}
	}

	if metadataFile == nil {
		return nil, fmt.Errorf("no METADATA or PKG-INFO entry found in %s", archivePath)
	}

	rc, err := metadataFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s in %s: %w", metadataFile.Name, archivePath, err)
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

// Unpack extracts every file entry of wheelPath into destDir as-is,
// with the same ZipSlip guard as the teacher's installer.installWheel.
// It does no .data routing; internal/installer does that on the
// default install path.
func Unpack(ctx context.Context, wheelPath, destDir string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("unpack canceled: %w", err)
	}

	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return fmt.Errorf("opening wheel %s: %w", wheelPath, err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		destPath := filepath.Join(destDir, f.Name)

		if !isInsideDir(destPath, destDir) {
			return fmt.Errorf("zip slip detected: %s resolves outside %s", f.Name, destDir)
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.Name, err)
		}

		if err := extractFile(f, destPath); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}

	return nil
}

// Unpack is also exposed as a Service method so callers holding only a
// Pipeline interface value can use it.
func (s *Service) Unpack(ctx context.Context, wheelPath, destDir string) error {
	return Unpack(ctx, wheelPath, destDir)
}

func extractFile(f *zip.File, destPath string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()

		return fmt.Errorf("writing %s: %w", destPath, err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", destPath, err)
	}

	// os.OpenFile's mode only applies at creation time, and is further
	// filtered by umask; chmod explicitly so the wheel's own permission
	// bits (executable scripts, etc.) survive regardless of umask.
	if err := os.Chmod(destPath, f.Mode().Perm()); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", destPath, err)
	}

	return nil
}

func isInsideDir(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	return strings.HasPrefix(absPath, absDir+string(filepath.Separator)) || absPath == absDir
}

// HashFileSHA256 computes the SHA256 hex digest of the file at path,
// used by callers validating against spec.md's --require-hashes allow
// list.
func HashFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
