// Package errkind implements the error taxonomy of the installer: each
// kind is a distinct wrapper type so callers can dispatch on it with
// errors.As, generalizing the teacher's single-purpose retryableError
// (in internal/downloader and internal/pypi) into the full disposition
// table the resolver and pipeline need.
package errkind

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Transient marks an error as transient and retryable (network timeout,
// 5xx, connection drop). Disposition: retried with backoff up to a
// configured count, fatal thereafter.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return e.Err.Error() }
func (e *Transient) Unwrap() error { return e.Err }

// NewTransient wraps err as a Transient error with added context.
func NewTransient(context string, err error) error {
	return &Transient{Err: xerrors.Errorf("%s: %w", context, err)}
}

// NotFound marks a package-not-found response from an index. Fatal for
// that candidate; a different index may still have it.
type NotFound struct {
	Package string
	Err     error
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("package not found: %s: %v", e.Package, e.Err)
}

func (e *NotFound) Unwrap() error { return e.Err }

// NewNotFound builds a NotFound error for the given package name.
func NewNotFound(pkg string, err error) error {
	return &NotFound{Package: pkg, Err: err}
}

// NoMatchingVersion is raised when the finder yields no candidates
// under the active policy.
type NoMatchingVersion struct {
	Package    string
	Constraint string
}

func (e *NoMatchingVersion) Error() string {
	return fmt.Sprintf("no version of %s matches %s", e.Package, e.Constraint)
}

// HashMismatch is raised when a declared hash does not match the
// fetched bytes. Fatal, never retried.
type HashMismatch struct {
	Filename string
	Expected string
	Got      string
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("sha256 mismatch for %s: expected %s, got %s", e.Filename, e.Expected, e.Got)
}

// BuildFailed is raised when the external builder exits non-zero.
// Fatal for that candidate; the resolver excludes it from further
// consideration.
type BuildFailed struct {
	Package string
	Stderr  string
	Err     error
}

func (e *BuildFailed) Error() string {
	return fmt.Sprintf("build failed for %s: %v\n%s", e.Package, e.Err, e.Stderr)
}

func (e *BuildFailed) Unwrap() error { return e.Err }

// MetadataMalformed is raised when METADATA is unparseable or missing
// required fields.
type MetadataMalformed struct {
	Package string
	Reason  string
}

func (e *MetadataMalformed) Error() string {
	return fmt.Sprintf("malformed metadata for %s: %s", e.Package, e.Reason)
}

// Conflict is raised when the resolver proves the requirement set
// unsatisfiable. Its Explanation carries the rendered conflict tree.
type Conflict struct {
	Explanation string
}

func (e *Conflict) Error() string { return e.Explanation }

// Cancelled is raised when a context is cancelled mid-operation. It is
// not an error in the usual sense; callers typically check for it with
// errors.Is against context.Canceled via Unwrap.
type Cancelled struct {
	Err error
}

func (e *Cancelled) Error() string { return e.Err.Error() }
func (e *Cancelled) Unwrap() error { return e.Err }

// CacheCorrupt is raised when a present cache entry fails validation.
// The caller should remove the entry and retry the operation once.
type CacheCorrupt struct {
	Bucket string
	Key    string
	Reason string
}

func (e *CacheCorrupt) Error() string {
	return fmt.Sprintf("corrupt cache entry %s/%s: %s", e.Bucket, e.Key, e.Reason)
}

// InvalidInput marks a malformed specifier, requirement, or filename.
// Fatal, surfaced immediately.
type InvalidInput struct {
	Reason string
}

func (e *InvalidInput) Error() string { return e.Reason }

// NewInvalidInput builds an InvalidInput error from a formatted reason.
func NewInvalidInput(format string, args ...any) error {
	return &InvalidInput{Reason: fmt.Sprintf(format, args...)}
}
