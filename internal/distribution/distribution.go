// Package distribution models a concrete installable artifact (a
// wheel, an sdist, a VCS checkout, or a local directory) and the
// pipeline that turns one into extracted metadata or an unpacked,
// installable tree.
//
// The fetch and unpack logic is grounded on the teacher's
// internal/downloader (retryable errgroup-based fetch with
// temp+rename+sha256) and internal/installer (zip-walk with .data
// routing and a ZipSlip guard), generalized from "a resolved wheel
// download" to any Distribution the resolver names.
package distribution

import (
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pypiname"
)

// Kind tags which Distribution variant is present.
type Kind int

const (
	WheelKind Kind = iota
	SdistKind
	VcsCheckoutKind
	LocalDirectoryKind
)

func (k Kind) String() string {
	switch k {
	case WheelKind:
		return "wheel"
	case SdistKind:
		return "sdist"
	case VcsCheckoutKind:
		return "vcs"
	case LocalDirectoryKind:
		return "local"
	default:
		return "unknown"
	}
}

// Distribution is the tagged union of spec.md's artifact variants.
// Only the fields relevant to Kind are populated. Every distribution
// carries its resolved name and, where known ahead of fetch, its
// version (VCS and local-directory distributions only learn their
// version from built metadata, so Version may be zero for them).
type Distribution struct {
	Kind    Kind
	Name    string
	Version pep440.Version

	// Wheel / Sdist
	Filename string
	URL      string // empty for a purely local source

	// VcsCheckout
	VcsURL       string
	ResolvedRev  string
	Subdirectory string

	// LocalDirectory
	Path     string
	Editable bool
}

func (d Distribution) String() string {
	switch d.Kind {
	case WheelKind, SdistKind:
		return d.Filename
	case VcsCheckoutKind:
		return fmt.Sprintf("%s@%s", d.VcsURL, d.ResolvedRev)
	case LocalDirectoryKind:
		return d.Path
	default:
		return "unknown-distribution"
	}
}

// ID is the at-most-once key used by the pipeline's OnceMap: two
// Distribution values that would fetch/build/unpack identically share
// one ID.
type ID struct {
	kind Kind
	key  string
}

func (id ID) String() string { return id.key }

// DistributionID computes d's identity key.
func DistributionID(d Distribution) ID {
	switch d.Kind {
	case WheelKind, SdistKind:
		return ID{kind: d.Kind, key: d.Filename}
	case VcsCheckoutKind:
		return ID{kind: d.Kind, key: d.VcsURL + "@" + d.ResolvedRev + "#" + d.Subdirectory}
	case LocalDirectoryKind:
		return ID{kind: d.Kind, key: d.Path}
	default:
		return ID{kind: d.Kind, key: pypiname.Normalize(d.Name)}
	}
}

// IsBuildRequired reports whether d needs an external build step before
// it yields an installable wheel (sdists, VCS checkouts, and local
// source directories all do; wheels never do).
func (d Distribution) IsBuildRequired() bool {
	return d.Kind == SdistKind || d.Kind == VcsCheckoutKind || d.Kind == LocalDirectoryKind
}
