// Package pep440 provides the PEP 440 version and specifier model used
// throughout the resolver: a parsed Version, and a Range type implementing
// the interval algebra over versions that the resolver's derivations and
// the finder's candidate filtering both depend on.
package pep440

import (
	"fmt"
	"sort"

	version "github.com/aquasecurity/go-pep440-version"
)

// Version wraps the upstream parsed PEP 440 version, adding the
// comparison and ordering helpers the resolver and finder need.
type Version struct {
	v   version.Version
	raw string
}

// Parse parses a PEP 440 version string.
func Parse(s string) (Version, error) {
	v, err := version.Parse(s)
	if err != nil {
		return Version{}, fmt.Errorf("parsing version %q: %w", s, err)
	}

	return Version{v: v, raw: s}, nil
}

// MustParse parses s, panicking on error. Intended for tests and
// compile-time constant versions.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return v
}

// String returns the original textual representation.
func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}

	return v.v.String()
}

// IsZero reports whether v is the zero Version (unparsed).
func (v Version) IsZero() bool { return v.raw == "" }

// IsPreRelease reports whether v has an alpha/beta/rc/dev segment.
func (v Version) IsPreRelease() bool { return v.v.IsPreRelease() }

// HasLocal reports whether v carries a local version segment (+foo).
func (v Version) HasLocal() bool { return localSegment(v.raw) != "" }

// Local returns the raw local segment, or "" if absent.
func (v Version) Local() string { return localSegment(v.raw) }

func localSegment(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '+' {
			return raw[i+1:]
		}
	}

	return ""
}

// BaseVersion returns v with any local segment stripped, per PEP 440's
// rule that local segments are ignored for equality matching against a
// registry-supplied specifier (==1.0 matches 1.0+cuda).
func (v Version) BaseVersion() Version {
	if !v.HasLocal() {
		return v
	}

	base, err := Parse(stripLocal(v.raw))
	if err != nil {
		return v
	}

	return base
}

func stripLocal(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '+' {
			return raw[:i]
		}
	}

	return raw
}

// Equal reports whether v and other denote the same version, ignoring
// any local segment difference.
func (v Version) Equal(other Version) bool {
	return v.v.Equal(other.v)
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool {
	return v.v.LessThan(other.v)
}

// Greater reports whether v sorts strictly after other.
func (v Version) Greater(other Version) bool {
	return v.v.GreaterThan(other.v)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Less(other):
		return -1
	case v.Greater(other):
		return 1
	default:
		return 0
	}
}

// SortDesc sorts versions in descending order (highest first), matching
// the ordering guarantee spec.md requires for finder candidate streams.
func SortDesc(versions []Version) []Version {
	sorted := make([]Version, len(versions))
	copy(sorted, versions)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Greater(sorted[j])
	})

	return sorted
}

// ParseVersions parses each string, silently dropping values that fail
// to parse (mirrors the teacher's SortVersionsDesc tolerance for bad
// registry data).
func ParseVersions(raw []string) []Version {
	out := make([]Version, 0, len(raw))

	for _, s := range raw {
		v, err := Parse(s)
		if err != nil {
			continue
		}

		out = append(out, v)
	}

	return out
}
