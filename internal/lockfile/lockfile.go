// Package lockfile serializes a resolution to and from the TOML format
// spec.md section 6 describes: a top-level format version plus one
// [[packages]] table per resolved distribution. Encoding goes through
// github.com/BurntSushi/toml, already required by go.mod for exactly
// this purpose, rather than a hand-rolled writer.
package lockfile

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// FormatVersion is the lockfile schema version this package reads and
// writes. Readers reject a file whose Version exceeds this.
const FormatVersion = 1

// WheelEntry is one cached wheel artifact for a package entry.
type WheelEntry struct {
	URL  string `toml:"url"`
	Hash string `toml:"hash"`
}

// SdistEntry is the source distribution backing a built wheel, when present.
type SdistEntry struct {
	URL  string `toml:"url"`
	Hash string `toml:"hash"`
}

// PackageEntry is one resolved distribution's lockfile entry.
type PackageEntry struct {
	Name         string       `toml:"name"`
	Version      string       `toml:"version"`
	Source       string       `toml:"source"` // "registry", "url", "git", "path" or "direct-wheel"
	Dependencies []string     `toml:"dependencies,omitempty"`
	Extras       []string     `toml:"extras,omitempty"`
	Wheels       []WheelEntry `toml:"wheels,omitempty"`
	Sdist        *SdistEntry  `toml:"sdist,omitempty"`
}

// Lockfile is the top-level lockfile document.
type Lockfile struct {
	Version  int            `toml:"version"`
	Packages []PackageEntry `toml:"packages"`
}

// Encode writes lf to w as TOML, stamping FormatVersion if the caller
// left Version unset.
func Encode(w io.Writer, lf Lockfile) error {
	if lf.Version == 0 {
		lf.Version = FormatVersion
	}

	return toml.NewEncoder(w).Encode(lf)
}

// Decode parses a lockfile from r, rejecting a format major newer than
// this package supports.
func Decode(r io.Reader) (Lockfile, error) {
	var lf Lockfile

	if _, err := toml.NewDecoder(r).Decode(&lf); err != nil {
		return Lockfile{}, fmt.Errorf("parsing lockfile: %w", err)
	}

	if lf.Version > FormatVersion {
		return Lockfile{}, fmt.Errorf("lockfile format version %d is newer than supported %d", lf.Version, FormatVersion)
	}

	return lf, nil
}
