// Package metadata parses the RFC-822-style core metadata embedded in
// a distribution's *.dist-info/METADATA file (or an sdist's PKG-INFO)
// into the fields the resolver and installer need: name, version,
// dependencies, extras, and the supported Python range.
//
// The format is a sequence of "Key: value" header lines, the same
// shape email messages use, so net/textproto's MIME header reader
// parses it directly; no example repo in the pack wires a dedicated
// RFC 822 parser, and net/textproto is the standard library's own
// answer to this exact format (net/mail builds on it internally).
package metadata

import (
	"bufio"
	"fmt"
	"net/textproto"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pypiname"
	"github.com/bilusteknoloji/pipg/internal/requirement"
)

// Metadata is the parsed subset of core metadata the resolver and
// installer consume.
type Metadata struct {
	Name            string
	Version         pep440.Version
	RequiresDist    []requirement.Requirement
	ProvidesExtra   []string
	RequiresPython  pep440.Range
	Summary         string
}

// Parse reads RFC-822-style core metadata from r. A blank line ends
// the header block (the rest, if any, is the long description and is
// not needed here).
func Parse(r *bufio.Reader) (*Metadata, error) {
	tp := textproto.NewReader(r)

	header, err := tp.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return nil, fmt.Errorf("reading metadata headers: %w", err)
	}

	m := &Metadata{
		Name:    pypiname.Normalize(header.Get("Name")),
		Summary: header.Get("Summary"),
	}

	if v := header.Get("Version"); v != "" {
		version, err := pep440.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parsing Version %q: %w", v, err)
		}

		m.Version = version
	}

	if rp := header.Get("Requires-Python"); rp != "" {
		rng, err := pep440.ParseSpecifierSet(rp)
		if err != nil {
			return nil, fmt.Errorf("parsing Requires-Python %q: %w", rp, err)
		}

		m.RequiresPython = rng
	} else {
		m.RequiresPython = pep440.All()
	}

	for _, extra := range header.Values("Provides-Extra") {
		extra = strings.TrimSpace(extra)
		if extra != "" {
			m.ProvidesExtra = append(m.ProvidesExtra, pypiname.Normalize(extra))
		}
	}

	for _, dep := range header.Values("Requires-Dist") {
		req, err := requirement.Parse(strings.TrimSpace(dep))
		if err != nil {
			return nil, fmt.Errorf("parsing Requires-Dist %q: %w", dep, err)
		}

		m.RequiresDist = append(m.RequiresDist, req)
	}

	return m, nil
}

// ParseBytes is a convenience wrapper around Parse for callers holding
// the whole METADATA file in memory already (the common case, since it
// is typically a few kilobytes pulled from the wheel's central
// directory).
func ParseBytes(data []byte) (*Metadata, error) {
	return Parse(bufio.NewReader(strings.NewReader(string(data))))
}
