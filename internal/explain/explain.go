// Package explain renders a resolver conflict as the "because X
// requires Y and Y requires Z" narrative spec.md section 6 describes,
// bottoming out at the requirement whose range was emptied by the
// accumulated edges. Each cause is chained with golang.org/x/xerrors
// so the conflict is a real wrapped-error tree, not just formatted
// text — callers can still errors.As into an individual edge if they
// need to. spec.md notes the renderer's output format is not a
// stable surface.
package explain

import (
	"strings"

	"golang.org/x/xerrors"
)

// Edge is one requirement relationship cited in a conflict: From
// requires To under Specifier (empty for a root requirement edge,
// which reads as "root requires To").
type Edge struct {
	From      string
	To        string
	Specifier string
	Marker    string
}

func (e Edge) String() string {
	spec := e.Specifier
	if spec == "" {
		spec = "*"
	}

	if e.Marker != "" {
		spec = spec + "; " + e.Marker
	}

	if e.From == "" {
		return "root requires " + e.To + " " + spec
	}

	return e.From + " requires " + e.To + " " + spec
}

// causeError is one node in the wrapped conflict chain.
type causeError struct {
	edge Edge
	next error
}

func (c *causeError) Error() string {
	if c.next == nil {
		return c.edge.String()
	}

	return c.edge.String() + "; " + c.next.Error()
}

func (c *causeError) Unwrap() error {
	return c.next
}

// Conflict renders the edges that jointly emptied pkg's derivation
// range into a multi-line explanation, one "because" line per edge in
// the order given. The text is formatted directly; ConflictError builds
// the golang.org/x/xerrors-wrapped chain for the same edges.
func Conflict(pkg string, edges []Edge) string {
	var lines []string

	lines = append(lines, "no version of "+pkg+" satisfies all requirements:")

	for _, e := range edges {
		lines = append(lines, "  because "+e.String())
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ConflictError returns the golang.org/x/xerrors-wrapped cause chain
// for a conflict, for callers that want to errors.As into a specific
// edge rather than parse the rendered text from Conflict.
func ConflictError(pkg string, edges []Edge) error {
	var chain error

	for i := len(edges) - 1; i >= 0; i-- {
		chain = &causeError{edge: edges[i], next: chain}
	}

	if chain == nil {
		return xerrors.Errorf("conflict on %s", pkg)
	}

	return xerrors.Errorf("conflict on %s: %w", pkg, chain)
}
