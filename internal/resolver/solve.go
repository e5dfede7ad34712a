package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/bilusteknoloji/pipg/internal/distribution"
	"github.com/bilusteknoloji/pipg/internal/errkind"
	"github.com/bilusteknoloji/pipg/internal/explain"
	"github.com/bilusteknoloji/pipg/internal/finder"
	"github.com/bilusteknoloji/pipg/internal/graph"
	"github.com/bilusteknoloji/pipg/internal/metadata"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pypi"
	"github.com/bilusteknoloji/pipg/internal/requirement"
)

// pendingReq is one requirement still waiting to be propagated:
// either a root requirement (from == "") or a dependency discovered
// while expanding an already-decided package.
type pendingReq struct {
	req  requirement.Requirement
	from string
}

// solverState is the partial solution threaded through propagation,
// conflict handling, decision, and expansion. Unlike a single
// backtrack-free forward pass, a narrowed-to-empty derivation against
// an already-decided package first tries to re-decide that package
// against the tightened range (see redecide) before it is reported as
// a terminal conflict.
type solverState struct {
	derivations map[string]pep440.Range // name -> admissible range
	edges       map[string][]explain.Edge
	extras      map[string]map[string]bool // name -> extras requested of it anywhere
	decided     map[string]pep440.Version
	resolved    map[string]*ResolvedPackage
	simple      map[string]*pypi.SimpleMetadata   // name -> fetched simple-index page
	candidates  map[string][]finder.Candidate     // name -> candidates built from simple, most preferred first
	queue       []pendingReq

	g *graph.Graph
}

func newSolverState() *solverState {
	return &solverState{
		derivations: map[string]pep440.Range{},
		edges:       map[string][]explain.Edge{},
		extras:      map[string]map[string]bool{},
		decided:     map[string]pep440.Version{},
		resolved:    map[string]*ResolvedPackage{},
		simple:      map[string]*pypi.SimpleMetadata{},
		candidates:  map[string][]finder.Candidate{},
		g:           graph.New(),
	}
}

func (s *Service) resolveGraph(ctx context.Context, requirements []string) ([]ResolvedPackage, *graph.Graph, error) {
	st := newSolverState()

	for _, raw := range requirements {
		req, err := requirement.Parse(raw)
		if err != nil {
			return nil, nil, errkind.NewInvalidInput("parsing requirement %q: %v", raw, err)
		}

		st.queue = append(st.queue, pendingReq{req: req})
	}

	for len(st.queue) > 0 {
		p := st.queue[0]
		st.queue = st.queue[1:]

		if err := s.expand(ctx, st, p); err != nil {
			return nil, nil, err
		}
	}

	result := make([]ResolvedPackage, 0, len(st.resolved))
	for _, pkg := range st.resolved {
		result = append(result, *pkg)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, st.g, nil
}

// expand is the propagate+conflict+decide+(re-decide) cycle for one
// pending requirement.
func (s *Service) expand(ctx context.Context, st *solverState, p pendingReq) error {
	req := p.req

	// Extras bound so far are used to evaluate this requirement's own
	// marker; this is an approximation of the fork-on-extra behavior a
	// full PubGrub derivation would give (a requirement's marker sees
	// only extras known at the time it is processed).
	env := s.markerEnv.toEnvironment(st.extras[p.from])
	if !req.Marker.Eval(env) {
		return nil
	}

	name := req.Name

	for _, e := range req.Extras {
		if st.extras[name] == nil {
			st.extras[name] = map[string]bool{}
		}

		st.extras[name][e] = true
	}

	if req.Source.Kind != requirement.Registry {
		return s.expandNonRegistry(st, p, req)
	}

	// Propagate: narrow the package's derivation by this edge.
	prior, hasPrior := st.derivations[name]

	narrowed := req.Source.Specifier
	if hasPrior {
		narrowed = prior.Intersection(req.Source.Specifier)
	}

	st.derivations[name] = narrowed
	st.edges[name] = append(st.edges[name], explain.Edge{
		From:      p.from,
		To:        name,
		Specifier: req.Raw,
	})

	// Conflict: the intersection emptied the admissible range.
	if narrowed.IsEmpty() {
		return &errkind.Conflict{Explanation: explain.Conflict(name, st.edges[name])}
	}

	// If already decided, verify the new edge doesn't invalidate it; if
	// it does, try to re-decide rather than failing immediately.
	if v, ok := st.decided[name]; ok {
		if narrowed.Contains(v) {
			return nil
		}

		return s.redecide(ctx, st, name, narrowed)
	}

	return s.decideAndExpandRegistry(ctx, st, name, narrowed)
}

// expandNonRegistry resolves a URL/Git/Path requirement as a single
// pinned package identified by its canonical source key. Its own
// dependencies are not expanded: no metadata is fetched for the
// artifact, so nothing it requires is added to the resolution.
func (s *Service) expandNonRegistry(st *solverState, p pendingReq, req requirement.Requirement) error {
	name := req.Name
	key := req.Source.CanonicalKey()

	if existing, ok := st.resolved[name]; ok && existing.Version != key {
		return &errkind.Conflict{
			Explanation: fmt.Sprintf("%s is required from two different sources: %s and %s", name, existing.Version, key),
		}
	}

	st.resolved[name] = &ResolvedPackage{Name: name, Version: key, Extras: req.Extras}

	idx := st.g.AddNode(name, key, req.Source.Kind.String(), req.Extras)
	if p.from != "" {
		if fromIdx := st.g.IndexOf(p.from); fromIdx >= 0 {
			st.g.AddEdge(fromIdx, idx, req.Raw, req.Marker.String())
		}
	}

	return nil
}

// decideAndExpandRegistry fetches a registry package's simple-index
// page (once per run), builds its candidate list via finder.Find,
// picks the highest candidate consistent with narrowed, and commits
// to it.
func (s *Service) decideAndExpandRegistry(ctx context.Context, st *solverState, name string, narrowed pep440.Range) error {
	candidates, err := s.candidatesFor(ctx, st, name)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if narrowed.Contains(c.Version) {
			return s.commitCandidate(ctx, st, name, c, narrowed)
		}
	}

	return &errkind.NoMatchingVersion{Package: name, Constraint: rangeDescription(narrowed)}
}

// redecide is called when a new edge narrows an already-decided
// package's admissible range past its current decision. Rather than
// treating that as terminal, it looks for another candidate -- from
// the same cached candidate list, no re-fetch needed -- that still
// fits the tightened range, and re-commits to it. This is the
// resolver's one real backjump step: a previously settled decision
// gets revised in light of later information instead of the whole
// resolve failing on the first such collision.
func (s *Service) redecide(ctx context.Context, st *solverState, name string, narrowed pep440.Range) error {
	candidates, ok := st.candidates[name]
	if !ok {
		return &errkind.Conflict{Explanation: explain.Conflict(name, st.edges[name])}
	}

	s.logger.Debug("re-deciding package against tightened range",
		"name", name, "previous", st.decided[name].String())

	for _, c := range candidates {
		if narrowed.Contains(c.Version) {
			return s.commitCandidate(ctx, st, name, c, narrowed)
		}
	}

	return &errkind.Conflict{Explanation: explain.Conflict(name, st.edges[name])}
}

// candidatesFor returns name's candidate list, fetching and filtering
// it via the simple index and finder.Find on first use and caching the
// result for any later re-decision.
func (s *Service) candidatesFor(ctx context.Context, st *solverState, name string) ([]finder.Candidate, error) {
	if cached, ok := st.candidates[name]; ok {
		return cached, nil
	}

	meta, ok := st.simple[name]
	if !ok {
		s.logger.Debug("fetching simple index", "name", name)

		fetched, err := s.registry.Simple(ctx, name, s.indexURL)
		if err != nil {
			return nil, errkind.NewNotFound(name, err)
		}

		meta = fetched
		st.simple[name] = meta
	}

	opts := finder.Options{
		CompatTags:     s.compatTags,
		Prerelease:     s.prerelease,
		UploadCeiling:  s.uploadCeiling,
		AllowedHashes:  s.allowedHashes,
		RequiresPython: s.runtimePythonRange(),
	}

	candidates := finder.Find(name, meta.Files, opts)
	st.candidates[name] = candidates

	return candidates, nil
}

// commitCandidate records the decision to install candidate for name,
// fetches its dependency list (the cheap metadata-only route for
// wheels, the full fetch+build pipeline for sdist-only candidates),
// and enqueues those dependencies for propagation.
func (s *Service) commitCandidate(ctx context.Context, st *solverState, name string, candidate finder.Candidate, narrowed pep440.Range) error {
	st.decided[name] = candidate.Version

	meta, err := s.candidateMetadata(ctx, candidate.Distribution)
	if err != nil {
		return fmt.Errorf("fetching metadata for %s %s: %w", name, candidate.Version, err)
	}

	extrasActive := st.extras[name]
	env := s.markerEnv.toEnvironment(extrasActive)

	var depNames []string

	for _, depReq := range meta.RequiresDist {
		if !depReq.Marker.Eval(env) {
			continue
		}

		depNames = append(depNames, depReq.Name)
	}

	st.resolved[name] = &ResolvedPackage{
		Name:         name,
		Version:      candidate.Version.String(),
		Extras:       extrasSlice(extrasActive),
		Dependencies: depNames,
		Distribution: candidate.Distribution,
	}

	idx := st.g.AddNode(name, candidate.Version.String(), "registry", extrasSlice(extrasActive))

	for _, e := range st.edges[name] {
		if e.From == "" {
			continue
		}

		if fromIdx := st.g.IndexOf(e.From); fromIdx >= 0 {
			st.g.AddEdge(fromIdx, idx, e.Specifier, "")
		}
	}

	if s.noDeps {
		return nil
	}

	for _, depReq := range meta.RequiresDist {
		st.queue = append(st.queue, pendingReq{req: depReq, from: name})
	}

	return nil
}

// candidateMetadata fetches the RequiresDist list for a chosen
// candidate: a ranged metadata-only fetch for wheels (via
// pypi.Service.FileMetadata, the cheapest route the index supports),
// or a full fetch-then-build through the distribution pipeline for
// sdist-only candidates, which have no metadata to read until built.
func (s *Service) candidateMetadata(ctx context.Context, d distribution.Distribution) (*metadata.Metadata, error) {
	if d.Kind == distribution.WheelKind {
		data, err := s.registry.FileMetadata(ctx, pypi.File{Filename: d.Filename, URL: d.URL})
		if err != nil {
			return nil, err
		}

		return metadata.ParseBytes(data)
	}

	if s.dist == nil {
		return nil, fmt.Errorf("building %s: no distribution pipeline configured", d)
	}

	return s.dist.Metadata(ctx, d)
}

// runtimePythonRange is the single-version range a file's
// Requires-Python is checked against: the interpreter the resolver is
// planning an install for, not a specifier set of its own.
func (s *Service) runtimePythonRange() pep440.Range {
	if s.markerEnv.PythonVersion == "" {
		return pep440.All()
	}

	v, err := pep440.Parse(s.markerEnv.PythonVersion)
	if err != nil {
		return pep440.All()
	}

	return pep440.Singleton(v)
}

func rangeDescription(r pep440.Range) string {
	if r.IsEmpty() {
		return "(empty range)"
	}

	return "the accumulated specifier set"
}

func extrasSlice(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}

	out := make([]string, 0, len(m))
	for e := range m {
		out = append(out, e)
	}

	sort.Strings(out)

	return out
}
