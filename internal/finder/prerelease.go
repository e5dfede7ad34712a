package finder

// PrereleaseMode controls whether and when prerelease versions are
// presented as candidates, grounded on uv's PrereleaseStrategy/
// AllowPrerelease three-way result (Yes/No/IfNecessary), collapsed here
// into the policy enum spec.md names directly.
type PrereleaseMode int

const (
	// Disallow never presents prereleases.
	Disallow PrereleaseMode = iota
	// Allow always presents prereleases alongside stable versions.
	Allow
	// IfNecessary presents prereleases only when none of the package's
	// candidates that pass the other filters is stable. The requirement's
	// range is not consulted: a stable release outside the range still
	// suppresses prereleases.
	IfNecessary
	// Explicit presents prereleases only when the requirement's own
	// specifier set contains a prerelease bound (e.g. ">=2.0.0rc1").
	Explicit
	// IfNecessaryOrExplicit is the union of IfNecessary and Explicit,
	// and is the default policy.
	IfNecessaryOrExplicit
)

func (m PrereleaseMode) String() string {
	switch m {
	case Disallow:
		return "disallow"
	case Allow:
		return "allow"
	case IfNecessary:
		return "if-necessary"
	case Explicit:
		return "explicit"
	case IfNecessaryOrExplicit:
		return "if-necessary-or-explicit"
	default:
		return "unknown"
	}
}
