package finder

import (
	"sort"
	"strings"
	"time"

	"github.com/bilusteknoloji/pipg/internal/distribution"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pypi"
)

// Candidate is one version of a package together with the preferred
// artifact (wheel if any is compatible, else sdist) to fetch for it.
type Candidate struct {
	Version      pep440.Version
	Distribution distribution.Distribution
	PreRelease   bool
}

// Options configures Find's filtering policy.
type Options struct {
	// CompatTags is ordered by priority, most preferred first.
	CompatTags []WheelTag
	// RequiresPython bounds the current resolution's Python version.
	RequiresPython pep440.Range
	// Prerelease selects the prerelease policy.
	Prerelease PrereleaseMode
	// RequirementHasPrereleaseBound is true when the requirement's own
	// specifier set names a prerelease bound, consulted by Explicit
	// and IfNecessaryOrExplicit.
	RequirementHasPrereleaseBound bool
	// UploadCeiling drops any file uploaded after this instant, unless
	// zero (no ceiling).
	UploadCeiling time.Time
	// PinnedVersion, if non-empty, is the currently-locked version of
	// this package; a yanked file at exactly this version is kept
	// rather than dropped (the "yanked pin" exception).
	PinnedVersion string
	// AllowedHashes, if non-empty, restricts candidates to files with
	// at least one declared hash present in this set (--require-hashes).
	AllowedHashes map[string]struct{}
	// LocalOverrides rewrites a registry candidate at key (a bare
	// version string) to carry the given local segment, implementing
	// spec.md's "==X+local matches cached X" local-version handling
	// for registries, which never publish local versions themselves.
	LocalOverrides map[string]string
}

// Find filters and groups a simple-index project's files into ordered
// candidates, most preferred version first, per spec.md section 4.3's
// five-step algorithm.
func Find(name string, files []pypi.File, opts Options) []Candidate {
	byVersion := map[string][]pypi.File{}

	for _, f := range files {
		if !opts.UploadCeiling.IsZero() && !f.UploadTime.IsZero() && f.UploadTime.After(opts.UploadCeiling) {
			continue
		}

		_, rawVersion, _ := splitFileVersion(f.Filename)
		if rawVersion == "" {
			continue
		}

		if f.Yanked && rawVersion != opts.PinnedVersion {
			continue
		}

		if f.RequiresPython != "" {
			fileRange, err := pep440.ParseSpecifierSet(f.RequiresPython)
			if err == nil && rangesDisjoint(fileRange, opts.RequiresPython) {
				continue
			}
		}

		if len(opts.AllowedHashes) > 0 && !hashAllowed(f, opts.AllowedHashes) {
			continue
		}

		byVersion[rawVersion] = append(byVersion[rawVersion], f)
	}

	var candidates []Candidate

	for rawVersion, group := range byVersion {
		version, err := pep440.Parse(rawVersion)
		if err != nil {
			continue
		}

		if local, ok := opts.LocalOverrides[version.BaseVersion().String()]; ok {
			version, err = pep440.Parse(version.BaseVersion().String() + "+" + local)
			if err != nil {
				continue
			}
		}

		dist, ok := pickArtifact(name, version, group, opts.CompatTags)
		if !ok {
			continue
		}

		candidates = append(candidates, Candidate{
			Version:      version,
			Distribution: dist,
			PreRelease:   version.IsPreRelease(),
		})
	}

	candidates = applyPrereleasePolicy(candidates, opts)

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Version.Greater(candidates[j].Version)
	})

	return candidates
}

// applyPrereleasePolicy drops or keeps prerelease candidates per
// opts.Prerelease, consulting the stable-candidate count for
// IfNecessary/IfNecessaryOrExplicit.
func applyPrereleasePolicy(candidates []Candidate, opts Options) []Candidate {
	hasStable := false

	for _, c := range candidates {
		if !c.PreRelease {
			hasStable = true
			break
		}
	}

	allowExplicit := opts.Prerelease == Explicit || opts.Prerelease == IfNecessaryOrExplicit
	allowIfNecessary := opts.Prerelease == IfNecessary || opts.Prerelease == IfNecessaryOrExplicit

	var out []Candidate

	for _, c := range candidates {
		if !c.PreRelease {
			out = append(out, c)
			continue
		}

		switch {
		case opts.Prerelease == Allow:
			out = append(out, c)
		case allowExplicit && opts.RequirementHasPrereleaseBound:
			out = append(out, c)
		case allowIfNecessary && !hasStable:
			out = append(out, c)
		default:
			// Dropped: Disallow, or a policy that doesn't apply here.
		}
	}

	return out
}

// pickArtifact chooses the highest-priority compatible wheel for
// version, falling back to an sdist if present and no wheel matches.
func pickArtifact(name string, version pep440.Version, files []pypi.File, compatTags []WheelTag) (distribution.Distribution, bool) {
	bestIdx := len(compatTags)
	var bestFile pypi.File
	foundWheel := false

	var sdistFile pypi.File
	foundSdist := false

	for _, f := range files {
		if strings.HasSuffix(f.Filename, ".whl") {
			_, _, tag, err := ParseWheelFilename(f.Filename)
			if err != nil {
				continue
			}

			idx := bestPriority(tag, compatTags)
			if idx < 0 {
				continue
			}

			if idx < bestIdx {
				bestIdx = idx
				bestFile = f
				foundWheel = true
			}
		} else if !foundSdist {
			sdistFile = f
			foundSdist = true
		}
	}

	switch {
	case foundWheel:
		return distribution.Distribution{
			Kind:     distribution.WheelKind,
			Name:     name,
			Version:  version,
			Filename: bestFile.Filename,
			URL:      bestFile.URL,
		}, true
	case foundSdist:
		return distribution.Distribution{
			Kind:     distribution.SdistKind,
			Name:     name,
			Version:  version,
			Filename: sdistFile.Filename,
			URL:      sdistFile.URL,
		}, true
	default:
		return distribution.Distribution{}, false
	}
}

func hashAllowed(f pypi.File, allowed map[string]struct{}) bool {
	for _, h := range f.Hashes {
		if _, ok := allowed[h]; ok {
			return true
		}
	}

	return false
}

// splitFileVersion extracts the raw version string from a wheel or
// sdist filename: "{name}-{version}-..." for wheels, "{name}-{version}"
// (optionally with a known archive suffix) for sdists.
func splitFileVersion(filename string) (name, version string, ok bool) {
	if strings.HasSuffix(filename, ".whl") {
		n, v, _, err := ParseWheelFilename(filename)
		if err != nil {
			return "", "", false
		}

		return n, v, true
	}

	trimmed := filename
	for _, suffix := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".zip"} {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}

	idx := strings.LastIndex(trimmed, "-")
	if idx < 0 {
		return "", "", false
	}

	return trimmed[:idx], trimmed[idx+1:], true
}

// rangesDisjoint reports whether a and b share no version.
func rangesDisjoint(a, b pep440.Range) bool {
	return a.Intersection(b).IsEmpty()
}
