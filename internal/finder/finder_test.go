package finder_test

import (
	"testing"
	"time"

	"github.com/bilusteknoloji/pipg/internal/finder"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pypi"
)

func compatTags() []finder.WheelTag {
	return []finder.WheelTag{
		{Python: "cp312", ABI: "cp312", Platform: "manylinux_2_17_x86_64"},
		{Python: "py3", ABI: "none", Platform: "any"},
	}
}

func TestParseWheelFilename(t *testing.T) {
	name, version, tag, err := finder.ParseWheelFilename("flask-3.0.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("ParseWheelFilename() error: %v", err)
	}

	if name != "flask" || version != "3.0.0" {
		t.Errorf("got name=%q version=%q", name, version)
	}

	if tag.Python != "py3" || tag.ABI != "none" || tag.Platform != "any" {
		t.Errorf("tag = %+v", tag)
	}
}

func TestFindOrdersByDescendingVersion(t *testing.T) {
	files := []pypi.File{
		{Filename: "flask-2.0.0-py3-none-any.whl", URL: "u1"},
		{Filename: "flask-3.0.0-py3-none-any.whl", URL: "u2"},
		{Filename: "flask-2.9.0-py3-none-any.whl", URL: "u3"},
	}

	candidates := finder.Find("flask", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
		Prerelease:     finder.IfNecessaryOrExplicit,
	})

	if len(candidates) != 3 {
		t.Fatalf("len = %d, want 3", len(candidates))
	}

	want := []string{"3.0.0", "2.9.0", "2.0.0"}
	for i, w := range want {
		if candidates[i].Version.String() != w {
			t.Errorf("candidates[%d] = %s, want %s", i, candidates[i].Version, w)
		}
	}
}

func TestFindDropsIncompatibleWheelTags(t *testing.T) {
	files := []pypi.File{
		{Filename: "numpy-2.0.0-cp39-cp39-win_amd64.whl", URL: "u1"},
	}

	candidates := finder.Find("numpy", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
	})

	if len(candidates) != 0 {
		t.Errorf("expected no candidates for incompatible tag, got %d", len(candidates))
	}
}

func TestFindFallsBackToSdist(t *testing.T) {
	files := []pypi.File{
		{Filename: "weird-1.0.0.tar.gz", URL: "u1"},
	}

	candidates := finder.Find("weird", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
	})

	if len(candidates) != 1 {
		t.Fatalf("len = %d, want 1", len(candidates))
	}

	if candidates[0].Distribution.Filename != "weird-1.0.0.tar.gz" {
		t.Errorf("Filename = %q", candidates[0].Distribution.Filename)
	}
}

func TestFindDropsYankedUnlessPinned(t *testing.T) {
	files := []pypi.File{
		{Filename: "flask-3.0.0-py3-none-any.whl", URL: "u1", Yanked: true, YankedReason: "cve"},
	}

	dropped := finder.Find("flask", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
	})
	if len(dropped) != 0 {
		t.Errorf("expected yanked file dropped, got %d candidates", len(dropped))
	}

	kept := finder.Find("flask", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
		PinnedVersion:  "3.0.0",
	})
	if len(kept) != 1 {
		t.Errorf("expected yanked pinned version kept, got %d candidates", len(kept))
	}
}

func TestFindDropsDisjointRequiresPython(t *testing.T) {
	files := []pypi.File{
		{Filename: "flask-3.0.0-py3-none-any.whl", URL: "u1", RequiresPython: ">=3.12"},
	}

	rng, err := pep440.ParseSpecifierSet("<3.9")
	if err != nil {
		t.Fatal(err)
	}

	candidates := finder.Find("flask", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: rng,
	})

	if len(candidates) != 0 {
		t.Errorf("expected candidate dropped for disjoint requires-python, got %d", len(candidates))
	}
}

func TestFindDropsAfterUploadCeiling(t *testing.T) {
	ceiling := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	files := []pypi.File{
		{Filename: "flask-3.0.0-py3-none-any.whl", URL: "u1", UploadTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}

	candidates := finder.Find("flask", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
		UploadCeiling:  ceiling,
	})

	if len(candidates) != 0 {
		t.Errorf("expected candidate dropped for exceeding upload ceiling, got %d", len(candidates))
	}
}

func TestFindPrereleaseDisallowDropsPrereleases(t *testing.T) {
	files := []pypi.File{
		{Filename: "flask-3.0.0rc1-py3-none-any.whl", URL: "u1"},
	}

	candidates := finder.Find("flask", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
		Prerelease:     finder.Disallow,
	})

	if len(candidates) != 0 {
		t.Errorf("expected prerelease dropped under Disallow, got %d", len(candidates))
	}
}

func TestFindPrereleaseIfNecessaryKeepsOnlyWhenNoStable(t *testing.T) {
	files := []pypi.File{
		{Filename: "flask-3.0.0rc1-py3-none-any.whl", URL: "u1"},
	}

	candidates := finder.Find("flask", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
		Prerelease:     finder.IfNecessary,
	})

	if len(candidates) != 1 {
		t.Errorf("expected prerelease kept when no stable exists, got %d", len(candidates))
	}

	filesWithStable := append(files, pypi.File{Filename: "flask-2.0.0-py3-none-any.whl", URL: "u2"})

	candidates = finder.Find("flask", filesWithStable, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
		Prerelease:     finder.IfNecessary,
	})

	for _, c := range candidates {
		if c.PreRelease {
			t.Errorf("expected prerelease dropped when a stable version exists")
		}
	}
}

func TestFindLocalOverrideRewritesVersion(t *testing.T) {
	files := []pypi.File{
		{Filename: "torch-2.0.0-py3-none-any.whl", URL: "u1"},
	}

	candidates := finder.Find("torch", files, finder.Options{
		CompatTags:     compatTags(),
		RequiresPython: pep440.All(),
		LocalOverrides: map[string]string{"2.0.0": "cu118"},
	})

	if len(candidates) != 1 {
		t.Fatalf("len = %d, want 1", len(candidates))
	}

	if !candidates[0].Version.HasLocal() || candidates[0].Version.Local() != "cu118" {
		t.Errorf("expected local override applied, got %v", candidates[0].Version)
	}
}
