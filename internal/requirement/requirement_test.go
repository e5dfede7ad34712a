package requirement_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/requirement"
)

func TestParseSimpleName(t *testing.T) {
	r, err := requirement.Parse("flask")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if r.Name != "flask" {
		t.Errorf("Name = %q, want flask", r.Name)
	}

	if r.Source.Kind != requirement.Registry {
		t.Errorf("Kind = %v, want Registry", r.Source.Kind)
	}

	if !r.Source.Specifier.Contains(pep440.MustParse("9.9.9")) {
		t.Errorf("expected empty specifier to match everything")
	}
}

func TestParseExtras(t *testing.T) {
	r, err := requirement.Parse("psycopg[binary,pool]>=2.9")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if r.Name != "psycopg" {
		t.Errorf("Name = %q, want psycopg", r.Name)
	}

	want := []string{"binary", "pool"}
	if len(r.Extras) != len(want) {
		t.Fatalf("Extras = %v, want %v", r.Extras, want)
	}

	for i, e := range want {
		if r.Extras[i] != e {
			t.Errorf("Extras[%d] = %q, want %q", i, r.Extras[i], e)
		}
	}
}

func TestParseMarker(t *testing.T) {
	r, err := requirement.Parse(`importlib-metadata>=3.6.0; python_version < "3.10"`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if r.Marker.IsEmpty() {
		t.Errorf("expected a non-empty marker")
	}
}

func TestParseDirectURL(t *testing.T) {
	r, err := requirement.Parse("foo @ https://example.com/foo-1.0.tar.gz")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if r.Source.Kind != requirement.URL {
		t.Errorf("Kind = %v, want URL", r.Source.Kind)
	}

	if r.Source.URLValue != "https://example.com/foo-1.0.tar.gz" {
		t.Errorf("URLValue = %q", r.Source.URLValue)
	}
}

func TestParseGitURL(t *testing.T) {
	r, err := requirement.Parse("foo @ git+https://github.com/example/foo@v1.0.0")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if r.Source.Kind != requirement.Git {
		t.Fatalf("Kind = %v, want Git", r.Source.Kind)
	}

	if r.Source.GitReference != "v1.0.0" {
		t.Errorf("GitReference = %q, want v1.0.0", r.Source.GitReference)
	}

	if r.Source.GitURL != "https://github.com/example/foo" {
		t.Errorf("GitURL = %q", r.Source.GitURL)
	}
}

func TestCanonicalURLStripsGitSuffixAndLowercasesHost(t *testing.T) {
	src := requirement.Source{Kind: requirement.Git, GitURL: "https://GitHub.com/example/foo.git"}

	got := src.CanonicalKey()
	want := "https://github.com/example/foo"

	if got != want {
		t.Errorf("CanonicalKey() = %q, want %q", got, want)
	}
}
