package pypiname_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/pypiname"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Flask":           "flask",
		"flask_restful":   "flask-restful",
		"flask.restful":   "flask-restful",
		"Flask--Restful":  "flask-restful",
		"zope.interface":  "zope-interface",
		"already-normal":  "already-normal",
	}

	for in, want := range tests {
		if got := pypiname.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	names := []string{"Flask", "zope.interface", "a__b..c"}
	for _, n := range names {
		once := pypiname.Normalize(n)
		twice := pypiname.Normalize(once)

		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", n, once, twice)
		}
	}
}

func TestEqual(t *testing.T) {
	if !pypiname.Equal("Flask_Restful", "flask-restful") {
		t.Errorf("expected names to be equal under normalization")
	}
}
