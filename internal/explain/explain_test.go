package explain_test

import (
	"strings"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/explain"
)

func TestConflictCitesAllEdges(t *testing.T) {
	edges := []explain.Edge{
		{From: "a", To: "shared", Specifier: "shared>=2.0"},
		{From: "b", To: "shared", Specifier: "shared<2.0"},
	}

	msg := explain.Conflict("shared", edges)

	if !strings.Contains(msg, "shared>=2.0") || !strings.Contains(msg, "shared<2.0") {
		t.Errorf("expected explanation to cite both edges, got: %s", msg)
	}

	if !strings.Contains(msg, "a requires") || !strings.Contains(msg, "b requires") {
		t.Errorf("expected explanation to name both requiring packages, got: %s", msg)
	}
}

func TestEdgeStringRootRequirement(t *testing.T) {
	e := explain.Edge{To: "flask", Specifier: "flask>=3.0"}

	if !strings.HasPrefix(e.String(), "root requires") {
		t.Errorf("expected root-requirement phrasing, got: %s", e.String())
	}
}
