package marker_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/marker"
)

func env() marker.Environment {
	return marker.Environment{
		PythonVersion: "3.12",
		SysPlatform:   "linux",
		OsName:        "posix",
		Extras:        map[string]bool{"binary": true},
	}
}

func TestEvalSimpleComparison(t *testing.T) {
	tree, err := marker.Parse(`python_version < "3.10"`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if tree.Eval(env()) {
		t.Errorf("expected python_version < 3.10 to be false for 3.12")
	}
}

func TestEvalAndOr(t *testing.T) {
	tree, err := marker.Parse(`sys_platform == "linux" and python_version >= "3.8"`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !tree.Eval(env()) {
		t.Errorf("expected conjunction to be true")
	}

	tree2, err := marker.Parse(`sys_platform == "darwin" or python_version >= "3.8"`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !tree2.Eval(env()) {
		t.Errorf("expected disjunction to be true")
	}
}

func TestEvalExtra(t *testing.T) {
	tree, err := marker.Parse(`extra == "binary"`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !tree.Eval(env()) {
		t.Errorf("expected extra == binary to be true when binary is active")
	}

	tree2, err := marker.Parse(`extra == "pool"`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if tree2.Eval(env()) {
		t.Errorf("expected extra == pool to be false when only binary is active")
	}
}

func TestEmptyMarkerIsAlwaysTrue(t *testing.T) {
	tree, err := marker.Parse("")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !tree.Eval(env()) {
		t.Errorf("expected empty marker to always evaluate true")
	}
}

func TestParenthesizedGroup(t *testing.T) {
	tree, err := marker.Parse(`(sys_platform == "darwin" or sys_platform == "linux") and os_name == "posix"`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !tree.Eval(env()) {
		t.Errorf("expected grouped marker to be true")
	}
}
