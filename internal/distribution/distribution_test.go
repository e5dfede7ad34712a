package distribution_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/distribution"
)

func TestDistributionIDWheel(t *testing.T) {
	d := distribution.Distribution{Kind: distribution.WheelKind, Filename: "flask-3.0.0-py3-none-any.whl"}

	if distribution.DistributionID(d).String() != "flask-3.0.0-py3-none-any.whl" {
		t.Errorf("ID = %q", distribution.DistributionID(d))
	}
}

func TestDistributionIDVcsCheckoutIncludesRev(t *testing.T) {
	a := distribution.Distribution{Kind: distribution.VcsCheckoutKind, VcsURL: "https://github.com/pallets/flask", ResolvedRev: "abc123"}
	b := distribution.Distribution{Kind: distribution.VcsCheckoutKind, VcsURL: "https://github.com/pallets/flask", ResolvedRev: "def456"}

	if distribution.DistributionID(a) == distribution.DistributionID(b) {
		t.Error("expected different revs to produce different IDs")
	}
}

func TestIsBuildRequired(t *testing.T) {
	cases := []struct {
		kind distribution.Kind
		want bool
	}{
		{distribution.WheelKind, false},
		{distribution.SdistKind, true},
		{distribution.VcsCheckoutKind, true},
		{distribution.LocalDirectoryKind, true},
	}

	for _, c := range cases {
		d := distribution.Distribution{Kind: c.kind}
		if got := d.IsBuildRequired(); got != c.want {
			t.Errorf("IsBuildRequired(%v) = %v, want %v", c.kind, got, c.want)
		}
	}
}
