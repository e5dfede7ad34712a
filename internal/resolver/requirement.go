package resolver

import (
	"github.com/bilusteknoloji/pipg/internal/marker"
)

// MarkerEnv holds environment variables used for evaluating PEP 508 markers.
// It is the caller-facing shape (plain strings, set up once from the
// discovered interpreter); internally it is converted to a
// marker.Environment so evaluation goes through the shared parser.
type MarkerEnv struct {
	PythonVersion string // e.g., "3.12"
	SysPlatform   string // e.g., "darwin", "linux"
	OsName        string // e.g., "posix"
}

// toEnvironment adapts a MarkerEnv to the marker package's Environment,
// binding the given set of active extras for the package currently
// being expanded.
func (e MarkerEnv) toEnvironment(extras map[string]bool) marker.Environment {
	return marker.Environment{
		PythonVersion: e.PythonVersion,
		SysPlatform:   e.SysPlatform,
		OsName:        e.OsName,
		Extras:        extras,
	}
}
