// Package finder enumerates candidate distributions for a package
// under policy: upload-time ceiling, yanked handling, requires-python
// gating, wheel-tag compatibility, and hash allow-listing, emitting
// survivors grouped by version in descending order.
//
// The tag model (WheelTag, ParseWheelFilename, tagMatches,
// fieldMatches) is carried over unchanged in logic from the teacher's
// internal/downloader/wheel.go -- the algorithm already matches the
// specification, so it moves rather than gets rewritten.
package finder

import (
	"fmt"
	"strings"
)

// WheelTag represents a PEP 425 compatibility tag.
type WheelTag struct {
	Python   string // e.g., "cp312", "py3"
	ABI      string // e.g., "cp312", "none"
	Platform string // e.g., "manylinux_2_17_x86_64", "any"
}

func (t WheelTag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// ParseWheelFilename parses a wheel filename into its components.
// Format: {name}-{ver}[-{build}]-{python}-{abi}-{platform}.whl
func ParseWheelFilename(filename string) (name, version string, tag WheelTag, err error) {
	trimmed := strings.TrimSuffix(filename, ".whl")

	parts := strings.Split(trimmed, "-")
	if len(parts) < 5 {
		return "", "", WheelTag{}, fmt.Errorf("invalid wheel filename %q: expected at least 5 parts", filename)
	}

	// Last 3 parts are always python-abi-platform.
	// First part is name, second is version.
	// Optional build tag is between version and python tag.
	tag = WheelTag{
		Python:   parts[len(parts)-3],
		ABI:      parts[len(parts)-2],
		Platform: parts[len(parts)-1],
	}

	name = parts[0]
	version = parts[1]

	return name, version, tag, nil
}

// tagMatches checks if a wheel tag matches a compatibility tag.
// Wheel tags can have compound values separated by "." (e.g., "py2.py3"),
// meaning the wheel supports any of those values.
func tagMatches(wheel, compat WheelTag) bool {
	return fieldMatches(wheel.Python, compat.Python) &&
		fieldMatches(wheel.ABI, compat.ABI) &&
		fieldMatches(wheel.Platform, compat.Platform)
}

// fieldMatches checks if a wheel tag field matches a compat tag value.
// The wheel field may contain multiple values separated by ".".
func fieldMatches(wheelField, compatValue string) bool {
	for _, w := range strings.Split(wheelField, ".") {
		if w == compatValue {
			return true
		}
	}

	return false
}

// bestPriority returns the index of the first tag in compatTags that
// wheel's tag matches, or -1 if none match. Lower is better.
func bestPriority(tag WheelTag, compatTags []WheelTag) int {
	for i, ct := range compatTags {
		if tagMatches(tag, ct) {
			return i
		}
	}

	return -1
}
