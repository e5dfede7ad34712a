package pep440

import (
	"fmt"
	"strconv"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
)

// bound is one endpoint of an interval. A nil Version with inclusive
// false and unbounded true represents +/-infinity.
type bound struct {
	version    Version
	inclusive  bool
	unbounded  bool
}

// interval is a single half-open-or-closed segment (lo, hi).
type interval struct {
	lo, hi bound
}

// Range is a finite union of intervals over Version, used both as the
// resolver's per-package derivation and as the lowered form of a PEP 440
// specifier set.
type Range struct {
	intervals []interval
}

func unbounded() bound { return bound{unbounded: true} }

func inclusiveBound(v Version) bound  { return bound{version: v, inclusive: true} }
func exclusiveBound(v Version) bound  { return bound{version: v, inclusive: false} }

// Empty returns the range containing no versions.
func Empty() Range { return Range{} }

// All returns the range containing every version.
func All() Range {
	return Range{intervals: []interval{{lo: unbounded(), hi: unbounded()}}}
}

// Singleton returns the range containing exactly v.
func Singleton(v Version) Range {
	return Range{intervals: []interval{{lo: inclusiveBound(v), hi: inclusiveBound(v)}}}
}

// AtLeast returns [v, +inf).
func AtLeast(v Version) Range {
	return Range{intervals: []interval{{lo: inclusiveBound(v), hi: unbounded()}}}
}

// GreaterThan returns (v, +inf).
func GreaterThan(v Version) Range {
	return Range{intervals: []interval{{lo: exclusiveBound(v), hi: unbounded()}}}
}

// AtMost returns (-inf, v].
func AtMost(v Version) Range {
	return Range{intervals: []interval{{lo: unbounded(), hi: inclusiveBound(v)}}}
}

// LessThan returns (-inf, v).
func LessThan(v Version) Range {
	return Range{intervals: []interval{{lo: unbounded(), hi: exclusiveBound(v)}}}
}

// Between returns [lo, hi) or [lo, hi] depending on hiInclusive.
func Between(lo, hi Version, hiInclusive bool) Range {
	hiBound := exclusiveBound(hi)
	if hiInclusive {
		hiBound = inclusiveBound(hi)
	}

	return Range{intervals: []interval{{lo: inclusiveBound(lo), hi: hiBound}}}
}

// IsEmpty reports whether the range contains no versions.
func (r Range) IsEmpty() bool { return len(r.intervals) == 0 }

// Contains reports whether v falls within the range.
func (r Range) Contains(v Version) bool {
	for _, iv := range r.intervals {
		if intervalContains(iv, v) {
			return true
		}
	}

	return false
}

func intervalContains(iv interval, v Version) bool {
	if !iv.lo.unbounded {
		switch {
		case iv.lo.inclusive && v.Less(iv.lo.version):
			return false
		case !iv.lo.inclusive && !v.Greater(iv.lo.version):
			return false
		}
	}

	if !iv.hi.unbounded {
		switch {
		case iv.hi.inclusive && v.Greater(iv.hi.version):
			return false
		case !iv.hi.inclusive && !v.Less(iv.hi.version):
			return false
		}
	}

	return true
}

// boundCmp orders two bounds of the same side (lower bounds when isLower,
// upper bounds otherwise) by position: -1 if a lies before b, 0 if they are
// the same bound, 1 if a lies after b. An unbounded bound is -inf on the
// lower side and +inf on the upper side.
func boundCmp(a, b bound, isLower bool) int {
	if a.unbounded && b.unbounded {
		return 0
	}

	if a.unbounded {
		if isLower {
			return -1
		}

		return 1
	}

	if b.unbounded {
		if isLower {
			return 1
		}

		return -1
	}

	switch a.version.Compare(b.version) {
	case -1:
		return -1
	case 1:
		return 1
	default:
		if a.inclusive == b.inclusive {
			return 0
		}
		// Same version: for a lower bound, inclusive sorts before exclusive
		// (it admits more); for an upper bound, inclusive sorts after
		// exclusive.
		if isLower {
			if a.inclusive {
				return -1
			}

			return 1
		}

		if a.inclusive {
			return 1
		}

		return -1
	}
}

// Union returns the set union of r and other.
func (r Range) Union(other Range) Range {
	all := append(append([]interval{}, r.intervals...), other.intervals...)
	return Range{intervals: normalize(all)}
}

// Intersection returns the set intersection of r and other.
func (r Range) Intersection(other Range) Range {
	var result []interval

	for _, a := range r.intervals {
		for _, b := range other.intervals {
			if iv, ok := intersectIntervals(a, b); ok {
				result = append(result, iv)
			}
		}
	}

	return Range{intervals: normalize(result)}
}

func intersectIntervals(a, b interval) (interval, bool) {
	lo := a.lo
	if boundCmp(b.lo, a.lo, true) > 0 {
		lo = b.lo
	}

	hi := a.hi
	if boundCmp(b.hi, a.hi, false) < 0 {
		hi = b.hi
	}

	if !lo.unbounded && !hi.unbounded {
		switch lo.version.Compare(hi.version) {
		case 1:
			return interval{}, false
		case 0:
			if !lo.inclusive || !hi.inclusive {
				return interval{}, false
			}
		}
	}

	return interval{lo: lo, hi: hi}, true
}

// Complement returns the set complement of r.
func (r Range) Complement() Range {
	sorted := normalize(r.intervals)

	if len(sorted) == 0 {
		return All()
	}

	var result []interval

	cursor := unbounded()

	for _, iv := range sorted {
		if !boundsEqualUnbounded(cursor, iv.lo) {
			result = append(result, interval{lo: cursor, hi: flip(iv.lo, false)})
		}

		cursor = flip(iv.hi, true)
	}

	if !cursor.unbounded {
		result = append(result, interval{lo: cursor, hi: unbounded()})
	}

	return Range{intervals: result}
}

func boundsEqualUnbounded(a, b bound) bool {
	return a.unbounded && b.unbounded
}

// flip turns a hi-bound into the lo-bound of the complementary interval
// (or vice versa): an inclusive endpoint becomes exclusive and vice versa.
func flip(b bound, asLower bool) bound {
	if b.unbounded {
		return unbounded()
	}

	_ = asLower

	return bound{version: b.version, inclusive: !b.inclusive}
}

// normalize sorts intervals by lower bound and merges overlapping or
// touching segments so Union/Intersection/Complement always return a
// canonical minimal representation.
func normalize(intervals []interval) []interval {
	nonEmpty := intervals[:0:0]

	for _, iv := range intervals {
		if !isDegenerateEmpty(iv) {
			nonEmpty = append(nonEmpty, iv)
		}
	}

	if len(nonEmpty) == 0 {
		return nil
	}

	sortIntervals(nonEmpty)

	merged := []interval{nonEmpty[0]}

	for _, iv := range nonEmpty[1:] {
		last := &merged[len(merged)-1]

		if overlapsOrTouches(*last, iv) {
			if boundCmp(iv.hi, last.hi, false) > 0 {
				last.hi = iv.hi
			}

			continue
		}

		merged = append(merged, iv)
	}

	return merged
}

func isDegenerateEmpty(iv interval) bool {
	if iv.lo.unbounded || iv.hi.unbounded {
		return false
	}

	switch iv.lo.version.Compare(iv.hi.version) {
	case 1:
		return true
	case 0:
		return !(iv.lo.inclusive && iv.hi.inclusive)
	default:
		return false
	}
}

func sortIntervals(intervals []interval) {
	for i := 1; i < len(intervals); i++ {
		for j := i; j > 0 && boundCmp(intervals[j].lo, intervals[j-1].lo, true) < 0; j-- {
			intervals[j], intervals[j-1] = intervals[j-1], intervals[j]
		}
	}
}

// overlapsOrTouches reports whether b's lower bound falls within or
// immediately adjacent to a's span, so the two intervals can merge.
func overlapsOrTouches(a, b interval) bool {
	if a.hi.unbounded || b.lo.unbounded {
		return true
	}

	switch a.hi.version.Compare(b.lo.version) {
	case 1:
		return true
	case 0:
		return a.hi.inclusive || b.lo.inclusive
	default:
		return false
	}
}

// ParseSpecifierSet lowers a PEP 440 specifier set string
// (">=1,<2,!=1.3.*") to a Range by parsing each atom and intersecting
// the induced ranges.
func ParseSpecifierSet(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return All(), nil
	}

	if _, err := version.NewSpecifiers(s); err != nil {
		return Range{}, fmt.Errorf("parsing specifier set %q: %w", s, err)
	}

	result := All()

	for _, atom := range splitSpecifiers(s) {
		atomRange, err := lowerAtom(atom)
		if err != nil {
			return Range{}, fmt.Errorf("lowering specifier %q: %w", atom, err)
		}

		result = result.Intersection(atomRange)
	}

	return result, nil
}

func splitSpecifiers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// lowerAtom lowers a single specifier atom (">=1.0", "==1.0.*", "~=1.4",
// "!=1.3") to a Range, per spec.md section 3.
func lowerAtom(atom string) (Range, error) {
	op, rest := splitOperator(atom)
	rest = strings.TrimSpace(rest)

	switch op {
	case ">=":
		v, err := Parse(rest)
		if err != nil {
			return Range{}, err
		}

		return AtLeast(v), nil
	case ">":
		v, err := Parse(rest)
		if err != nil {
			return Range{}, err
		}

		return GreaterThan(v), nil
	case "<=":
		v, err := Parse(rest)
		if err != nil {
			return Range{}, err
		}

		return AtMost(v), nil
	case "<":
		v, err := Parse(rest)
		if err != nil {
			return Range{}, err
		}

		return LessThan(v), nil
	case "==":
		if strings.HasSuffix(rest, ".*") {
			return lowerWildcard(strings.TrimSuffix(rest, ".*"))
		}

		v, err := Parse(rest)
		if err != nil {
			return Range{}, err
		}

		return Singleton(v.BaseVersion()), nil
	case "!=":
		if strings.HasSuffix(rest, ".*") {
			wc, err := lowerWildcard(strings.TrimSuffix(rest, ".*"))
			if err != nil {
				return Range{}, err
			}

			return wc.Complement(), nil
		}

		v, err := Parse(rest)
		if err != nil {
			return Range{}, err
		}

		return Singleton(v).Complement(), nil
	case "~=":
		return lowerCompatible(rest)
	default:
		return Range{}, fmt.Errorf("unsupported specifier operator %q", op)
	}
}

func splitOperator(atom string) (op, rest string) {
	for _, candidate := range []string{">=", "<=", "==", "!=", "~=", ">", "<"} {
		if strings.HasPrefix(atom, candidate) {
			return candidate, strings.TrimPrefix(atom, candidate)
		}
	}

	return "", atom
}

// lowerWildcard lowers "X.Y.*" to [X.Y.dev0, X.(Y+1).dev0).
func lowerWildcard(prefix string) (Range, error) {
	lo, err := Parse(prefix)
	if err != nil {
		return Range{}, err
	}

	hiStr, err := bumpLastSegment(prefix)
	if err != nil {
		return Range{}, err
	}

	hi, err := Parse(hiStr + ".dev0")
	if err != nil {
		return Range{}, err
	}

	loDev, err := Parse(prefix + ".dev0")
	if err != nil {
		loDev = lo
	}

	return Between(loDev, hi, false), nil
}

// lowerCompatible lowers "~=X.Y" to [X.Y, X.(Y+1)).
func lowerCompatible(spec string) (Range, error) {
	lo, err := Parse(spec)
	if err != nil {
		return Range{}, err
	}

	hiStr, err := bumpLastSegment(spec)
	if err != nil {
		return Range{}, err
	}

	hi, err := Parse(hiStr)
	if err != nil {
		return Range{}, err
	}

	return Between(lo, hi, false), nil
}

// truncateLastSegment drops the final release segment, e.g. "1.4.2" -> "1.4".
func truncateLastSegment(s string) string {
	idx := strings.LastIndexByte(s, '.')
	if idx < 0 {
		return s
	}

	return s[:idx]
}

// bumpLastSegment increments the final numeric release segment, e.g.
// "1.4" -> "1.5".
func bumpLastSegment(s string) (string, error) {
	idx := strings.LastIndexByte(s, '.')

	head := s
	last := ""

	if idx >= 0 {
		head = s[:idx]
		last = s[idx+1:]
	} else {
		last = s
		head = ""
	}

	n, err := strconv.Atoi(last)
	if err != nil {
		return "", fmt.Errorf("bumping version segment %q: %w", s, err)
	}

	bumped := strconv.Itoa(n + 1)

	if head == "" {
		return bumped, nil
	}

	return head + "." + bumped, nil
}
