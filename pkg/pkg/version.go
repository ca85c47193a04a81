package pkg

import (
	"strings"
)

// Version is a package version string with a total order. The comparison
// rules follow the common rpm/dpkg convention closely enough for every
// format fsm federates:
//
//   - an optional leading epoch ("2:1.4") dominates the comparison
//   - an optional trailing release ("1.4-3") is compared last
//   - the remainder is compared segment-wise, alternating numeric and
//     alphabetic runs; numeric runs compare as integers, alphabetic runs
//     lexically; numeric runs sort after alphabetic ones
//
// The empty version sorts before everything ("versionless").
//
// Exact per-format semantics (pre-release tags, tildes) are a backend
// concern; within one format the order is total and deterministic, which is
// what resolution requires.
type Version string

// IsZero reports whether the version is empty.
func (v Version) IsZero() bool { return v == "" }

// Compare returns -1, 0 or 1 as v sorts before, equal to, or after o.
func (v Version) Compare(o Version) int {
	if v == o {
		return 0
	}
	if v == "" {
		return -1
	}
	if o == "" {
		return 1
	}

	ve, vu, vr := splitVersion(string(v))
	oe, ou, or := splitVersion(string(o))

	if c := compareFragment(ve, oe); c != 0 {
		return c
	}
	if c := compareFragment(vu, ou); c != 0 {
		return c
	}
	return compareFragment(vr, or)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

func (v Version) String() string {
	if v == "" {
		return "(none)"
	}
	return string(v)
}

// splitVersion separates "epoch:upstream-release" into its three parts.
// Missing epoch and release are returned as "0" and "" respectively.
func splitVersion(s string) (epoch, upstream, release string) {
	epoch = "0"
	if i := strings.IndexByte(s, ':'); i >= 0 && allDigits(s[:i]) {
		epoch, s = s[:i], s[i+1:]
	}
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		s, release = s[:i], s[i+1:]
	}
	return epoch, s, release
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// compareFragment compares two version fragments segment by segment.
func compareFragment(a, b string) int {
	for a != "" || b != "" {
		as, an, arest := nextSegment(a)
		bs, bn, brest := nextSegment(b)
		a, b = arest, brest

		switch {
		case as == "" && bs == "":
			return 0
		case as == "":
			return -1
		case bs == "":
			return 1
		case an != bn:
			// Numeric segments sort after alphabetic ones, matching
			// rpmvercmp ("1.0a" < "1.0.1").
			if an {
				return 1
			}
			return -1
		case an:
			if c := compareNumeric(as, bs); c != 0 {
				return c
			}
		default:
			if c := strings.Compare(as, bs); c != 0 {
				return c
			}
		}
	}
	return 0
}

// nextSegment peels the next run of digits or letters off s, skipping
// separator characters. It reports whether the run is numeric.
func nextSegment(s string) (seg string, numeric bool, rest string) {
	i := 0
	for i < len(s) && !isAlnum(s[i]) {
		i++
	}
	s = s[i:]
	if s == "" {
		return "", false, ""
	}
	numeric = isDigit(s[0])
	j := 0
	for j < len(s) && isAlnum(s[j]) && isDigit(s[j]) == numeric {
		j++
	}
	return s[:j], numeric, s[j:]
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
