package reconcile

import (
	"strconv"
	"strings"
)

// CompareVersions orders two loosely formatted version strings.
// Dotted components are compared numerically when both sides parse as
// integers and lexically otherwise; a missing component compares as
// lower, so "0.8.1" > "0.8". Returns -1, 0 or 1.
//
// Pod software versions are not guaranteed to be strict semver, so no
// full parser is used; this matches how the network itself compares
// them.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}

	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		// Exhausted side loses
		if i >= len(as) {
			return -1
		}
		if i >= len(bs) {
			return 1
		}

		if c := compareComponent(as[i], bs[i]); c != 0 {
			return c
		}
	}

	return 0
}

// compareComponent compares one dotted component, numerically if possible.
func compareComponent(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)

	if aerr == nil && berr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(a, b)
}
