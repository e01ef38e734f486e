package resource

import "strconv"

// CompareVersions orders two resourceVersions. They are opaque tokens, but the API server
// issues them from a monotonically increasing counter, so numeric tokens compare numerically.
// Non-numeric tokens fall back to length then lexical order. An empty version is older than
// any non-empty one.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}

	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}

	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	if a < b {
		return -1
	}
	return 1
}

// IsOlder reports whether incoming is strictly older than current
func IsOlder(incoming, current string) bool {
	return CompareVersions(incoming, current) < 0
}
