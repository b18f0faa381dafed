package scoring

import (
	"fmt"
	"strconv"
	"strings"
)

type semver [3]int

func parseSemver(v string) (semver, bool) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	if len(parts) != 3 {
		return semver{}, false
	}
	var out semver
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return semver{}, false
		}
		out[i] = n
	}
	return out, true
}

// BumpPatch increments the patch component. Unparseable versions restart from
// DefaultVersion.
func BumpPatch(version string) string {
	v, ok := parseSemver(version)
	if !ok {
		v, _ = parseSemver(DefaultVersion)
	}
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2]+1)
}
