package types

import "strings"

// ToId normalizes a user or room name to its canonical id: lowercase, with
// everything but letters and digits stripped. Rank prefixes, spaces and
// unicode decoration all disappear, so "+Some User!" and "someuser" collide
// on purpose.
func ToId(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
