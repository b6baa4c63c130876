package moderation

// isCapsAbuse reports whether the letters of the message are long enough and
// sufficiently upper-case to count as shouting.
func isCapsAbuse(msg string) bool {
	letters, upper := 0, 0
	for _, r := range msg {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
			upper++
		case r >= 'a' && r <= 'z':
			letters++
		}
	}
	if letters <= minCapsLength {
		return false
	}
	return float64(upper) >= minCapsProportion*float64(letters)
}

// isStretched reports whether the message stretches a single character into a
// run of stretchSingleRun or more, or repeats a group of two or more
// characters stretchGroupRun or more times in a row. Matching is
// case-insensitive.
func isStretched(msg string) bool {
	r := []rune(lowerRunes(msg))
	run := 1
	for i := 1; i < len(r); i++ {
		if r[i] == r[i-1] {
			run++
			if run >= stretchSingleRun {
				return true
			}
		} else {
			run = 1
		}
	}
	for size := 2; size*stretchGroupRun <= len(r); size++ {
		for start := 0; start+size*stretchGroupRun <= len(r); start++ {
			reps := 1
			for i := start + size; equalRunes(r, start, i, size); i += size {
				reps++
				if reps >= stretchGroupRun {
					return true
				}
			}
		}
	}
	return false
}

func equalRunes(r []rune, a, b, n int) bool {
	if b+n > len(r) {
		return false
	}
	for i := 0; i < n; i++ {
		if r[a+i] != r[b+i] {
			return false
		}
	}
	return true
}

func lowerRunes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
