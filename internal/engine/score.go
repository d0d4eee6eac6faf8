package engine

import "github.com/chatchat/chat-app/internal/prefs"

// Score computes the compatibility score between two preference snapshots:
// the size of the value-set intersection, summed over categories present in
// both snapshots. Duplicate values within a category count once. A score of
// zero means "no shared preference" and is never a match.
func Score(a, b prefs.Snapshot) int {
	total := 0
	for category, avals := range a {
		bvals, ok := b[category]
		if !ok {
			continue
		}

		set := make(map[string]struct{}, len(avals))
		for _, v := range avals {
			set[v] = struct{}{}
		}

		counted := make(map[string]struct{})
		for _, v := range bvals {
			if _, shared := set[v]; !shared {
				continue
			}
			if _, dup := counted[v]; dup {
				continue
			}
			counted[v] = struct{}{}
			total++
		}
	}
	return total
}
