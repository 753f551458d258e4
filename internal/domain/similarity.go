package domain

import "strings"

// TitleSimilarity is the Jaccard index of the lowercase word sets of a and b.
// Two empty titles have similarity 0.
func TitleSimilarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// SameEvent reports whether two events describe the same occurrence: equal
// titles (case and surrounding space ignored) and the same start time. Events
// differing only in start time are distinct.
func SameEvent(a, b Event) bool {
	if !strings.EqualFold(strings.TrimSpace(a.Title), strings.TrimSpace(b.Title)) {
		return false
	}
	ta, errA := ParseTime(a.StartTime)
	tb, errB := ParseTime(b.StartTime)
	if errA == nil && errB == nil {
		return ta.Equal(tb)
	}
	return strings.TrimSpace(a.StartTime) == strings.TrimSpace(b.StartTime)
}
