package ranking

import (
	"regexp"
	"strconv"
)

var numberPattern = regexp.MustCompile(`\b\d+\b`)

// ParseRanking extracts candidate numbers from a reasoner reply. Numbers
// outside 1..n are dropped, the rest are returned zero-based in reply order,
// at most limit of them. Repeated numbers are kept.
func ParseRanking(reply string, n, limit int) []int {
	if n <= 0 || limit <= 0 {
		return nil
	}

	var indices []int
	for _, m := range numberPattern.FindAllString(reply, -1) {
		v, err := strconv.Atoi(m)
		if err != nil || v < 1 || v > n {
			continue
		}
		indices = append(indices, v-1)
		if len(indices) == limit {
			break
		}
	}
	return indices
}
