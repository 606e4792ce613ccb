package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SeedVersion is the version label holding the original annual waterfall.
const SeedVersion = "month-0"

// VersionLabel formats the label of the Nth monthly version.
func VersionLabel(n int) string {
	return fmt.Sprintf("month-%d", n)
}

// VersionSequence parses a "month-N" label back into its sequence number.
func VersionSequence(label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, "month-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
