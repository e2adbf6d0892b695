package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// areaNoise lists address fragments that never name the display area:
// neighbourhood unit codes, street and building words, and the country/island.
var areaNoise = []string{"rt", "rw", "jalan", "menara", "indonesia"}

// MainArea picks the display area out of a free-text address: the first
// comma-separated part that is not a neighbourhood unit, street, building,
// island or country name. It returns "" when no part qualifies.
func MainArea(location string) string {
	fold := cases.Fold()
	for _, part := range strings.Split(location, ",") {
		trimmed := strings.TrimSpace(part)
		folded := fold.String(trimmed)
		if folded == "" || folded == "java" {
			continue
		}
		noisy := false
		for _, n := range areaNoise {
			if strings.Contains(folded, n) {
				noisy = true
				break
			}
		}
		if !noisy {
			return trimmed
		}
	}
	return ""
}

// MainAreas returns the non-empty display areas of reports, in order.
func MainAreas(reports []Report) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		if a := MainArea(r.Location); a != "" {
			out = append(out, a)
		}
	}
	return out
}
