package session

import "strconv"

// formatLevel renders a level the way flows see it: whole numbers without a
// decimal point, fractional values trimmed.
func formatLevel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
