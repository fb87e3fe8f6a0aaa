package relay

import "unicode/utf8"

const ellipsis = "…"

// TruncateText shortens s to at most maxBytes bytes without splitting a
// UTF-8 sequence, marking the cut with an ellipsis.
func TruncateText(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes - len(ellipsis)
	if cut <= 0 {
		return ""
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
