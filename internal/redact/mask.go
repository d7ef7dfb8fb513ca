package redact

import "strings"

// minMaskLen is the shortest token that gets a head/tail preview instead of
// a flat "***".
const minMaskLen = 18

// Mask applies the masking rule to a single secret-like token: tokens
// shorter than minMaskLen runes collapse to "***"; longer tokens keep the
// first 6 and last 4 runes with an ellipsis between.
func Mask(token string) string {
	runes := []rune(token)
	if len(runes) < minMaskLen {
		return "***"
	}
	return string(runes[:6]) + "…" + string(runes[len(runes)-4:])
}

// maskPEMBlock masks a PEM private-key block down to its header and footer
// lines, leaving the key material between them redacted.
func maskPEMBlock(block string) string {
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	if len(lines) < 2 {
		return Mask(block)
	}
	header := strings.TrimSpace(lines[0])
	footer := strings.TrimSpace(lines[len(lines)-1])
	return header + "\n…\n" + footer
}
