package entities

import "strings"

// DefaultTaskColor is the brand color given to tasks without one.
const DefaultTaskColor = "#198CFF"

// NormalizeHexColor falls back to fallback for an empty color and makes sure
// the result starts with '#'.
func NormalizeHexColor(hex, fallback string) string {
	if hex == "" {
		hex = fallback
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	return hex
}

func stripHash(hex string) string {
	return strings.TrimPrefix(hex, "#")
}

// HasDarkColor reports whether a '#rrggbb' color is dark, using the
// ITU-R BT.709 luma of its channels. A bare "#" counts as dark.
func HasDarkColor(hex string) bool {
	if hex == "#" {
		return true
	}

	digits := hex
	if len(digits) > 0 {
		digits = digits[1:]
	}
	if len(digits) > 6 {
		digits = digits[:6]
	}

	rgb := parseHexPrefix(digits)
	r := float64((rgb >> 16) & 0xff)
	g := float64((rgb >> 8) & 0xff)
	b := float64(rgb & 0xff)

	// 0 is the darkest, 255 the brightest
	luma := 0.2126*r + 0.7152*g + 0.0722*b
	return luma <= 128
}

// parseHexPrefix reads the leading hex digits of s, stopping at the first
// non-hex character. No digits at all yields 0.
func parseHexPrefix(s string) uint32 {
	var n uint32
	for _, c := range s {
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		default:
			return n
		}
		n = n<<4 | d
	}
	return n
}
