package glyph

// BitmapID names a 32x32 bitmap owned by the renderer.
type BitmapID string

// Wildcard has no bitmap of its own; it is drawn as one of WildcardAlternates.
const Wildcard byte = '*'

var WildcardAlternates = [2]byte{'#', '&'}

// letters lists every selectable letter in UI order.
var letters = []byte{
	'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M',
	'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z',
	'*', '#', '~', '&', '?',
}

var specials = map[byte]BitmapID{
	'#': "sun",
	'~': "wifi",
	'&': "ferris_wheel",
	'?': "riddler",
}

var labels = map[byte]string{
	'*': "Sun+Rad",
	'#': "Sun",
	'~': "WiFi",
	'&': "Rad",
	'?': "Riddler",
}

// Letters returns a copy of the allowed-letter set.
func Letters() []byte {
	out := make([]byte, len(letters))
	copy(out, letters)
	return out
}

// Allowed reports whether b may be stored as a daily letter.
func Allowed(b byte) bool {
	for _, l := range letters {
		if l == b {
			return true
		}
	}
	return false
}

// Lookup returns the bitmap for b. The wildcard and anything outside the
// catalogue have none.
func Lookup(b byte) (BitmapID, bool) {
	if b >= 'A' && b <= 'Z' {
		return BitmapID("letter_" + string(b)), true
	}
	id, ok := specials[b]
	return id, ok
}

// Label is the human-facing name of b.
func Label(b byte) string {
	if l, ok := labels[b]; ok {
		return l
	}
	return string(b)
}
