package sync

import "strings"

// escapedNull is the six character JSON escape for U+0000 as it appears
// literally in a response body.
const escapedNull = `\u0000`

// Clean removes escaped and literal null characters from a raw response body.
// Nothing else is altered and Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	result, _ := CleanCount(raw)
	return result
}

// CleanCount is Clean that also reports how many characters were removed.
func CleanCount(raw string) (string, int) {
	if !strings.Contains(raw, escapedNull) && strings.IndexByte(raw, 0) == -1 {
		return raw, 0
	}
	// removing a NUL byte can join "\u00" + "00" into a fresh escape,
	// so repeat until neither pattern survives
	result := raw
	for {
		next := strings.ReplaceAll(result, escapedNull, "")
		next = strings.ReplaceAll(next, "\x00", "")
		if next == result {
			break
		}
		result = next
	}
	return result, len(raw) - len(result)
}
