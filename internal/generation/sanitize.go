package generation

import (
	"strings"
)

// StripFences removes markdown code fences and any chatter before the
// document root or after its closing tag.
func StripFences(text string) string {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		// drop the opening fence line, including a language tag like ```html
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")

	start := indexFold(s, "<!doctype")
	if start < 0 {
		start = indexFold(s, "<html")
	}
	if start > 0 {
		s = s[start:]
	}

	if end := lastIndexFold(s, "</html>"); end >= 0 {
		s = s[:end+len("</html>")]
	}

	return strings.TrimSpace(s)
}

// indexFold is strings.Index with ASCII case folding. Only ASCII is folded so
// offsets stay valid in s whatever the document's other runes are.
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFoldASCII(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func lastIndexFold(s, substr string) int {
	for i := len(s) - len(substr); i >= 0; i-- {
		if equalFoldASCII(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func equalFoldASCII(a, b string) bool {
	for i := 0; i < len(a); i++ {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
