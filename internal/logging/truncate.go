package logging

import "strconv"

// MaxBodyLen bounds upstream bodies copied into log lines.
const MaxBodyLen = 1024

// Truncate shortens s to limit bytes and notes the original size.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... [truncated, " + strconv.Itoa(len(s)) + " bytes total]"
}

// Body is Truncate for raw upstream responses.
func Body(b []byte) string {
	return Truncate(string(b), MaxBodyLen)
}
