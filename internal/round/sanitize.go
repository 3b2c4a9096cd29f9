package round

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const maxFunctionNameLen = 64

// sanitizeFunctionName rewrites name into the charset function-calling
// schemas require ([a-z0-9_-], <=64 chars), per §4.7 step 4. nameTaken
// reports whether a sanitized name is already in use by another tool in
// the same round; on collision a 6-character hash suffix of the original
// name is appended so two distinct tools never compile to the same
// function name.
func sanitizeFunctionName(name string, nameTaken func(string) bool) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	sanitized := b.String()
	if sanitized == "" {
		sanitized = "tool"
	}
	if len(sanitized) > maxFunctionNameLen {
		sanitized = sanitized[:maxFunctionNameLen]
	}
	if nameTaken == nil || !nameTaken(sanitized) {
		return sanitized
	}

	suffix := "_" + shortHash(name)
	truncated := sanitized
	if len(truncated)+len(suffix) > maxFunctionNameLen {
		truncated = truncated[:maxFunctionNameLen-len(suffix)]
	}
	return truncated + suffix
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:6]
}
