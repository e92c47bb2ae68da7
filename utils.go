package breadbox

import (
	"strings"
	"unicode/utf8"
)

// IsValidName validates an archive or branch name: ASCII letters, digits,
// underscore, and hyphen only, non-empty.
func IsValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// IsValidFilename validates a single path component used as a stored file
// name. It rejects:
//   - empty names, "." and ".."
//   - path separators (no nested paths through a filename)
//   - null bytes, control characters, and DEL
//   - invalid UTF-8
func IsValidFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}

	if strings.ContainsAny(name, `/\`) {
		return false
	}

	if !utf8.ValidString(name) {
		return false
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	return true
}
