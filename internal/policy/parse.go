package policy

import (
	"fmt"
	"strings"
)

// matchName splits off a leading "name" token, which may contain ASCII
// letters, digits and dashes. The remainder is returned untrimmed.
// ok is false when the name part would be empty.
func matchName(line string) (name, rest string, ok bool) {
	end := len(line)
	for i := 0; i < len(line); i++ {
		b := line[i]
		if !(b == '-' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')) {
			end = i
			break
		}
	}

	if end == 0 {
		return "", "", false
	}
	return line[:end], line[end:], true
}

// matchNonWhitespace splits off everything up to the next whitespace
// character. The remainder is returned with leading whitespace trimmed.
func matchNonWhitespace(line string) (text, rest string, ok bool) {
	end := len(line)
	for i := 0; i < len(line); i++ {
		if isSpace(line[i]) {
			end = i
			break
		}
	}

	if end == 0 {
		return "", "", false
	}

	rest = line[end:]
	for len(rest) > 0 && isSpace(rest[0]) {
		rest = rest[1:]
	}
	return line[:end], rest, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// ParseBool accepts the boolean spellings used throughout the policy files.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "0", "false", "off", "no":
		return false, nil
	case "1", "true", "on", "yes":
		return true, nil
	}
	return false, fmt.Errorf("not a boolean: %q", value)
}
