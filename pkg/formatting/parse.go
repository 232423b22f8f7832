package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrParseFailed is returned when content holds no decodable JSON value,
// neither bare nor inside a markdown code fence.
var ErrParseFailed = errors.New("failed to parse response")

// maxSnippet bounds how much of unparseable content is echoed in errors.
const maxSnippet = 200

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Parse decodes content as JSON into T, falling back to the first
// fenced code block when the bare text does not decode.
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	err := json.Unmarshal([]byte(content), &result)
	if err == nil {
		return result, nil
	}

	if m := fencePattern.FindStringSubmatch(content); len(m) >= 2 {
		var fenced T
		if ferr := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &fenced); ferr == nil {
			return fenced, nil
		}
	}

	return result, fmt.Errorf("%w: %w (%q)", ErrParseFailed, err, snippet(content))
}

func snippet(s string) string {
	if len(s) <= maxSnippet {
		return s
	}
	return Truncate(s, maxSnippet) + "..."
}

// Truncate returns the longest prefix of s that fits in n bytes without
// splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
