package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparsable is returned when no JSON value of the requested shape can be
// recovered from model output.
var ErrUnparsable = errors.New("llm output contains no parsable JSON")

// DecodeArray decodes the JSON array in text into v. The whole text is tried
// first (after stripping Markdown code fences), then every balanced [...]
// span in order of appearance.
func DecodeArray(text string, v any) error {
	return decode(text, '[', ']', v)
}

// DecodeObject is DecodeArray for a JSON object.
func DecodeObject(text string, v any) error {
	return decode(text, '{', '}', v)
}

func decode(text string, open, closing byte, v any) error {
	body := stripFences(text)
	if len(body) > 0 && body[0] == open {
		if err := json.Unmarshal([]byte(body), v); err == nil {
			return nil
		}
	}

	for start := strings.IndexByte(text, open); start >= 0; {
		if end := matchBracket(text, start, open, closing); end > start {
			if err := json.Unmarshal([]byte(text[start:end+1]), v); err == nil {
				return nil
			}
		}
		next := strings.IndexByte(text[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ErrUnparsable
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// matchBracket returns the index of the bracket closing text[start], or -1.
// Brackets inside JSON strings are ignored.
func matchBracket(text string, start int, open, closing byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
