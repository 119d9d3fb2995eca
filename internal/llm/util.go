package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"unicode"
)

const fence = "```"

// ErrNotJSON is returned when a reply, once unwrapped, does not begin with '[' or '{'
var ErrNotJSON = errors.New("reply is not a JSON array or object")

// CleanJSONBlock strips a markdown code fence from a model reply.
//
// Accepted shapes, after trimming surrounding whitespace:
//
//	bare JSON            [{"a":1}]
//	untagged fence       ```\n[{"a":1}]\n```
//	tagged fence         ```json\n[{"a":1}]\n```
//
// The language tag is any run of letters, digits, '-' or '_' directly after the
// opening fence. A missing closing fence is tolerated.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, fence) {
		return text
	}

	text = strings.TrimPrefix(text, fence)
	text = strings.TrimLeftFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
	})
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, fence)
	return strings.TrimSpace(text)
}

// ParseJSONResponse unwraps a reply with CleanJSONBlock and validates it as JSON.
// It returns ErrNotJSON when the payload does not start like an array or object,
// and the decoder's error when it does but fails to parse.
func ParseJSONResponse(text string) (json.RawMessage, error) {
	cleaned := CleanJSONBlock(text)
	if !strings.HasPrefix(cleaned, "[") && !strings.HasPrefix(cleaned, "{") {
		return nil, ErrNotJSON
	}

	var probe any
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return nil, err
	}
	return json.RawMessage(cleaned), nil
}

// JSONElements splits a parsed reply into its top-level values.
// An array yields its elements in order; an object yields itself.
func JSONElements(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, err
		}
		return elems, nil
	}
	return []json.RawMessage{trimmed}, nil
}

// AllEmptyObjects reports whether every element is the empty object {}.
// An empty list reports false.
func AllEmptyObjects(elems []json.RawMessage) bool {
	if len(elems) == 0 {
		return false
	}
	for _, e := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(e, &obj); err != nil || obj == nil || len(obj) != 0 {
			return false
		}
	}
	return true
}
