package coding

import (
	"encoding/json"
	"strings"
)

// extractJSONBlock pulls the first JSON value out of free-form model text.
// It tolerates markdown code fences and leading/trailing prose. The second
// return value is false when no parsable JSON is present, which triggers the
// calling stage's neutral-default path.
func extractJSONBlock(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	// Clean response: the whole text is the value.
	if raw, ok := validJSON(text); ok {
		return raw, true
	}

	// Fenced response: take the first fenced block.
	if inner, ok := fencedBlock(text); ok {
		if raw, ok := validJSON(inner); ok {
			return raw, true
		}
	}

	// Prose-wrapped response: scan for the first balanced object or array.
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		if end := matchBracket(text, i); end > i {
			if raw, ok := validJSON(text[i : end+1]); ok {
				return raw, true
			}
		}
	}
	return nil, false
}

func validJSON(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	// Only structured values count; a bare string or number is prose here.
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	return json.RawMessage(s), true
}

func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	// Skip a language tag like "json" up to the first newline.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// matchBracket returns the index of the bracket closing text[open], honoring
// strings and escapes, or -1 when unbalanced.
func matchBracket(text string, open int) int {
	openCh := text[open]
	closeCh := byte('}')
	if openCh == '[' {
		closeCh = ']'
	}

	depth := 0
	inString := false
	for i := open; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
