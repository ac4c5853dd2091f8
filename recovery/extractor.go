package recovery

import "github.com/bytedance/sonic"

// ExtractPartialState scans corrupted text for embedded JSON object
// literals and returns the most promising one. Candidates that look like
// a workspace state win; otherwise the first object that parses is
// returned. Returns nil when nothing usable is found.
//
// The scan is a single linear pass that tracks brace depth while
// respecting string-quote and escape context, so braces inside string
// values never miscount nesting. Malformed fragments are skipped, never
// propagated.
func ExtractPartialState(corrupted string) map[string]interface{} {
	if corrupted == "" {
		return nil
	}

	var first map[string]interface{}
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(corrupted); i++ {
		c := corrupted[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if inString {
				continue
			}
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if inString || depth == 0 {
				continue
			}
			depth--
			if depth > 0 || start < 0 {
				continue
			}

			var parsed map[string]interface{}
			if err := sonic.UnmarshalString(corrupted[start:i+1], &parsed); err == nil && parsed != nil {
				if IsWorkspaceStateLike(parsed) {
					return parsed
				}
				if first == nil {
					first = parsed
				}
			}
			// Unbalanced quotes inside a skipped fragment could leave the
			// scanner stuck in string mode; reset per candidate.
			start = -1
			inString = false
		}
	}

	return first
}
