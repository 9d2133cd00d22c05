package toolexec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// identifierPattern matches a run of exactly six digits not adjacent to
// another digit. A-share stock and open-end fund codes both use this shape,
// so the same pattern serves both domains; collisions between them are
// permitted and left to the caller.
var identifierPattern = regexp.MustCompile(`\b\d{6}\b`)

// ExtractIdentifiers resolves the identifiers for one dispatch. Candidates
// come from the named parameter when present (scalar or list); only when the
// parameter path yields no candidates at all does the free-text step content
// serve as fallback. The two sources are never merged.
//
// The result is deduplicated and sorted ascending.
func ExtractIdentifiers(params map[string]interface{}, stepContent string, key string) []string {
	var candidates []string

	if params != nil {
		if value, ok := params[key]; ok {
			switch v := value.(type) {
			case []interface{}:
				for _, item := range v {
					candidates = append(candidates, fmt.Sprintf("%v", item))
				}
			case []string:
				candidates = append(candidates, v...)
			default:
				candidates = append(candidates, fmt.Sprintf("%v", v))
			}
		}
	}

	if len(candidates) == 0 && stepContent != "" {
		candidates = append(candidates, stepContent)
	}

	return matchIdentifiers(strings.Join(candidates, ","))
}

// ExtractFromText scans free text for identifiers, deduplicated and sorted
// ascending
func ExtractFromText(text string) []string {
	return matchIdentifiers(text)
}

func matchIdentifiers(text string) []string {
	matches := identifierPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	unique := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			unique = append(unique, m)
		}
	}

	sort.Strings(unique)
	return unique
}
