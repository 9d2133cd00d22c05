// Package analysis runs the LLM-backed research passes over market data
// and assembles their output into report text.
package analysis

import (
	"fmt"
	"strings"
)

// Sections holds the per-analyst report bodies. An empty string means the
// section was not produced.
type Sections struct {
	Market       string
	Fundamentals string
	Sentiment    string
	News         string
}

// Decision is the synthesized trading conclusion.
type Decision struct {
	Reasoning string
}

// Result is the outcome of one stock analysis run.
type Result struct {
	Sections Sections
	Decision *Decision
}

// Compose renders the result as markdown. Section headings appear in a
// fixed order and only for sections that have content; when nothing was
// produced at all the placeholder text is returned instead.
func (r *Result) Compose() string {
	ordered := []struct {
		title string
		body  string
	}{
		{"Market Report", r.Sections.Market},
		{"Fundamentals Report", r.Sections.Fundamentals},
		{"Sentiment Report", r.Sections.Sentiment},
		{"News Report", r.Sections.News},
	}

	parts := make([]string, 0, len(ordered)+1)
	for _, s := range ordered {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("#### %s\n%s", s.title, s.body))
	}
	if r.Decision != nil && strings.TrimSpace(r.Decision.Reasoning) != "" {
		parts = append(parts, fmt.Sprintf("#### Decision Summary\n%s", r.Decision.Reasoning))
	}

	if len(parts) == 0 {
		return "no analysis output"
	}
	return strings.Join(parts, "\n\n")
}
