package toolexec

import (
	"fmt"
	"strings"
)

// catalogBanner opens the rendered catalog. The planner parses the rendered
// text, so the banner, heading shape, and parameter line layout are a
// contract and must stay stable.
const catalogBanner = "# Available Tools (parameter reference)"

// RenderCatalog renders the full tool catalog as a single human-readable
// block: a fixed banner, then one numbered section per tool in registration
// order, each listing the tool's parameters one per line.
func (e *Executor) RenderCatalog() string {
	var b strings.Builder
	b.WriteString(catalogBanner)

	if len(e.order) == 0 {
		b.WriteString("\n\n(no tools registered)")
		return b.String()
	}

	for i, name := range e.order {
		md := metadataFor(e.tools[name])

		b.WriteString("\n\n")
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, md.Name)
		b.WriteString(md.Description)

		if len(md.Parameters) == 0 {
			b.WriteString("\n\n(no parameters)")
			continue
		}

		b.WriteString("\n\nParameters:")
		for _, p := range md.Parameters {
			fmt.Fprintf(&b, "\n- %s (type: %s, default: %s): %s", p.Name, p.Type, p.Default, p.Description)
		}
	}

	return b.String()
}
