package pdf

import (
	"fmt"
	"strings"
)

// PageText is the text pulled from one 1-based page.
type PageText struct {
	Number int
	Text   string
}

// AssembleText joins non-empty pages as "--- Page N ---" sections separated
// by a blank line. Pages with no text keep their number but add no section.
func AssembleText(pages []PageText) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", p.Number, p.Text))
	}
	return strings.Join(parts, "\n\n")
}
