package digest

import (
	"fmt"
	"strings"
)

const (
	tableHeader    = "| Title | Authors | Brief Summary | Potential Applications | Link |\n"
	tableSeparator = "|-------|---------|---------------|------------------------|------|\n"
)

var cellReplacer = strings.NewReplacer(
	"\r\n", " ",
	"\r", " ",
	"\n", " ",
	"|", "&#124;",
)

// escapeCell keeps field text from breaking the table: pipes become the
// &#124; entity and each line break becomes one space.
func escapeCell(s string) string {
	return cellReplacer.Replace(s)
}

// Render writes d as a markdown document: heading, one table row per entry
// in order, and a footer with the run counts. It has no side effects.
func Render(d *Digest) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", d.Heading())
	sb.WriteString(tableHeader)
	sb.WriteString(tableSeparator)

	for i, e := range d.Entries {
		if strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.Link) == "" {
			return "", fmt.Errorf("%w %d: title and link are required", ErrRender, i)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | [Link](%s) |\n",
			escapeCell(e.Title),
			escapeCell(e.Authors),
			escapeCell(e.Brief),
			escapeCell(e.PotentialApplications),
			escapeCell(e.Link),
		)
	}

	fmt.Fprintf(&sb, "\n_%d papers summarized, %d discarded._\n", len(d.Entries), d.Discarded)
	return sb.String(), nil
}
