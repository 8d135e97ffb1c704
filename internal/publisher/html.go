package publisher

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ryosukesatoh/paper-digest/internal/digest"
)

const htmlHead = `<!DOCTYPE html><html><head><meta charset="utf-8"><style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1100px; margin: 0 auto; padding: 20px; color: #333; }
h1 { color: #1a1a2e; border-bottom: 2px solid #e94560; padding-bottom: 10px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 8px; vertical-align: top; text-align: left; }
th { background: #f0f0f0; }
.meta { color: #666; font-size: 0.9em; }
</style></head><body>`

// sanitizer strips markup the model may have produced and unsafe link schemes.
var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	p.RequireNoFollowOnLinks(false)
	p.AllowURLSchemes("http", "https")
	return p
}()

// buildHTMLBody renders d as a standalone HTML page for email and the web.
func buildHTMLBody(d *digest.Digest) string {
	var sb strings.Builder
	sb.WriteString(htmlHead)
	sb.WriteString(sanitizer.Sanitize(htmlFragment(d)))
	sb.WriteString("</body></html>")
	return sb.String()
}

func htmlFragment(d *digest.Digest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<h1>%s</h1>", html.EscapeString(d.Heading()))
	sb.WriteString("<table><thead><tr><th>Title</th><th>Authors</th><th>Brief Summary</th><th>Potential Applications</th><th>Link</th></tr></thead><tbody>")
	for _, e := range d.Entries {
		fmt.Fprintf(&sb, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td><a href="%s">Link</a></td></tr>`,
			html.EscapeString(e.Title), html.EscapeString(e.Authors), e.Brief, e.PotentialApplications, html.EscapeString(e.Link))
	}
	sb.WriteString("</tbody></table>")
	fmt.Fprintf(&sb, `<p class="meta">%d papers summarized, %d discarded.</p>`, len(d.Entries), d.Discarded)
	return sb.String()
}
