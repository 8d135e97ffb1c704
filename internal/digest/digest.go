package digest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ryosukesatoh/paper-digest/internal/fetcher"
	"github.com/ryosukesatoh/paper-digest/internal/summarizer"
)

// DateLayout is used in headings and file names.
const DateLayout = "2006-01-02"

// ErrRender is returned when an entry cannot be placed in the table.
var ErrRender = errors.New("digest: cannot render entry")

// Entry is one row of the digest, built only from a successful summary.
type Entry struct {
	Title                 string
	Authors               string
	Brief                 string
	PotentialApplications string
	Link                  string
}

// NewEntry combines a paper with its summary.
func NewEntry(p fetcher.Paper, s *summarizer.Summary) Entry {
	return Entry{
		Title:                 p.Title,
		Authors:               p.AuthorList(),
		Brief:                 s.Brief,
		PotentialApplications: s.PotentialApplications,
		Link:                  p.URL,
	}
}

// Digest is the rendered unit of one run.
type Digest struct {
	RunID      string
	Categories []string
	Date       time.Time
	Entries    []Entry
	Discarded  int
}

// Heading returns the document title, e.g. "arXiv CS.CL Newsletter for 2024-07-08".
func (d *Digest) Heading() string {
	cats := strings.ToUpper(strings.Join(d.Categories, ", "))
	if cats == "" {
		cats = "CS.CL"
	}
	return fmt.Sprintf("arXiv %s Newsletter for %s", cats, d.Date.Format(DateLayout))
}

// FileName returns the output file name for a digest dated date, e.g.
// "2024-07-08_arxiv_cs_cl_newsletter.md".
func FileName(date time.Time, topic string) string {
	if topic == "" {
		topic = "arxiv_cs_cl"
	}
	return fmt.Sprintf("%s_%s_newsletter.md", date.Format(DateLayout), topic)
}
