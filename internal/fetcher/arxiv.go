package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	defaultArxivURL = "https://export.arxiv.org/api/query"
	// arxivDateLayout is the submittedDate range format (YYYYMMDDHHMM).
	arxivDateLayout = "200601021504"
	userAgent       = "paper-digest/1.0 (+https://github.com/ryosukesatoh/paper-digest)"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// ArxivFetcher fetches papers from the arXiv API.
type ArxivFetcher struct {
	client  *http.Client
	baseURL string
}

// NewArxivFetcher returns a fetcher for baseURL, or the public arXiv API
// when baseURL is empty.
func NewArxivFetcher(baseURL string, timeout time.Duration) *ArxivFetcher {
	if baseURL == "" {
		baseURL = defaultArxivURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ArxivFetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// SearchQuery renders q in the arXiv search_query syntax, e.g.
// "cat:cs.CL OR cat:cs.AI" or "(cat:cs.CL) AND submittedDate:[... TO ...]".
func SearchQuery(q Query) string {
	terms := make([]string, 0, len(q.Categories))
	for _, c := range q.Categories {
		terms = append(terms, "cat:"+strings.TrimSpace(c))
	}
	search := strings.Join(terms, " OR ")
	if q.From.IsZero() || q.To.IsZero() {
		return search
	}
	return fmt.Sprintf("(%s) AND submittedDate:[%s TO %s]",
		search, q.From.Format(arxivDateLayout), q.To.Format(arxivDateLayout))
}

func (f *ArxivFetcher) Fetch(ctx context.Context, q Query) ([]Paper, error) {
	if len(q.Categories) == 0 {
		return []Paper{}, nil
	}

	params := url.Values{}
	params.Set("search_query", SearchQuery(q))
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(q.MaxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	reqURL := fmt.Sprintf("%s?%s", f.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv: unexpected status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to parse feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Items))
	for _, item := range feed.Items {
		if isAPIError(item) {
			return nil, fmt.Errorf("arxiv: query rejected: %s", clean(item.Description))
		}
		p := itemToPaper(item)
		if p.Title == "" || p.URL == "" {
			continue
		}
		papers = append(papers, p)
	}

	return papers, nil
}

// isAPIError reports whether item is the single error entry arXiv returns
// for a malformed query.
func isAPIError(item *gofeed.Item) bool {
	return strings.EqualFold(strings.TrimSpace(item.Title), "error") &&
		strings.Contains(item.GUID, "/api/errors")
}

func itemToPaper(item *gofeed.Item) Paper {
	authors := make([]string, 0, len(item.Authors))
	for _, a := range item.Authors {
		if a == nil {
			continue
		}
		if name := clean(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	}

	var category string
	if len(item.Categories) > 0 {
		category = item.Categories[0]
	}

	return Paper{
		Title:     clean(item.Title),
		Authors:   authors,
		Abstract:  clean(item.Description),
		URL:       paperLink(item),
		Published: published,
		Category:  category,
	}
}

// paperLink prefers the PDF link. arXiv abstract pages map to their PDF by
// path, so /abs/ links are rewritten; any other link is kept as is.
func paperLink(item *gofeed.Item) string {
	for _, l := range item.Links {
		if strings.Contains(l, "/pdf/") {
			return l
		}
	}
	link := item.Link
	if link == "" && len(item.Links) > 0 {
		link = item.Links[0]
	}
	return strings.Replace(link, "/abs/", "/pdf/", 1)
}

// clean collapses runs of whitespace; arXiv titles and abstracts are
// hard-wrapped.
func clean(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
