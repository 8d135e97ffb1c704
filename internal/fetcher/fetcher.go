package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ryosukesatoh/paper-digest/internal/config"
)

// Paper represents a research paper with its metadata
type Paper struct {
	Title     string
	Authors   []string
	Abstract  string
	URL       string
	Published time.Time
	Category  string
}

// AuthorList renders the author names comma-joined with a space.
func (p Paper) AuthorList() string {
	return strings.Join(p.Authors, ", ")
}

// Query selects papers from the catalog. A zero From/To disables the
// submission date window.
type Query struct {
	Categories []string
	MaxResults int
	From       time.Time
	To         time.Time
}

// Fetcher is an interface for fetching research papers from various sources.
// A fetch fails as a whole; no partial result is returned with an error.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]Paper, error)
}

// New creates a new fetcher based on the configuration
func New(cfg *config.Config) (Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "arxiv":
		return NewArxivFetcher(cfg.Fetcher.BaseURL, cfg.Fetcher.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFetcherType, cfg.Fetcher.Type)
	}
}

// QueryFor builds the catalog query for a run on date. When windowDays is
// positive the query only matches papers submitted in the windowDays days
// ending with date.
func QueryFor(cfg *config.Config, date time.Time) Query {
	q := Query{
		Categories: cfg.GetCategories(),
		MaxResults: cfg.MaxResults,
	}
	if cfg.WindowDays > 0 {
		end := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 0, 0, date.Location())
		q.From = end.AddDate(0, 0, -cfg.WindowDays).Add(time.Minute)
		q.To = end
	}
	return q
}

// ErrUnsupportedFetcherType is returned when an unsupported fetcher type is specified
var ErrUnsupportedFetcherType = errors.New("unsupported fetcher type")
