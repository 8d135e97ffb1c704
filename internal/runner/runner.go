package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ryosukesatoh/paper-digest/internal/config"
	"github.com/ryosukesatoh/paper-digest/internal/digest"
	"github.com/ryosukesatoh/paper-digest/internal/fetcher"
	"github.com/ryosukesatoh/paper-digest/internal/logger"
	"github.com/ryosukesatoh/paper-digest/internal/pipeline"
	"github.com/ryosukesatoh/paper-digest/internal/publisher"
	"github.com/ryosukesatoh/paper-digest/internal/retry"
	"github.com/ryosukesatoh/paper-digest/internal/summarizer"
)

var (
	// ErrFetch wraps a failed catalog query. No output is written.
	ErrFetch = errors.New("runner: fetch failed")

	// ErrRender wraps a digest that could not be rendered.
	ErrRender = errors.New("runner: render failed")

	// ErrPublish wraps a failed write of the primary output file.
	ErrPublish = errors.New("runner: writing output failed")
)

// Report describes one finished run.
type Report struct {
	RunID      string
	Date       time.Time
	Fetched    int
	Summarized int
	Discarded  int
	OutputPath string
	// PublishErrors holds failures of the extra publishers; they do not
	// fail the run.
	PublishErrors []error
	Elapsed       time.Duration
}

// Runner orchestrates the fetch -> summarize -> render -> publish flow.
type Runner struct {
	cfg        *config.Config
	fetcher    fetcher.Fetcher
	summarizer summarizer.Summarizer
	output     *publisher.FilePublisher
	publishers []publisher.Publisher
	log        *slog.Logger
	now        func() time.Time
}

func New(cfg *config.Config, f fetcher.Fetcher, s summarizer.Summarizer, output *publisher.FilePublisher, pubs []publisher.Publisher, log *slog.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		fetcher:    f,
		summarizer: s,
		output:     output,
		publishers: pubs,
		log:        logger.OrDefault(log),
		now:        time.Now,
	}
}

func (r *Runner) pipelineOptions(log *slog.Logger) pipeline.Options {
	pc := r.cfg.Pipeline
	return pipeline.Options{
		Concurrency:       pc.Concurrency,
		RequestsPerSecond: pc.RateLimit(),
		Timeout:           pc.Timeout,
		Retry: retry.Config{
			MaxRetries: pc.Retries(),
			BaseDelay:  pc.RetryBaseDelay,
			MaxDelay:   30 * time.Second,
		},
		Logger: log,
	}
}

// Run executes the full flow once. When no paper survives summarization it
// returns the report together with pipeline.ErrEmptyResult and writes nothing.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	log := r.log.With("run_id", report.RunID)

	date, err := r.cfg.TargetDate(r.now())
	if err != nil {
		return report, err
	}
	report.Date = date

	q := fetcher.QueryFor(r.cfg, date)
	log.Info("starting run",
		"categories", r.cfg.GetCategoriesString(),
		"date", date.Format(digest.DateLayout),
		"max_results", q.MaxResults,
	)

	papers, err := r.fetcher.Fetch(ctx, q)
	if err != nil {
		log.Error("fetch failed", "error", err)
		return report, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	report.Fetched = len(papers)
	log.Info("fetched papers", "count", len(papers))

	res, err := pipeline.New(r.summarizer, r.pipelineOptions(log)).Run(ctx, papers)
	if res != nil {
		report.Summarized = len(res.Entries)
		report.Discarded = res.Discarded
	}
	if errors.Is(err, pipeline.ErrEmptyResult) {
		log.Warn("no papers were successfully processed", "fetched", report.Fetched, "discarded", report.Discarded)
		report.Elapsed = time.Since(start)
		return report, err
	}
	if err != nil {
		return report, err
	}

	d := &digest.Digest{
		RunID:      report.RunID,
		Categories: r.cfg.GetCategories(),
		Date:       date,
		Entries:    res.Entries,
		Discarded:  res.Discarded,
	}
	markdown, err := digest.Render(d)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrRender, err)
	}

	report.OutputPath = r.output.Path(d)
	if err := r.output.Publish(ctx, d, markdown); err != nil {
		log.Error("failed to write digest", "path", report.OutputPath, "error", err)
		return report, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	log.Info("newsletter generated", "path", report.OutputPath, "entries", len(d.Entries))

	for _, pub := range r.publishers {
		name := publisher.Name(pub)
		if err := pub.Publish(ctx, d, markdown); err != nil {
			report.PublishErrors = append(report.PublishErrors, fmt.Errorf("publish via %s: %w", name, err))
			log.Warn("publisher failed", "publisher", name, "error", err)
			continue
		}
		log.Info("published", "publisher", name)
	}

	report.Elapsed = time.Since(start)
	log.Info("run finished",
		"summarized", report.Summarized,
		"discarded", report.Discarded,
		"publisher_failures", len(report.PublishErrors),
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)
	return report, nil
}
