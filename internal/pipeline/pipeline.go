package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ryosukesatoh/paper-digest/internal/digest"
	"github.com/ryosukesatoh/paper-digest/internal/fetcher"
	"github.com/ryosukesatoh/paper-digest/internal/logger"
	"github.com/ryosukesatoh/paper-digest/internal/retry"
	"github.com/ryosukesatoh/paper-digest/internal/summarizer"
)

// DefaultConcurrency is used when Options.Concurrency is not positive.
const DefaultConcurrency = 8

var (
	// ErrEmptyResult is returned, together with the Result, when no paper
	// was summarized, including when there were no papers at all.
	ErrEmptyResult = errors.New("pipeline: no papers were successfully processed")

	// ErrPanic wraps a panic recovered from a summarization task.
	ErrPanic = errors.New("pipeline: summarization panicked")
)

// Status is the terminal state of one paper.
type Status int

const (
	StatusSucceeded Status = iota + 1
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome records what happened to the paper at Index.
type Outcome struct {
	Index    int
	Paper    fetcher.Paper
	Status   Status
	Summary  *summarizer.Summary
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Result holds the surviving entries in input order.
type Result struct {
	Entries   []digest.Entry
	Outcomes  []Outcome
	Discarded int
}

type Options struct {
	// Concurrency caps the number of summarization calls in flight.
	Concurrency int
	// RequestsPerSecond gates call starts; 0 disables the gate.
	RequestsPerSecond float64
	// Timeout bounds each model call; 0 disables it.
	Timeout time.Duration
	// Retry controls retries of transient failures per paper.
	Retry  retry.Config
	Logger *slog.Logger
}

// Pipeline summarizes papers concurrently and isolates per-paper failures.
type Pipeline struct {
	summarizer summarizer.Summarizer
	opts       Options
	limiter    *rate.Limiter
	log        *slog.Logger
}

func New(s summarizer.Summarizer, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	p := &Pipeline{
		summarizer: s,
		opts:       opts,
		log:        logger.OrDefault(opts.Logger),
	}
	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(opts.RequestsPerSecond))
		p.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return p
}

// Run summarizes every paper and returns the successes in input order.
// A paper's failure never affects another paper. The only error other than
// ErrEmptyResult is the parent context's error.
func (p *Pipeline) Run(ctx context.Context, papers []fetcher.Paper) (*Result, error) {
	start := time.Now()
	outcomes := make([]Outcome, len(papers))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, paper := range papers {
		i, paper := i, paper
		g.Go(func() error {
			outcomes[i] = p.process(ctx, i, paper)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: run aborted: %w", err)
	}

	res := &Result{
		Entries:  make([]digest.Entry, 0, len(papers)),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Status != StatusSucceeded {
			res.Discarded++
			continue
		}
		res.Entries = append(res.Entries, digest.NewEntry(o.Paper, o.Summary))
	}

	p.log.Info("summarization finished",
		"papers", len(papers),
		"summarized", len(res.Entries),
		"discarded", res.Discarded,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if len(res.Entries) == 0 {
		return res, ErrEmptyResult
	}
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, i int, paper fetcher.Paper) (out Outcome) {
	start := time.Now()
	out = Outcome{Index: i, Paper: paper}

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Summary = nil
			out.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		out.Elapsed = time.Since(start)
		if out.Status == StatusFailed {
			p.log.Error("failed to summarize paper",
				"index", i,
				"title", paper.Title,
				"attempts", out.Attempts,
				"error", out.Err,
			)
			return
		}
		p.log.Debug("summarized paper", "index", i, "title", paper.Title, "attempts", out.Attempts)
	}()

	query := summarizer.QueryFor(paper)
	cfg := p.opts.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		p.log.Warn("retrying summarization", "index", i, "title", paper.Title, "attempt", attempt, "delay", delay, "error", err)
	}

	err := retry.WithBackoff(ctx, cfg, func(ctx context.Context) error {
		out.Attempts++
		s, err := p.call(ctx, query)
		if err != nil {
			return err
		}
		out.Summary = s
		return nil
	})
	if err != nil {
		out.Status = StatusFailed
		out.Summary = nil
		out.Err = err
		return out
	}
	out.Status = StatusSucceeded
	return out
}

// call makes one rate-gated, time-bounded model call. Errors that a retry
// cannot fix are marked permanent.
func (p *Pipeline) call(ctx context.Context, query string) (*summarizer.Summary, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
	}

	callCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	s, err := p.summarizer.Summarize(callCtx, query)
	if err != nil {
		if errors.Is(err, summarizer.ErrMalformedOutput) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	if s == nil || s.Brief == "" || s.PotentialApplications == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: incomplete summary", summarizer.ErrMalformedOutput))
	}
	return s, nil
}
