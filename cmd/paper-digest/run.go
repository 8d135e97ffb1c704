package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ryosukesatoh/paper-digest/internal/config"
	"github.com/ryosukesatoh/paper-digest/internal/fetcher"
	"github.com/ryosukesatoh/paper-digest/internal/logger"
	"github.com/ryosukesatoh/paper-digest/internal/publisher"
	"github.com/ryosukesatoh/paper-digest/internal/runner"
	"github.com/ryosukesatoh/paper-digest/internal/summarizer"
)

const shutdownTimeout = 5 * time.Second

// loadConfig reads the config file. A missing file at the default path
// falls back to the built-in defaults; an explicitly named one must exist.
func loadConfig(opts *options) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.configPath)
	if errors.Is(err, fs.ErrNotExist) && !opts.configChanged {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if opts.date != "" {
		cfg.Date = opts.date
		if _, err := cfg.TargetDate(time.Now()); err != nil {
			return nil, err
		}
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func run(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log := logger.Init(logger.ParseLevel(cfg.LogLevel))

	f, err := fetcher.New(cfg)
	if err != nil {
		return err
	}
	s, err := summarizer.New(cfg)
	if err != nil {
		return err
	}
	pubs, err := publisher.FromConfig(cfg.Publishers, log)
	if err != nil {
		return err
	}

	var servers []publisher.Server
	for _, p := range pubs {
		srv, ok := p.(publisher.Server)
		if !ok {
			continue
		}
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start %s publisher: %w", publisher.Name(p), err)
		}
		servers = append(servers, srv)
	}
	defer shutdown(log, servers)

	r := runner.New(cfg, f, s, publisher.NewFilePublisher(cfg.Output.Dir, cfg.Topic()), pubs, log)

	if opts.once {
		log.Info("running digest (once mode)")
		_, err := r.Run(ctx)
		return err
	}
	return schedule(ctx, cfg, r, log)
}

// schedule runs r on the configured cron expression until ctx is done.
func schedule(ctx context.Context, cfg *config.Config, r *runner.Runner, log *slog.Logger) error {
	runOnce := func(trigger string) {
		log.Info("running digest", "trigger", trigger)
		if _, err := r.Run(ctx); err != nil {
			log.Error("run failed", "trigger", trigger, "error", err)
		}
	}

	cl := cronLogger{log: log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(cfg.Schedule, func() { runOnce("cron") }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	if cfg.RunOnStart {
		runOnce("startup")
	}

	c.Start()
	log.Info("scheduled digest", "schedule", cfg.Schedule)

	<-ctx.Done()
	log.Info("shutting down")
	<-c.Stop().Done()
	return nil
}

func shutdown(log *slog.Logger, servers []publisher.Server) {
	if len(servers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("server shutdown error", "publisher", publisher.Name(srv), "error", err)
		}
	}
	log.Info("shutdown complete")
}
