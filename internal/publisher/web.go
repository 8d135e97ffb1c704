package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ryosukesatoh/paper-digest/internal/digest"
	"github.com/ryosukesatoh/paper-digest/internal/logger"
)

const emptyPage = `<!DOCTYPE html><html><body><h1>Paper Digest</h1><p>No digest available yet. Check back later.</p></body></html>`

// WebPublisher serves the latest digest over HTTP: "/" as an HTML page and
// "/digest.md" as the markdown document.
type WebPublisher struct {
	addr string
	e    *echo.Echo
	log  *slog.Logger

	mu       sync.RWMutex
	latest   *digest.Digest
	markdown string
	html     string
}

func NewWebPublisher(addr string, log *slog.Logger) *WebPublisher {
	wp := &WebPublisher{addr: addr, log: logger.OrDefault(log)}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(wp.log))

	e.GET("/", wp.handleIndex)
	e.GET("/digest.md", wp.handleMarkdown)
	e.GET("/healthz", wp.handleHealth)

	wp.e = e
	return wp
}

// Start begins serving HTTP in the background. Call Shutdown to stop.
func (wp *WebPublisher) Start() error {
	ln, err := net.Listen("tcp", wp.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", wp.addr, err)
	}
	go func() {
		wp.log.Info("web publisher listening", "addr", ln.Addr().String())
		if err := wp.e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wp.log.Error("web publisher stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (wp *WebPublisher) Shutdown(ctx context.Context) error {
	return wp.e.Shutdown(ctx)
}

func (wp *WebPublisher) Publish(_ context.Context, d *digest.Digest, markdown string) error {
	page := buildHTMLBody(d)

	wp.mu.Lock()
	wp.latest = d
	wp.markdown = markdown
	wp.html = page
	wp.mu.Unlock()

	wp.log.Info("web publisher updated", "heading", d.Heading(), "entries", len(d.Entries))
	return nil
}

func (wp *WebPublisher) handleIndex(c echo.Context) error {
	wp.mu.RLock()
	page := wp.html
	wp.mu.RUnlock()

	if page == "" {
		return c.HTML(http.StatusOK, emptyPage)
	}
	return c.HTML(http.StatusOK, page)
}

func (wp *WebPublisher) handleMarkdown(c echo.Context) error {
	wp.mu.RLock()
	md := wp.markdown
	wp.mu.RUnlock()

	if md == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no digest available yet")
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (wp *WebPublisher) handleHealth(c echo.Context) error {
	wp.mu.RLock()
	d := wp.latest
	wp.mu.RUnlock()

	resp := map[string]any{"status": "ok"}
	if d != nil {
		resp["run_id"] = d.RunID
		resp["date"] = d.Date.Format(digest.DateLayout)
		resp["entries"] = len(d.Entries)
	}
	return c.JSON(http.StatusOK, resp)
}

// requestLogger logs each request through slog.
func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			level := slog.LevelDebug
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}
			log.Log(req.Context(), level, "http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", c.RealIP(),
			)
			return nil
		}
	}
}
