package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ryosukesatoh/paper-digest/internal/digest"
)

// StdoutPublisher prints the digest document to stdout.
type StdoutPublisher struct {
	w io.Writer
}

func NewStdoutPublisher() *StdoutPublisher {
	return &StdoutPublisher{w: os.Stdout}
}

func (p *StdoutPublisher) Publish(_ context.Context, d *digest.Digest, markdown string) error {
	rule := strings.Repeat("=", 72)
	if _, err := fmt.Fprintf(p.w, "%s\n%s", rule, markdown); err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	if !strings.HasSuffix(markdown, "\n") {
		fmt.Fprintln(p.w)
	}
	_, err := fmt.Fprintln(p.w, rule)
	return err
}
