package publisher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ryosukesatoh/paper-digest/internal/digest"
)

// FilePublisher writes the digest document into a directory. It is the
// primary output of a run.
type FilePublisher struct {
	dir   string
	topic string
}

func NewFilePublisher(dir, topic string) *FilePublisher {
	if dir == "" {
		dir = "."
	}
	return &FilePublisher{dir: dir, topic: topic}
}

// Path returns where the document for d is written.
func (p *FilePublisher) Path(d *digest.Digest) string {
	return filepath.Join(p.dir, digest.FileName(d.Date, p.topic))
}

// Publish writes markdown as UTF-8. The file is written under a temporary
// name and renamed, so a reader never sees a partial document.
func (p *FilePublisher) Publish(_ context.Context, d *digest.Digest, markdown string) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("file: failed to create %s: %w", p.dir, err)
	}

	path := p.Path(d)
	tmp, err := os.CreateTemp(p.dir, ".digest-*.md")
	if err != nil {
		return fmt.Errorf("file: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(markdown); err != nil {
		tmp.Close()
		return fmt.Errorf("file: failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("file: failed to set mode on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("file: failed to move into %s: %w", path, err)
	}
	return nil
}
