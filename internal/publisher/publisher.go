package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ryosukesatoh/paper-digest/internal/config"
	"github.com/ryosukesatoh/paper-digest/internal/digest"
)

// Publisher publishes a rendered digest to some output destination.
type Publisher interface {
	Publish(ctx context.Context, d *digest.Digest, markdown string) error
}

// Server is a publisher that also serves requests between Start and Shutdown.
type Server interface {
	Publisher
	Start() error
	Shutdown(ctx context.Context) error
}

// FromConfig builds the extra publishers listed in the configuration.
func FromConfig(cfgs []config.PublisherConfig, log *slog.Logger) ([]Publisher, error) {
	pubs := make([]Publisher, 0, len(cfgs))
	for i, c := range cfgs {
		switch c.Type {
		case "stdout":
			pubs = append(pubs, NewStdoutPublisher())
		case "email":
			pubs = append(pubs, NewEmailPublisher(
				c.Email.SMTPHost,
				c.Email.SMTPPort,
				c.Email.Username,
				c.Email.Password,
				c.Email.From,
				c.Email.To,
			))
		case "web":
			pubs = append(pubs, NewWebPublisher(c.Web.Addr, log))
		case "discord":
			pubs = append(pubs, NewDiscordPublisher(c.Discord.WebhookURL))
		default:
			return nil, fmt.Errorf("publisher: publishers[%d]: unsupported type %q", i, c.Type)
		}
	}
	return pubs, nil
}

// Name returns a short label for p used in logs.
func Name(p Publisher) string {
	switch p.(type) {
	case *FilePublisher:
		return "file"
	case *StdoutPublisher:
		return "stdout"
	case *EmailPublisher:
		return "email"
	case *WebPublisher:
		return "web"
	case *DiscordPublisher:
		return "discord"
	default:
		return fmt.Sprintf("%T", p)
	}
}
