package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ryosukesatoh/paper-digest/internal/digest"
	"github.com/ryosukesatoh/paper-digest/internal/retry"
)

const (
	discordColor          = 0x5865F2
	discordMaxEmbeds      = 10
	discordMaxChars       = 6000
	discordMaxTitle       = 256
	discordMaxDescription = 4096
	discordMaxFieldValue  = 1024
	discordMaxFooter      = 2048
)

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	URL         string              `json:"url,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordPublisher publishes digests to a Discord channel via webhook.
type DiscordPublisher struct {
	webhookURL  string
	client      *http.Client
	retryConfig retry.Config
	batchDelay  time.Duration
}

// NewDiscordPublisher creates a new DiscordPublisher.
func NewDiscordPublisher(webhookURL string) *DiscordPublisher {
	return &DiscordPublisher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.Config{
			MaxRetries: 3,
			BaseDelay:  1 * time.Second,
			MaxDelay:   10 * time.Second,
		},
		batchDelay: 500 * time.Millisecond,
	}
}

// Publish sends the digest to Discord as a series of rich embeds.
func (d *DiscordPublisher) Publish(ctx context.Context, dg *digest.Digest, _ string) error {
	batches := batchEmbeds(buildEmbeds(dg))

	for i, batch := range batches {
		err := retry.WithBackoff(ctx, d.retryConfig, func(ctx context.Context) error {
			return d.sendWebhook(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("discord: failed to send batch %d: %w", i+1, err)
		}

		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.batchDelay):
			}
		}
	}
	return nil
}

// buildEmbeds creates a heading embed and one embed per entry.
func buildEmbeds(dg *digest.Digest) []discordEmbed {
	embeds := make([]discordEmbed, 0, len(dg.Entries)+1)

	embeds = append(embeds, discordEmbed{
		Title:       truncate(dg.Heading(), discordMaxTitle),
		Description: fmt.Sprintf("%d papers summarized, %d discarded.", len(dg.Entries), dg.Discarded),
		Color:       discordColor,
		Footer:      &discordEmbedFooter{Text: dg.Date.Format(digest.DateLayout)},
		Timestamp:   dg.Date.Format(time.RFC3339),
	})

	for i, e := range dg.Entries {
		embed := discordEmbed{
			Title:       truncate(fmt.Sprintf("%d. %s", i+1, e.Title), discordMaxTitle),
			URL:         e.Link,
			Description: truncate(e.Brief, discordMaxDescription),
			Color:       discordColor,
		}
		if e.PotentialApplications != "" {
			embed.Fields = []discordEmbedField{{
				Name:  "Potential Applications",
				Value: truncate(e.PotentialApplications, discordMaxFieldValue),
			}}
		}
		if e.Authors != "" {
			embed.Footer = &discordEmbedFooter{Text: truncate(e.Authors, discordMaxFooter)}
		}
		embeds = append(embeds, embed)
	}

	return embeds
}

// batchEmbeds splits embeds into messages within Discord's per-message
// limits on embed count and total characters.
func batchEmbeds(embeds []discordEmbed) [][]discordEmbed {
	var batches [][]discordEmbed
	var current []discordEmbed
	currentChars := 0

	for _, e := range embeds {
		ec := embedCharCount(e)

		if len(current) > 0 && (len(current) >= discordMaxEmbeds || currentChars+ec > discordMaxChars) {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}

		current = append(current, e)
		currentChars += ec
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// sendWebhook posts a batch of embeds to the Discord webhook.
func (d *DiscordPublisher) sendWebhook(ctx context.Context, embeds []discordEmbed) error {
	body, err := json.Marshal(discordWebhookPayload{Embeds: embeds})
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if !retry.HTTPStatusRetryable(resp.StatusCode) {
		return retry.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// truncate shortens s to at most max runes, preferring a sentence boundary.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}

	cut := string(r[:max-1])
	if idx := lastSentenceEnd(cut); idx > len(cut)/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}

// embedCharCount returns the character count Discord applies to an embed.
func embedCharCount(e discordEmbed) int {
	n := len([]rune(e.Title)) + len([]rune(e.Description))
	for _, f := range e.Fields {
		n += len([]rune(f.Name)) + len([]rune(f.Value))
	}
	if e.Footer != nil {
		n += len([]rune(e.Footer.Text))
	}
	return n
}
