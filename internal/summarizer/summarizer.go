package summarizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryosukesatoh/paper-digest/internal/config"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mock/mock_summarizer.go -package=mock . Summarizer

// Summary is the structured model output for one paper.
type Summary struct {
	Brief                 string `json:"brief" jsonschema:"required,description=A brief explanation of the concept introduced in one sentence."`
	PotentialApplications string `json:"potential_applications" jsonschema:"required,description=Potential applications of the concept or study introduced in the paper."`
}

// Summarizer turns the identity text of one paper into a Summary.
// One call issues one remote model invocation.
type Summarizer interface {
	Summarize(ctx context.Context, query string) (*Summary, error)
}

var (
	// ErrMalformedOutput is returned when the model reply does not decode
	// into a Summary with both fields set. It is never worth retrying.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrEmptyResponse is returned when the provider answers without any text.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
	ErrUnsupportedSummarizerType = errors.New("unsupported summarizer type")
)

// New creates a new summarizer based on the configuration
func New(cfg *config.Config) (Summarizer, error) {
	sc := cfg.Summarizer
	switch sc.Type {
	case "openai":
		return NewOpenAISummarizer(sc.APIKey, sc.BaseURL, sc.Model), nil
	case "anthropic":
		return NewAnthropicSummarizer(sc.APIKey, sc.BaseURL, sc.Model, sc.MaxTokens), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSummarizerType, sc.Type)
	}
}
