package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DateLayout is the layout of the date key and of digest file names.
const DateLayout = "2006-01-02"

type Config struct {
	Category   string            `yaml:"category"`
	Categories []string          `yaml:"categories"`
	MaxResults int               `yaml:"max_results"`
	Date       string            `yaml:"date"`
	WindowDays int               `yaml:"window_days"`
	Schedule   string            `yaml:"schedule"`
	RunOnStart bool              `yaml:"run_on_start"`
	LogLevel   string            `yaml:"log_level"`
	Fetcher    FetcherConfig     `yaml:"fetcher"`
	Summarizer SummarizerConfig  `yaml:"summarizer"`
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Output     OutputConfig      `yaml:"output"`
	Publishers []PublisherConfig `yaml:"publishers"`
}

type FetcherConfig struct {
	Type    string        `yaml:"type"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SummarizerConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// PipelineConfig bounds the per-paper summarization fan-out.
// Pointer fields distinguish "unset" from an explicit zero.
type PipelineConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond *float64      `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        *int          `yaml:"max_retries"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
}

type OutputConfig struct {
	Dir   string `yaml:"dir"`
	Topic string `yaml:"topic"`
}

type PublisherConfig struct {
	Type    string        `yaml:"type"`
	Email   EmailConfig   `yaml:"email"`
	Web     WebConfig     `yaml:"web"`
	Discord DiscordConfig `yaml:"discord"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

// defaultYAML is used when no config file exists. The API key comes from
// the environment (or a .env file).
const defaultYAML = `
categories: ["cs.CL"]
summarizer:
  type: openai
  api_key: ${GROQ_API_KEY}
`

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// GetCategories returns the catalog categories, preferring the categories
// list over the single category key.
func (c *Config) GetCategories() []string {
	if len(c.Categories) > 0 {
		return c.Categories
	}
	if c.Category != "" {
		return []string{c.Category}
	}
	return []string{}
}

// GetCategoriesString returns the categories joined for display.
func (c *Config) GetCategoriesString() string {
	return strings.Join(c.GetCategories(), ", ")
}

// TargetDate returns the configured date, or now truncated to the day.
func (c *Config) TargetDate(now time.Time) (time.Time, error) {
	if c.Date == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}
	t, err := time.ParseInLocation(DateLayout, c.Date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid date %q (want YYYY-MM-DD): %w", c.Date, err)
	}
	return t, nil
}

// Topic returns the file-name topic, e.g. "arxiv_cs_cl" for cs.CL.
func (c *Config) Topic() string {
	if c.Output.Topic != "" {
		return c.Output.Topic
	}
	parts := []string{"arxiv"}
	for _, cat := range c.GetCategories() {
		parts = append(parts, strings.ToLower(strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(cat)))
	}
	return strings.Join(parts, "_")
}

// RateLimit returns the model call rate; 0 means unlimited.
func (p PipelineConfig) RateLimit() float64 {
	if p.RequestsPerSecond == nil {
		return 0
	}
	return *p.RequestsPerSecond
}

// Retries returns the number of retries after the first attempt.
func (p PipelineConfig) Retries() int {
	if p.MaxRetries == nil {
		return 0
	}
	return *p.MaxRetries
}

func setDefaults(cfg *Config) {
	if len(cfg.Categories) == 0 && cfg.Category == "" {
		cfg.Category = "cs.CL"
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 150
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 8 * * *"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Fetcher.Type == "" {
		cfg.Fetcher.Type = "arxiv"
	}
	if cfg.Fetcher.Timeout == 0 {
		cfg.Fetcher.Timeout = 30 * time.Second
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "openai"
	}
	switch cfg.Summarizer.Type {
	case "openai":
		if cfg.Summarizer.BaseURL == "" {
			cfg.Summarizer.BaseURL = "https://api.groq.com/openai/v1"
		}
		if cfg.Summarizer.Model == "" {
			cfg.Summarizer.Model = "llama-3.1-8b-instant"
		}
	case "anthropic":
		if cfg.Summarizer.Model == "" {
			cfg.Summarizer.Model = "claude-sonnet-4-20250514"
		}
	}
	if cfg.Summarizer.MaxTokens == 0 {
		cfg.Summarizer.MaxTokens = 1024
	}
	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = 8
	}
	if cfg.Pipeline.RequestsPerSecond == nil {
		rps := 5.0
		cfg.Pipeline.RequestsPerSecond = &rps
	}
	if cfg.Pipeline.Timeout == 0 {
		cfg.Pipeline.Timeout = 60 * time.Second
	}
	if cfg.Pipeline.MaxRetries == nil {
		retries := 2
		cfg.Pipeline.MaxRetries = &retries
	}
	if cfg.Pipeline.RetryBaseDelay == 0 {
		cfg.Pipeline.RetryBaseDelay = 1 * time.Second
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	for i := range cfg.Publishers {
		p := &cfg.Publishers[i]
		if p.Type == "web" && p.Web.Addr == "" {
			p.Web.Addr = ":8080"
		}
		if p.Type == "email" && p.Email.SMTPPort == 0 {
			p.Email.SMTPPort = 587
		}
	}
}

func validate(cfg *Config) error {
	categories := cfg.GetCategories()
	if len(categories) == 0 {
		return fmt.Errorf("config: at least one category is required")
	}
	for _, c := range categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("config: categories must not contain empty entries")
		}
	}
	if cfg.MaxResults < 1 || cfg.MaxResults > 2000 {
		return fmt.Errorf("config: max_results must be between 1 and 2000, got %d", cfg.MaxResults)
	}
	if _, err := cfg.TargetDate(time.Now()); err != nil {
		return err
	}
	if cfg.WindowDays < 0 {
		return fmt.Errorf("config: window_days must not be negative")
	}
	if cfg.Fetcher.Type != "arxiv" {
		return fmt.Errorf("config: unsupported fetcher type %q (supported: arxiv)", cfg.Fetcher.Type)
	}
	switch cfg.Summarizer.Type {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unsupported summarizer type %q (supported: openai, anthropic)", cfg.Summarizer.Type)
	}
	if cfg.Summarizer.APIKey == "" || envVarRegex.MatchString(cfg.Summarizer.APIKey) {
		return fmt.Errorf("config: summarizer.api_key is required (set GROQ_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}
	if cfg.Pipeline.Concurrency < 1 {
		return fmt.Errorf("config: pipeline.concurrency must be at least 1")
	}
	if cfg.Pipeline.RateLimit() < 0 {
		return fmt.Errorf("config: pipeline.requests_per_second must not be negative")
	}
	if cfg.Pipeline.Timeout < 0 {
		return fmt.Errorf("config: pipeline.timeout must not be negative")
	}
	if cfg.Pipeline.Retries() < 0 {
		return fmt.Errorf("config: pipeline.max_retries must not be negative")
	}
	for i, p := range cfg.Publishers {
		if err := validatePublisher(i, p); err != nil {
			return err
		}
	}
	return nil
}

func validatePublisher(i int, p PublisherConfig) error {
	switch p.Type {
	case "stdout", "email", "web", "discord":
	default:
		return fmt.Errorf("config: publishers[%d]: unsupported publisher type %q (supported: stdout, email, web, discord)", i, p.Type)
	}
	if p.Type == "discord" && p.Discord.WebhookURL == "" {
		return fmt.Errorf("config: publishers[%d].discord.webhook_url is required for discord publisher", i)
	}
	if p.Type == "email" {
		if p.Email.SMTPHost == "" {
			return fmt.Errorf("config: publishers[%d].email.smtp_host is required for email publisher", i)
		}
		if len(p.Email.To) == 0 {
			return fmt.Errorf("config: publishers[%d].email.to is required for email publisher", i)
		}
		if p.Email.From == "" {
			return fmt.Errorf("config: publishers[%d].email.from is required for email publisher", i)
		}
	}
	return nil
}

// Parse expands environment variables in data, decodes it, applies defaults,
// and validates the configuration.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load reads the config file at path and parses it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (in %s)", err, path)
	}
	return cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() (*Config, error) {
	return Parse([]byte(defaultYAML))
}

// LoadDotEnv loads variables from a .env file without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
