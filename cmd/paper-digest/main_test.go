package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/paper-digest/internal/pipeline"
	"github.com/ryosukesatoh/paper-digest/internal/runner"
)

const integrationFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/2407.00001v1</id>
    <title>Paper X</title>
    <summary>We study X.</summary>
    <author><name>A. One</name></author>
    <author><name>B. Two</name></author>
    <link href="http://arxiv.org/abs/2407.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2407.00001v1" rel="related" type="application/pdf"/>
    <published>2024-07-08T00:00:00Z</published>
    <category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2407.00002v1</id>
    <title>Paper Y</title>
    <summary>We study Y.</summary>
    <author><name>C. Three</name></author>
    <link href="http://arxiv.org/abs/2407.00002v1" rel="alternate" type="text/html"/>
    <published>2024-07-08T00:00:00Z</published>
    <category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

func chatReply(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1720396800,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return body
}

// newFakeServices starts an arXiv feed server and a chat completion server
// that summarizes Paper X and replies with prose for anything else.
func newFakeServices(t *testing.T, feed string) (arxivURL, modelURL string) {
	t.Helper()

	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, feed)
	}))
	t.Cleanup(arxiv.Close)

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		reply := "I cannot summarize this paper."
		if n := len(req.Messages); n > 0 && strings.Contains(req.Messages[n-1].Content, "Paper: Paper X,") {
			reply = `{"brief": "X is studied.", "potential_applications": "Search."}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatReply(reply))
	}))
	t.Cleanup(model.Close)

	return arxiv.URL, model.URL + "/"
}

func writeTestConfig(t *testing.T, arxivURL, modelURL, outDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`
categories: ["cs.CL"]
max_results: 10
fetcher:
  base_url: %s
summarizer:
  type: openai
  api_key: ${PAPER_DIGEST_TEST_KEY}
  base_url: %s
  model: test-model
pipeline:
  requests_per_second: 0
  max_retries: 0
output:
  dir: %s
`, arxivURL, modelURL, outDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunOnceEndToEnd(t *testing.T) {
	t.Setenv("PAPER_DIGEST_TEST_KEY", "test-key")
	arxivURL, modelURL := newFakeServices(t, integrationFeed)
	outDir := t.TempDir()

	opts := &options{
		configPath:    writeTestConfig(t, arxivURL, modelURL, outDir),
		envFile:       filepath.Join(t.TempDir(), "missing.env"),
		date:          "2024-07-08",
		logLevel:      "error",
		once:          true,
		configChanged: true,
	}
	require.NoError(t, run(context.Background(), opts))

	data, err := os.ReadFile(filepath.Join(outDir, "2024-07-08_arxiv_cs_cl_newsletter.md"))
	require.NoError(t, err)

	want := "# arXiv CS.CL Newsletter for 2024-07-08\n\n" +
		"| Title | Authors | Brief Summary | Potential Applications | Link |\n" +
		"|-------|---------|---------------|------------------------|------|\n" +
		"| Paper X | A. One, B. Two | X is studied. | Search. | [Link](http://arxiv.org/pdf/2407.00001v1) |\n"
	assert.True(t, strings.HasPrefix(string(data), want), "got:\n%s", data)
	assert.NotContains(t, string(data), "Paper Y")
}

func TestRunOnceEmptyResult(t *testing.T) {
	t.Setenv("PAPER_DIGEST_TEST_KEY", "test-key")
	feed := strings.Replace(integrationFeed, "<title>Paper X</title>", "<title>Paper Z</title>", 1)
	arxivURL, modelURL := newFakeServices(t, feed)
	outDir := t.TempDir()

	opts := &options{
		configPath:    writeTestConfig(t, arxivURL, modelURL, outDir),
		envFile:       filepath.Join(t.TempDir(), "missing.env"),
		date:          "2024-07-08",
		logLevel:      "error",
		once:          true,
		configChanged: true,
	}
	err := run(context.Background(), opts)
	require.ErrorIs(t, err, pipeline.ErrEmptyResult)
	assert.Equal(t, exitEmpty, exitCode(err))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadConfigFallsBackToDefault(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GROQ_API_KEY=from-dotenv\n"), 0o644))
	t.Setenv("GROQ_API_KEY", "")
	os.Unsetenv("GROQ_API_KEY")

	cfg, err := loadConfig(&options{
		configPath: filepath.Join(t.TempDir(), "config.yaml"),
		envFile:    envFile,
		date:       "2024-07-08",
		logLevel:   "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Summarizer.APIKey)
	assert.Equal(t, []string{"cs.CL"}, cfg.GetCategories())
	assert.Equal(t, "2024-07-08", cfg.Date)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigExplicitPathMustExist(t *testing.T) {
	_, err := loadConfig(&options{
		configPath:    filepath.Join(t.TempDir(), "nope.yaml"),
		envFile:       filepath.Join(t.TempDir(), "missing.env"),
		configChanged: true,
	})
	require.Error(t, err)
}

func TestLoadConfigRejectsBadDate(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "k")
	_, err := loadConfig(&options{
		configPath: filepath.Join(t.TempDir(), "config.yaml"),
		envFile:    filepath.Join(t.TempDir(), "missing.env"),
		date:       "08/07/2024",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitEmpty, exitCode(fmt.Errorf("wrapped: %w", pipeline.ErrEmptyResult)))
	assert.Equal(t, exitFailure, exitCode(fmt.Errorf("%w: boom", runner.ErrFetch)))
	assert.Equal(t, exitFailure, exitCode(errors.New("config: bad")))
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "env-file", "date", "log-level", "once"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "config.yaml", cmd.Flags().Lookup("config").DefValue)
}
