package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/ryosukesatoh/paper-digest/internal/fetcher"
)

const systemTemplate = `You are a helpful assistant, you are given a research paper title and its summary.
<OUTPUT_FORMAT>
Your output should be formatted as a standard JSON object that conforms to this JSON schema:
%s
Reply with the JSON object only. Do not add any text before or after it.
</OUTPUT_FORMAT>`

// outputSchema is the machine-readable descriptor of Summary.
var outputSchema = sync.OnceValues(func() (map[string]any, string) {
	r := jsonschema.Reflector{
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	raw, err := json.Marshal(r.Reflect(&Summary{}))
	if err != nil {
		panic(fmt.Sprintf("summarizer: failed to marshal output schema: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("summarizer: failed to decode output schema: %v", err))
	}
	return m, string(raw)
})

// SystemPrompt returns the fixed instruction, with the output schema embedded.
func SystemPrompt() string {
	_, schema := outputSchema()
	return fmt.Sprintf(systemTemplate, schema)
}

// QueryFor builds the identity text sent for p.
func QueryFor(p fetcher.Paper) string {
	return fmt.Sprintf("Paper: %s, Summary: %s", p.Title, p.Abstract)
}

// Parse decodes a model reply into a Summary. Replies wrapped in code fences
// or surrounded by prose are accepted as long as they hold one JSON object.
func Parse(reply string) (*Summary, error) {
	body := strings.TrimSpace(reply)
	if body == "" {
		return nil, ErrEmptyResponse
	}
	body = stripFences(body)

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedOutput)
	}

	var s Summary
	if err := json.Unmarshal([]byte(body[start:end+1]), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	s.Brief = strings.TrimSpace(s.Brief)
	s.PotentialApplications = strings.TrimSpace(s.PotentialApplications)
	if s.Brief == "" {
		return nil, fmt.Errorf("%w: missing brief", ErrMalformedOutput)
	}
	if s.PotentialApplications == "" {
		return nil, fmt.Errorf("%w: missing potential_applications", ErrMalformedOutput)
	}
	return &s, nil
}

func stripFences(body string) string {
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
