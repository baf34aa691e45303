package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// DefaultErrorMessagePath covers {"message": ...}, {"error": {"message": ...}} and {"error": "..."}.
const DefaultErrorMessagePath = "message || error.message || error || errors[0].message"

// messageExtractor pulls a human-readable message out of an error body whose
// shape is owned by the backend. The query is compiled once and shared.
type messageExtractor struct {
	expr  string
	query jmespath.JMESPath
}

func newMessageExtractor(expr string) (*messageExtractor, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultErrorMessagePath
	}
	query, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile error message path %q: %w", expr, err)
	}
	return &messageExtractor{expr: expr, query: query}, nil
}

// extract returns the message found in body, falling back to the status text.
func (m *messageExtractor) extract(body []byte, status int) string {
	fallback := http.StatusText(status)

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
			return text
		}
		return fallback
	}

	found, err := m.query.Search(data)
	if err != nil {
		return fallback
	}
	if s, ok := found.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
