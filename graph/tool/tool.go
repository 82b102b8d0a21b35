// Package tool provides the lookup tools the assistant can call.
package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/multitool-chat/graph/model"
)

// Tool is an executable tool that an LLM can invoke.
//
// The built-in tools all take {"query": string} and answer with
// {"result": string}, a bounded text block the model reads back.
type Tool interface {
	// Name must match the ToolSpec name advertised to the model.
	Name() string

	// Call executes the tool. Implementations check ctx before network work.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Describer is implemented by tools that advertise their own description
// and schema. Tools without it are advertised with QuerySchema.
type Describer interface {
	Description() string
}

// ResultKey is the output key every built-in tool writes its text under.
const ResultKey = "result"

// ErrMissingQuery is returned when the input has no non-blank "query".
var ErrMissingQuery = errors.New("query parameter required (string)")

// Limits bounds the size of a tool result.
type Limits struct {
	// TopK is the maximum number of results (pages, papers, hits). Zero
	// selects the tool's default.
	TopK int

	// MaxChars caps the result text. Zero selects the tool's default and a
	// negative value means unbounded.
	MaxChars int
}

func (l Limits) withDefaults(topK, maxChars int) Limits {
	if l.TopK <= 0 {
		l.TopK = topK
	}
	if l.MaxChars == 0 {
		l.MaxChars = maxChars
	}
	return l
}

// QuerySchema is the JSON schema shared by the built-in tools.
func QuerySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "search query",
			},
		},
		"required": []string{"query"},
	}
}

// Specs builds the model-facing tool specs, in order.
func Specs(tools []Tool) []model.ToolSpec {
	specs := make([]model.ToolSpec, 0, len(tools))
	for _, t := range tools {
		spec := model.ToolSpec{Name: t.Name(), Schema: QuerySchema()}
		if d, ok := t.(Describer); ok {
			spec.Description = d.Description()
		}
		specs = append(specs, spec)
	}
	return specs
}

// QueryInput extracts the "query" argument.
func QueryInput(input map[string]interface{}) (string, error) {
	q, ok := input["query"].(string)
	if !ok || strings.TrimSpace(q) == "" {
		return "", ErrMissingQuery
	}
	return strings.TrimSpace(q), nil
}

// ResultText returns the text under ResultKey, falling back to a printed
// form of the whole output for tools that use other keys.
func ResultText(out map[string]interface{}) string {
	if s, ok := out[ResultKey].(string); ok {
		return s
	}
	if len(out) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", out)
}

func result(text string) map[string]interface{} {
	return map[string]interface{}{ResultKey: text}
}

// truncate cuts s to at most max runes. max <= 0 leaves s unchanged.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
