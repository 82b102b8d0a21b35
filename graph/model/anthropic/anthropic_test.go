package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/multitool-chat/graph/model"
)

func fakeServer(t *testing.T, body string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if captured != nil {
			if err := json.Unmarshal(raw, captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestModel(srv *httptest.Server) *ChatModel {
	return NewChatModel("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
}

func TestExtractSystemPrompt(t *testing.T) {
	system, rest := extractSystemPrompt([]model.Message{
		{Role: model.RoleSystem, Content: "a"},
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleSystem, Content: "b"},
	})
	if system != "a\n\nb" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "q" {
		t.Errorf("rest = %+v", rest)
	}
}

func TestChatModel_Chat(t *testing.T) {
	t.Run("text and tool_use blocks", func(t *testing.T) {
		var req map[string]interface{}
		srv := fakeServer(t, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Let me look."},{"type":"tool_use","id":"tu_1","name":"arxiv_search","input":{"query":"transformers"}}],
			"stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":5}}`, &req)

		out, err := newTestModel(srv).Chat(context.Background(),
			[]model.Message{
				{Role: model.RoleSystem, Content: "You are helpful."},
				{Role: model.RoleUser, Content: "find papers on transformers"},
			},
			[]model.ToolSpec{{Name: "arxiv_search", Description: "Query arxiv papers", Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
				"required":   []string{"query"},
			}}})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if out.Text != "Let me look." {
			t.Errorf("text = %q", out.Text)
		}
		if len(out.ToolCalls) != 1 || out.ToolCalls[0].ID != "tu_1" || out.ToolCalls[0].Input["query"] != "transformers" {
			t.Errorf("tool calls = %+v", out.ToolCalls)
		}

		system := req["system"].([]interface{})
		if system[0].(map[string]interface{})["text"] != "You are helpful." {
			t.Errorf("system = %v", system)
		}
		if len(req["messages"].([]interface{})) != 1 {
			t.Errorf("system message should not be sent as a turn: %v", req["messages"])
		}
		tool := req["tools"].([]interface{})[0].(map[string]interface{})
		if tool["name"] != "arxiv_search" {
			t.Errorf("tool = %v", tool)
		}
	})

	t.Run("tool results are grouped into one user turn", func(t *testing.T) {
		var req map[string]interface{}
		srv := fakeServer(t, `{"id":"msg_2","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Done."}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`, &req)

		_, err := newTestModel(srv).Chat(context.Background(), []model.Message{
			{Role: model.RoleUser, Content: "q"},
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
				{ID: "a", Name: "wikipedia_search", Input: map[string]interface{}{"query": "x"}},
				{ID: "b", Name: "arxiv_search", Input: map[string]interface{}{"query": "y"}},
			}},
			{Role: model.RoleTool, ToolCallID: "a", Content: "Page: X"},
			{Role: model.RoleTool, ToolCallID: "b", Content: "error: timeout"},
		}, nil)
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}

		msgs := req["messages"].([]interface{})
		if len(msgs) != 3 {
			t.Fatalf("messages = %v", msgs)
		}
		results := msgs[2].(map[string]interface{})
		if results["role"] != "user" {
			t.Errorf("role = %v", results["role"])
		}
		blocks := results["content"].([]interface{})
		if len(blocks) != 2 {
			t.Fatalf("blocks = %v", blocks)
		}
		second := blocks[1].(map[string]interface{})
		if second["tool_use_id"] != "b" || second["is_error"] != true {
			t.Errorf("second block = %v", second)
		}
	})

	t.Run("tool choice none keeps the tools declared", func(t *testing.T) {
		var req map[string]interface{}
		srv := fakeServer(t, `{"id":"msg_3","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Summary."}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`, &req)

		out, err := newTestModel(srv).Chat(context.Background(), []model.Message{
			{Role: model.RoleUser, Content: "q"},
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "a", Name: "wikipedia_search", Input: map[string]interface{}{"query": "x"}}}},
			{Role: model.RoleTool, ToolCallID: "a", Content: "Page: X"},
		}, []model.ToolSpec{{Name: "wikipedia_search", Schema: map[string]interface{}{"type": "object"}}},
			model.WithToolChoice(model.ToolChoiceNone))
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if out.Text != "Summary." {
			t.Errorf("text = %q", out.Text)
		}

		tools, ok := req["tools"].([]interface{})
		if !ok || len(tools) != 1 {
			t.Fatalf("tools = %v", req["tools"])
		}
		choice, ok := req["tool_choice"].(map[string]interface{})
		if !ok || choice["type"] != "none" {
			t.Errorf("tool_choice = %v", req["tool_choice"])
		}
	})

	t.Run("tool choice is omitted by default", func(t *testing.T) {
		var req map[string]interface{}
		srv := fakeServer(t, `{"id":"msg_4","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`, &req)

		if _, err := newTestModel(srv).Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "q"}},
			[]model.ToolSpec{{Name: "arxiv_search", Schema: map[string]interface{}{"type": "object"}}}); err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if _, ok := req["tool_choice"]; ok {
			t.Errorf("tool_choice = %v", req["tool_choice"])
		}
	})

	t.Run("api error propagates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
		}))
		defer srv.Close()
		if _, err := newTestModel(srv).Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil); err == nil {
			t.Error("expected error")
		}
	})
}
