package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meridell/daybook/internal/journal"
	"github.com/meridell/daybook/internal/ratelimit"
	"github.com/meridell/daybook/internal/storage"
	"github.com/meridell/daybook/internal/tier"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *scriptGen) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gen := &scriptGen{}
	svc := journal.NewService(store, gen, ratelimit.New())
	return MCPDeps{Service: svc}, store, gen
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_SaveEntry(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	handler := mcpSaveEntry(deps)

	req := makeCallToolRequest("save_entry", map[string]interface{}{
		"user_id":     "u1",
		"title":       "Morning pages",
		"content":     "Slept well, feeling ready.",
		"mood_rating": 4,
		"tags":        []string{"journal"},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	text := toolText(t, result)
	if !strings.Contains(text, "A canned reflection.") {
		t.Errorf("response missing insight text: %s", text)
	}

	entries, err := store.ListRecentEntries("u1", 10)
	if err != nil {
		t.Fatalf("ListRecentEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "Morning pages" {
		t.Fatalf("entries = %+v", entries)
	}
	msgs, _ := store.ListMessagesForEntry(entries[0].ID)
	if len(msgs) != 1 || msgs[0].Content != "A canned reflection." {
		t.Errorf("thread = %+v", msgs)
	}
}

func TestMCPTool_SaveEntry_Validation(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpSaveEntry(deps)

	result, err := handler(context.Background(), makeCallToolRequest("save_entry", map[string]interface{}{
		"user_id": "u1",
		"content": "   ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("blank content should produce a tool error")
	}
}

func TestMCPTool_SaveEntry_DuplicateJournal(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpSaveEntry(deps)

	first := makeCallToolRequest("save_entry", map[string]interface{}{
		"user_id":          "u1",
		"content":          "First journal of the day.",
		"tags":             []string{"journal"},
		"generate_insight": false,
	})
	if res, err := handler(context.Background(), first); err != nil || res.IsError {
		t.Fatalf("first save failed: %v / %v", err, res)
	}

	second := makeCallToolRequest("save_entry", map[string]interface{}{
		"user_id":          "u1",
		"content":          "Second journal of the day.",
		"tags":             []string{"journal"},
		"generate_insight": false,
	})
	res, err := handler(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Error("second journal for the same day should produce a tool error")
	}
}

func TestMCPTool_SendChatMessage(t *testing.T) {
	deps, store, gen := newTestMCPDeps(t)
	gen.replies = []string{"A steady reply."}

	entry, err := deps.Service.SaveEntry(context.Background(), journal.SaveEntryParams{
		UserID: "u1", Content: "Something on my mind.",
	})
	if err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	handler := mcpSendChatMessage(deps)
	result, err := handler(context.Background(), makeCallToolRequest("send_chat_message", map[string]interface{}{
		"user_id":  "u1",
		"entry_id": entry.ID,
		"content":  "Can we talk about it?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "A steady reply." {
		t.Errorf("reply = %q", got)
	}

	msgs, _ := store.ListMessagesForEntry(entry.ID)
	if len(msgs) != 2 {
		t.Errorf("thread length = %d, want 2", len(msgs))
	}
}

func TestMCPTool_SendChatMessage_QuotaExhausted(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)

	entry, err := deps.Service.SaveEntry(context.Background(), journal.SaveEntryParams{
		UserID: "u1", Content: "Entry.",
	})
	if err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}
	for i := 0; i < tier.DailyQuota(tier.Free); i++ {
		if _, err := deps.Service.GenerateInitialInsight(context.Background(), "u1", entry.ID); err != nil {
			t.Fatalf("insight %d: %v", i+1, err)
		}
	}

	handler := mcpSendChatMessage(deps)
	result, err := handler(context.Background(), makeCallToolRequest("send_chat_message", map[string]interface{}{
		"user_id":  "u1",
		"entry_id": entry.ID,
		"content":  "One more.",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Quota exhaustion is reported as plain text, not a tool error, because
	// the user message was saved.
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "quota") {
		t.Errorf("response should mention the quota: %s", toolText(t, result))
	}

	msgs, _ := store.ListMessagesForEntry(entry.ID)
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "One more." {
		t.Errorf("user message not persisted: %+v", last)
	}
}

func TestMCPTool_RecentEntries(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := deps.Service.SaveEntry(context.Background(), journal.SaveEntryParams{
			UserID: "u1", Content: content, Tags: []string{"note"},
		}); err != nil {
			t.Fatalf("SaveEntry: %v", err)
		}
	}

	handler := mcpRecentEntries(deps)
	result, err := handler(context.Background(), makeCallToolRequest("recent_entries", map[string]interface{}{
		"user_id": "u1",
		"limit":   2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var entries []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &entries); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestMCPTool_RecentEntries_Empty(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpRecentEntries(deps)

	result, err := handler(context.Background(), makeCallToolRequest("recent_entries", map[string]interface{}{
		"user_id": "nobody",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("empty result = %q, want []", got)
	}
}

func TestMCPTool_GenerateSummary(t *testing.T) {
	deps, _, gen := newTestMCPDeps(t)
	gen.replies = []string{"A short summary of the day."}

	entry, err := deps.Service.SaveEntry(context.Background(), journal.SaveEntryParams{
		UserID: "u1", Content: "Entry to summarize.",
	})
	if err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	handler := mcpGenerateSummary(deps)
	result, err := handler(context.Background(), makeCallToolRequest("generate_summary", map[string]interface{}{
		"user_id":  "u1",
		"entry_id": entry.ID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "A short summary of the day." {
		t.Errorf("summary = %q", got)
	}
}

func TestMCPTool_MissingRequiredArgs(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]interface{}
	}{
		{"save_entry no content", mcpSaveEntry(deps), map[string]interface{}{"user_id": "u1"}},
		{"chat no entry", mcpSendChatMessage(deps), map[string]interface{}{"user_id": "u1", "content": "hi"}},
		{"recent no user", mcpRecentEntries(deps), map[string]interface{}{}},
		{"summary no entry", mcpGenerateSummary(deps), map[string]interface{}{"user_id": "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(context.Background(), makeCallToolRequest(tt.name, tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Error("expected a tool error for missing required argument")
			}
		})
	}
}
