package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meridell/daybook/internal/journal"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *journal.Service
}

// NewMCPServer creates an MCP server exposing the journaling tools for
// desktop assistant integration.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"daybook",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("daybook — personal journal with AI reflections and per-entry chat."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("save_entry",
			mcp.WithDescription("Save a journal entry or note and optionally generate an AI reflection."),
			mcp.WithString("user_id", mcp.Description("Owner of the entry"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The entry text"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Optional title")),
			mcp.WithNumber("mood_rating", mcp.Description("Mood from 1 (very low) to 5 (great)")),
			mcp.WithArray("tags", mcp.Description("Tags; include \"journal\" to make this the day's journal entry")),
			mcp.WithBoolean("generate_insight", mcp.Description("Generate the initial AI reflection (default true)")),
		),
		mcpSaveEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("send_chat_message",
			mcp.WithDescription("Send a chat message about an entry and get the AI companion's reply."),
			mcp.WithString("user_id", mcp.Description("Owner of the entry"), mcp.Required()),
			mcp.WithString("entry_id", mcp.Description("Entry the conversation belongs to"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The message text"), mcp.Required()),
		),
		mcpSendChatMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_entries",
			mcp.WithDescription("List the user's most recent entries, newest first."),
			mcp.WithString("user_id", mcp.Description("Owner of the entries"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpRecentEntries(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_summary",
			mcp.WithDescription("Summarize an entry and its conversation."),
			mcp.WithString("user_id", mcp.Description("Owner of the entry"), mcp.Required()),
			mcp.WithString("entry_id", mcp.Description("Entry to summarize"), mcp.Required()),
		),
		mcpGenerateSummary(deps),
	)

	return s
}

func mcpSaveEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		entry, err := deps.Service.SaveEntry(ctx, journal.SaveEntryParams{
			UserID:     userID,
			Title:      req.GetString("title", ""),
			Content:    content,
			MoodRating: req.GetInt("mood_rating", 0),
			Tags:       req.GetStringSlice("tags", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save entry: %v", err)), nil
		}

		if !req.GetBool("generate_insight", true) {
			return mcpText(fmt.Sprintf("Saved entry %s", entry.ID)), nil
		}

		insight, err := deps.Service.GenerateInitialInsight(ctx, userID, entry.ID)
		if err != nil {
			var qe *journal.QuotaError
			if errors.As(err, &qe) {
				return mcpText(fmt.Sprintf(
					"Saved entry %s. Daily AI quota exhausted; reflections resume %s.",
					entry.ID, qe.ResetAt.Format(time.RFC3339),
				)), nil
			}
			return mcpText(fmt.Sprintf("Saved entry %s, but the reflection failed: %v", entry.ID, err)), nil
		}

		return mcpText(fmt.Sprintf("Saved entry %s.\n\n%s\n\n%s",
			entry.ID, insight.InsightText, insight.FollowUpQuestion)), nil
	}
}

func mcpSendChatMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		entryID, err := req.RequireString("entry_id")
		if err != nil {
			return mcpError("entry_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		res, err := deps.Service.SendChatMessage(ctx, userID, entryID, content)
		if err != nil {
			var qe *journal.QuotaError
			if errors.As(err, &qe) {
				return mcpText(fmt.Sprintf(
					"Message saved. Daily AI quota exhausted; replies resume %s.",
					qe.ResetAt.Format(time.RFC3339),
				)), nil
			}
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}

		return mcpText(res.AssistantMessage.Content), nil
	}
}

func mcpRecentEntries(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		entries, err := deps.Service.RecentEntries(userID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing entries failed: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}

		type entryResult struct {
			ID        string   `json:"id"`
			Title     string   `json:"title,omitempty"`
			Content   string   `json:"content"`
			Mood      int      `json:"mood_rating,omitempty"`
			Tags      []string `json:"tags,omitempty"`
			CreatedAt string   `json:"created_at"`
		}

		results := make([]entryResult, len(entries))
		for i, e := range entries {
			results[i] = entryResult{
				ID:        e.ID,
				Title:     e.Title,
				Content:   e.Content,
				Mood:      e.MoodRating,
				Tags:      e.Tags,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGenerateSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		entryID, err := req.RequireString("entry_id")
		if err != nil {
			return mcpError("entry_id is required"), nil
		}

		summary, err := deps.Service.GenerateSummary(ctx, userID, entryID)
		if err != nil {
			var qe *journal.QuotaError
			if errors.As(err, &qe) {
				return mcpText(fmt.Sprintf(
					"Daily AI quota exhausted; summaries resume %s.",
					qe.ResetAt.Format(time.RFC3339),
				)), nil
			}
			return mcpError(fmt.Sprintf("summary failed: %v", err)), nil
		}

		return mcpText(summary), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
