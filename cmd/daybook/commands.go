package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meridell/daybook/internal/config"
	"github.com/meridell/daybook/internal/importer"
	"github.com/meridell/daybook/internal/journal"
	"github.com/meridell/daybook/internal/storage"
)

// defaultUserID identifies the local account when --user is not given.
const defaultUserID = "local"

var userID string

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", defaultUserID, "user account ID")
}

// --- write ---

var writeCmd = &cobra.Command{
	Use:   "write [text...]",
	Short: "Save a new entry",
	Long: `Save a new entry.

Examples:
  daybook write "Slept badly, but the morning run helped."
  daybook write --journal --mood 7 "Good day overall."
  daybook write --file ./draft.md --title "Retro notes" --tags work,retro`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		mood, _ := cmd.Flags().GetInt("mood")
		tagsStr, _ := cmd.Flags().GetString("tags")
		file, _ := cmd.Flags().GetString("file")
		isJournal, _ := cmd.Flags().GetBool("journal")
		insight, _ := cmd.Flags().GetString("insight")

		content := strings.Join(args, " ")
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			content = string(data)
			if title == "" {
				title = file
			}
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("entry text is required (positional args or --file)")
		}

		tags := splitTags(tagsStr)
		if isJournal && !hasTag(tags, journal.TagJournal) {
			tags = append(tags, journal.TagJournal)
		}

		req := map[string]any{
			"user_id":          userID,
			"content":          content,
			"generate_insight": insight,
		}
		if title != "" {
			req["title"] = title
		}
		if mood > 0 {
			req["mood_rating"] = mood
		}
		if tags != nil {
			req["tags"] = tags
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/entries", req)
		if err != nil {
			return err
		}

		var result struct {
			Entry struct {
				ID string `json:"id"`
			} `json:"entry"`
			Insight *struct {
				InsightText      string `json:"insight_text"`
				FollowUpQuestion string `json:"follow_up_question"`
			} `json:"insight"`
			InsightError  string `json:"insight_error"`
			InsightJobID  string `json:"insight_job_id"`
			InsightStatus string `json:"insight_status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Saved entry %s", result.Entry.ID)
		switch {
		case result.Insight != nil:
			fmt.Printf("\n%s\n", result.Insight.InsightText)
			if result.Insight.FollowUpQuestion != "" {
				fmt.Printf("\n%s\n", colorize(colorCyan, result.Insight.FollowUpQuestion))
			}
		case result.InsightError != "":
			printWarning("Insight not generated: %s", result.InsightError)
		case result.InsightStatus == "queued":
			printStatus("Insight", "queued (job %s)", result.InsightJobID)
		}
		return nil
	},
}

func init() {
	writeCmd.Flags().String("title", "", "entry title")
	writeCmd.Flags().Int("mood", 0, "mood rating 1-5")
	writeCmd.Flags().String("tags", "", "comma-separated tags")
	writeCmd.Flags().String("file", "", "read entry text from a file")
	writeCmd.Flags().Bool("journal", false, "mark as the day's journal entry")
	writeCmd.Flags().String("insight", "inline", "insight mode: inline, async, or none")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <entry-id> <message...>",
	Short: "Continue the conversation on an entry",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entryID := args[0]
		message := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"user_id": userID, "content": message}
		resp, err := client.post(cmd.Context(), "/v1/entries/"+entryID+"/messages", req)
		if err != nil {
			return err
		}

		var result struct {
			AssistantMessage struct {
				Content string `json:"content"`
			} `json:"assistant_message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.AssistantMessage.Content)
		return nil
	},
}

// --- entries ---

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List recent entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/entries?user_id=%s&limit=%d", userID, limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var entries []struct {
			ID        string   `json:"id"`
			Title     string   `json:"title"`
			Content   string   `json:"content"`
			Tags      []string `json:"tags"`
			CreatedAt string   `json:"created_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No entries found.")
			return nil
		}

		for _, e := range entries {
			label := e.Title
			if label == "" {
				label = e.Content
			}
			if len(label) > 80 {
				label = label[:80] + "..."
			}
			line := fmt.Sprintf("%s  %s  %s",
				colorize(colorCyan, e.ID[:8]),
				e.CreatedAt,
				label,
			)
			if len(e.Tags) > 0 {
				line += "  " + colorize(colorYellow, "["+strings.Join(e.Tags, ",")+"]")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	entriesCmd.Flags().Int("limit", 20, "maximum number of entries to list")
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary <entry-id>",
	Short: "Summarize an entry's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"user_id": userID}
		resp, err := client.post(cmd.Context(), "/v1/entries/"+args[0]+"/summary", req)
		if err != nil {
			return err
		}

		var result struct {
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Summary)
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import entries from a journal export (text, markdown, or PDF)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsStr, _ := cmd.Flags().GetString("tags")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		im := importer.New(&httpEntrySaver{client: client})
		res, err := im.ImportFile(cmd.Context(), userID, args[0], splitTags(tagsStr))
		if err != nil {
			return err
		}

		printSuccess("Imported %d entries (%d empty sections skipped)", res.Saved, res.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().String("tags", "", "comma-separated tags for imported entries")
}

// httpEntrySaver saves entries through the running server so the importer
// can be used from the CLI without opening the database directly.
type httpEntrySaver struct {
	client *apiClient
}

func (s *httpEntrySaver) SaveEntry(ctx context.Context, p journal.SaveEntryParams) (storage.Entry, error) {
	// Short-circuit blank sections locally; the importer skips these.
	if strings.TrimSpace(p.Content) == "" {
		return storage.Entry{}, journal.ErrEmptyContent
	}

	req := map[string]any{
		"user_id":          p.UserID,
		"title":            p.Title,
		"content":          p.Content,
		"tags":             p.Tags,
		"generate_insight": "none",
	}
	resp, err := s.client.post(ctx, "/v1/entries", req)
	if err != nil {
		return storage.Entry{}, err
	}

	var result struct {
		Entry struct {
			ID      string   `json:"id"`
			UserID  string   `json:"user_id"`
			Title   string   `json:"title"`
			Content string   `json:"content"`
			Tags    []string `json:"tags"`
		} `json:"entry"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return storage.Entry{}, err
	}
	return storage.Entry{
		ID:      result.Entry.ID,
		UserID:  result.Entry.UserID,
		Title:   result.Entry.Title,
		Content: result.Entry.Content,
		Tags:    result.Entry.Tags,
	}, nil
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage AI style and subscription preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/preferences/"+userID)
		if err != nil {
			return err
		}

		var prefs any
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prefs)
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference (ai_style or subscription)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if key != "ai_style" && key != "subscription" {
			return fmt.Errorf("unknown preference %q (valid: ai_style, subscription)", key)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/v1/preferences/"+userID, map[string]any{key: value})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}

// --- quota ---

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show remaining daily generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/quota/"+userID)
		if err != nil {
			return err
		}

		var quota struct {
			Remaining int    `json:"remaining"`
			ResetAt   string `json:"reset_at"`
		}
		if err := decodeJSON(resp, &quota); err != nil {
			return err
		}

		printStatus("Remaining", "%d", quota.Remaining)
		if quota.ResetAt != "" {
			printStatus("Resets", "%s", quota.ResetAt)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			printStatus("Valid keys", "%s", strings.Join(config.ValidKeys(), ", "))
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	tags := strings.Split(s, ",")
	for i := range tags {
		tags[i] = strings.TrimSpace(tags[i])
	}
	return tags
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
