// Package api exposes the journaling service over HTTP (chi) and MCP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridell/daybook/internal/insightq"
	"github.com/meridell/daybook/internal/journal"
	"github.com/meridell/daybook/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds the wiring for the HTTP surface.
type AppDeps struct {
	Service *journal.Service
	Store   *storage.Store
	Token   string
}

// NewAppHandler builds the HTTP router. Everything under /v1 requires the
// bearer token; /health does not.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/entries", handleCreateEntry(deps))
		r.Get("/entries", handleListEntries(deps))
		r.Get("/entries/{id}", handleGetEntry(deps))
		r.Post("/entries/{id}/insight", handleGenerateInsight(deps))
		r.Get("/entries/{id}/messages", handleListMessages(deps))
		r.Post("/entries/{id}/messages", handleSendMessage(deps))
		r.Post("/entries/{id}/summary", handleSummary(deps))
		r.Get("/preferences/{userID}", handleGetPreferences(deps))
		r.Patch("/preferences/{userID}", handlePatchPreferences(deps))
		r.Get("/quota/{userID}", handleQuota(deps))
	})

	return r
}

type entryView struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title,omitempty"`
	Content    string    `json:"content"`
	MoodRating int       `json:"mood_rating,omitempty"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toEntryView(e storage.Entry) entryView {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return entryView{
		ID:         e.ID,
		UserID:     e.UserID,
		Title:      e.Title,
		Content:    e.Content,
		MoodRating: e.MoodRating,
		Tags:       tags,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

type messageView struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entry_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageView(m storage.Message) messageView {
	return messageView{
		ID:        m.ID,
		EntryID:   m.EntryID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

type insightView struct {
	ID               string    `json:"id"`
	EntryID          string    `json:"entry_id"`
	InsightText      string    `json:"insight_text"`
	FollowUpQuestion string    `json:"follow_up_question,omitempty"`
	Confidence       float64   `json:"confidence"`
	PremiumGenerated bool      `json:"premium_generated"`
	CreatedAt        time.Time `json:"created_at"`
}

func toInsightView(i storage.Insight) insightView {
	return insightView{
		ID:               i.ID,
		EntryID:          i.EntryID,
		InsightText:      i.InsightText,
		FollowUpQuestion: i.FollowUpQuestion,
		Confidence:       i.Confidence,
		PremiumGenerated: i.PremiumGenerated,
		CreatedAt:        i.CreatedAt,
	}
}

type createEntryRequest struct {
	UserID          string   `json:"user_id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	MoodRating      int      `json:"mood_rating"`
	Tags            []string `json:"tags"`
	GenerateInsight string   `json:"generate_insight"` // "inline", "async", or "none"
}

func handleCreateEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		switch req.GenerateInsight {
		case "", "inline", "async", "none":
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "generate_insight must be inline, async, or none")
			return
		}

		entry, err := deps.Service.SaveEntry(r.Context(), journal.SaveEntryParams{
			UserID:     req.UserID,
			Title:      req.Title,
			Content:    req.Content,
			MoodRating: req.MoodRating,
			Tags:       req.Tags,
		})
		if err != nil {
			serviceError(w, err)
			return
		}

		resp := map[string]any{"entry": toEntryView(entry)}
		switch req.GenerateInsight {
		case "inline":
			insight, err := deps.Service.GenerateInitialInsight(r.Context(), req.UserID, entry.ID)
			if err != nil {
				// The entry is already saved; report the insight failure
				// without discarding it.
				resp["insight_error"] = err.Error()
				var qe *journal.QuotaError
				if errors.As(err, &qe) {
					resp["reset_at"] = qe.ResetAt.Format(time.RFC3339)
				}
			} else {
				resp["insight"] = toInsightView(insight)
			}
		case "async":
			jobID, err := insightq.Enqueue(deps.Store, req.UserID, entry.ID)
			if err != nil {
				resp["insight_error"] = err.Error()
			} else {
				resp["insight_job_id"] = jobID
				resp["insight_status"] = "queued"
			}
		}

		writeJSON(w, resp)
	}
}

func handleListEntries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.Service.RecentEntries(userID, limit)
		if err != nil {
			serviceError(w, err)
			return
		}

		views := make([]entryView, len(entries))
		for i, e := range entries {
			views[i] = toEntryView(e)
		}
		writeJSON(w, views)
	}
}

func handleGetEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		entry, err := deps.Service.Entry(userID, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, toEntryView(entry))
	}
}

func handleGenerateInsight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		insight, err := deps.Service.GenerateInitialInsight(r.Context(), req.UserID, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, toInsightView(insight))
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		msgs, err := deps.Service.Messages(userID, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}

		views := make([]messageView, len(msgs))
		for i, m := range msgs {
			views[i] = toMessageView(m)
		}
		writeJSON(w, views)
	}
}

func handleSendMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			UserID  string `json:"user_id"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		res, err := deps.Service.SendChatMessage(r.Context(), req.UserID, chi.URLParam(r, "id"), req.Content)
		if err != nil {
			// On quota denial the user message is already persisted and is
			// returned alongside the error payload.
			var qe *journal.QuotaError
			if errors.As(err, &qe) {
				quotaError(w, qe, map[string]any{
					"user_message": toMessageView(res.UserMessage),
				})
				return
			}
			serviceError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"user_message":      toMessageView(res.UserMessage),
			"assistant_message": toMessageView(*res.AssistantMessage),
		})
	}
}

func handleSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		summary, err := deps.Service.GenerateSummary(r.Context(), req.UserID, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"summary": summary})
	}
}

type preferenceView struct {
	UserID       string `json:"user_id"`
	AIStyle      string `json:"ai_style"`
	Subscription string `json:"subscription"`
}

func handleGetPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pref, err := deps.Service.Preferences(chi.URLParam(r, "userID"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, preferenceView{UserID: pref.UserID, AIStyle: pref.AIStyle, Subscription: pref.Subscription})
	}
}

func handlePatchPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			AIStyle      *string `json:"ai_style"`
			Subscription *string `json:"subscription"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		pref, err := deps.Service.UpdatePreferences(chi.URLParam(r, "userID"), req.AIStyle, req.Subscription)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, preferenceView{UserID: pref.UserID, AIStyle: pref.AIStyle, Subscription: pref.Subscription})
	}
}

func handleQuota(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Service.QuotaStatus(chi.URLParam(r, "userID"))
		if err != nil {
			serviceError(w, err)
			return
		}

		body := map[string]any{"remaining": res.Remaining}
		if !res.ResetAt.IsZero() {
			body["reset_at"] = res.ResetAt.Format(time.RFC3339)
		}
		writeJSON(w, body)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
