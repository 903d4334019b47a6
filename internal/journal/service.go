// Package journal orchestrates the entry lifecycle: saving entries,
// generating the initial insight, running the per-entry chat thread, and
// producing on-demand summaries.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridell/daybook/internal/claude"
	"github.com/meridell/daybook/internal/persona"
	"github.com/meridell/daybook/internal/ratelimit"
	"github.com/meridell/daybook/internal/storage"
	"github.com/meridell/daybook/internal/tier"
)

// TagJournal marks an entry as the day's journal. At most one journal
// entry may exist per user per calendar day; other tags are unrestricted.
const TagJournal = "journal"

const (
	recentEntryContext = 3
	retryDelay         = 2 * time.Second
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	InsertEntry(storage.Entry) error
	GetEntry(id string) (storage.Entry, error)
	UpdateEntry(storage.Entry) error
	ListEntriesOnDay(userID string, day time.Time, tag string) ([]storage.Entry, error)
	ListRecentEntries(userID string, limit int) ([]storage.Entry, error)
	InsertMessage(storage.Message) error
	ListMessagesForEntry(entryID string) ([]storage.Message, error)
	InsertInsight(storage.Insight) error
	ListInsightsForEntry(entryID string) ([]storage.Insight, error)
	GetPreference(userID string) (storage.Preference, error)
	SetPreference(storage.Preference) error
}

// Generator abstracts the model client.
type Generator interface {
	Generate(ctx context.Context, req claude.Request) (claude.Completion, error)
}

// QuotaGate abstracts the rate limiter.
type QuotaGate interface {
	CheckAndIncrement(userID string, t tier.Tier) ratelimit.Result
	Peek(userID string, t tier.Tier) ratelimit.Result
}

// Service sequences persistence, quota checks, prompt assembly, and
// generation. It holds no persistent state of its own.
type Service struct {
	store Store
	gen   Generator
	quota QuotaGate

	now   func() time.Time
	newID func() string
	delay time.Duration

	// Per-entry locks serialize concurrent chat sends for the same entry
	// so thread ordering cannot race.
	lockMu     sync.Mutex
	entryLocks map[string]*sync.Mutex

	logger *slog.Logger
}

// NewService creates a Service wired to its collaborators.
func NewService(store Store, gen Generator, quota QuotaGate) *Service {
	return &Service{
		store:      store,
		gen:        gen,
		quota:      quota,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		delay:      retryDelay,
		entryLocks: make(map[string]*sync.Mutex),
		logger:     slog.Default(),
	}
}

func (s *Service) entryLock(entryID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.entryLocks[entryID]
	if !ok {
		mu = &sync.Mutex{}
		s.entryLocks[entryID] = mu
	}
	return mu
}

// SaveEntryParams carries the fields for a new entry.
type SaveEntryParams struct {
	UserID     string
	Title      string
	Content    string
	MoodRating int
	Tags       []string
}

// SaveEntry validates and persists a new entry. Journal-tagged entries are
// limited to one per user per UTC calendar day.
func (s *Service) SaveEntry(ctx context.Context, p SaveEntryParams) (storage.Entry, error) {
	if strings.TrimSpace(p.Content) == "" {
		return storage.Entry{}, ErrEmptyContent
	}
	if p.MoodRating != 0 && (p.MoodRating < 1 || p.MoodRating > 5) {
		return storage.Entry{}, ErrInvalidMood
	}

	now := s.now().UTC()
	if hasTag(p.Tags, TagJournal) {
		existing, err := s.store.ListEntriesOnDay(p.UserID, now, TagJournal)
		if err != nil {
			return storage.Entry{}, fmt.Errorf("checking for existing journal entry: %w", err)
		}
		if len(existing) > 0 {
			return storage.Entry{}, ErrDuplicateJournalForDay
		}
	}

	e := storage.Entry{
		ID:         s.newID(),
		UserID:     p.UserID,
		Title:      p.Title,
		Content:    p.Content,
		MoodRating: p.MoodRating,
		Tags:       p.Tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertEntry(e); err != nil {
		return storage.Entry{}, fmt.Errorf("persisting entry: %w", err)
	}

	s.logger.Info("entry saved", "entry_id", e.ID, "user_id", e.UserID, "tags", e.Tags)
	return e, nil
}

// UpdateEntry rewrites an entry's mutable fields after validating content
// and mood the same way SaveEntry does.
func (s *Service) UpdateEntry(ctx context.Context, userID, entryID, title, content string, mood int) (storage.Entry, error) {
	if strings.TrimSpace(content) == "" {
		return storage.Entry{}, ErrEmptyContent
	}
	if mood != 0 && (mood < 1 || mood > 5) {
		return storage.Entry{}, ErrInvalidMood
	}

	e, err := s.ownedEntry(userID, entryID)
	if err != nil {
		return storage.Entry{}, err
	}

	e.Title = title
	e.Content = content
	e.MoodRating = mood
	if err := s.store.UpdateEntry(e); err != nil {
		return storage.Entry{}, fmt.Errorf("updating entry: %w", err)
	}
	return e, nil
}

// ownedEntry loads an entry and hides its existence from other users.
func (s *Service) ownedEntry(userID, entryID string) (storage.Entry, error) {
	e, err := s.store.GetEntry(entryID)
	if err != nil {
		return storage.Entry{}, err
	}
	if e.UserID != userID {
		return storage.Entry{}, storage.ErrNotFound
	}
	return e, nil
}

// insightPayload is the JSON object the insight prompt asks the model for.
type insightPayload struct {
	Insight          string  `json:"insight"`
	FollowUpQuestion string  `json:"follow_up_question"`
	Confidence       float64 `json:"confidence"`
}

// GenerateInitialInsight runs the quota gate, generates a reflection for
// the entry, and persists it both as an insight record and as the thread's
// first assistant message. The entry itself is never touched, so a failure
// here loses nothing the user wrote.
func (s *Service) GenerateInitialInsight(ctx context.Context, userID, entryID string) (storage.Insight, error) {
	e, err := s.ownedEntry(userID, entryID)
	if err != nil {
		return storage.Insight{}, err
	}

	pref, err := s.store.GetPreference(userID)
	if err != nil {
		return storage.Insight{}, fmt.Errorf("loading preferences: %w", err)
	}
	userTier := tier.Parse(pref.Subscription)
	style := persona.ParseStyle(pref.AIStyle)

	if res := s.quota.CheckAndIncrement(userID, userTier); !res.Allowed {
		return storage.Insight{}, &QuotaError{Remaining: res.Remaining, ResetAt: res.ResetAt}
	}

	recent := s.recentEntryContexts(userID, entryID)
	prompt := persona.BuildInsightPrompt(entryContext(e), recent, style)

	completion, err := s.generate(ctx, claude.Request{
		Model:     tier.ModelFor(userTier),
		MaxTokens: tier.MaxTokensFor(userTier, tier.KindInsight),
		System:    prompt,
		Messages:  []claude.Message{{Role: "user", Content: "Please reflect on my entry."}},
	})
	if err != nil {
		return storage.Insight{}, err
	}

	payload := parseInsightPayload(completion.Text)
	insight := storage.Insight{
		ID:               s.newID(),
		EntryID:          e.ID,
		InsightText:      payload.Insight,
		FollowUpQuestion: payload.FollowUpQuestion,
		Confidence:       payload.Confidence,
		PremiumGenerated: userTier == tier.Premium,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.store.InsertInsight(insight); err != nil {
		return storage.Insight{}, fmt.Errorf("persisting insight: %w", err)
	}

	// Dual write: the insight also opens the chat thread, with identical
	// text, so the conversation has the reflection as its first turn.
	msg := storage.Message{
		ID:        s.newID(),
		EntryID:   e.ID,
		UserID:    userID,
		Role:      "assistant",
		Content:   insight.InsightText,
		CreatedAt: insight.CreatedAt,
	}
	if err := s.store.InsertMessage(msg); err != nil {
		return storage.Insight{}, fmt.Errorf("persisting insight message: %w", err)
	}

	s.logger.Info("insight generated",
		"entry_id", e.ID,
		"model", completion.Model,
		"output_tokens", completion.Usage.OutputTokens,
	)
	return insight, nil
}

// parseInsightPayload decodes the model's JSON reply. Responses that are
// not valid JSON are kept as plain insight text rather than discarded.
func parseInsightPayload(text string) insightPayload {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var p insightPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil || strings.TrimSpace(p.Insight) == "" {
		return insightPayload{Insight: strings.TrimSpace(text), Confidence: 0.5}
	}
	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}
	return p
}

func (s *Service) recentEntryContexts(userID, excludeID string) []persona.EntryContext {
	entries, err := s.store.ListRecentEntries(userID, recentEntryContext+1)
	if err != nil {
		s.logger.Warn("loading recent entries for context", "error", err)
		return nil
	}
	var out []persona.EntryContext
	for _, e := range entries {
		if e.ID == excludeID {
			continue
		}
		out = append(out, entryContext(e))
		if len(out) == recentEntryContext {
			break
		}
	}
	return out
}

func entryContext(e storage.Entry) persona.EntryContext {
	return persona.EntryContext{
		Title:     e.Title,
		Content:   e.Content,
		Mood:      e.MoodRating,
		CreatedAt: e.CreatedAt,
	}
}

// ChatResult returns both turns of a chat exchange. AssistantMessage is nil
// when generation was denied or failed; the user message is persisted
// either way.
type ChatResult struct {
	UserMessage      storage.Message
	AssistantMessage *storage.Message
}

// SendChatMessage persists the user's message, then generates and persists
// the assistant's reply. On quota denial the user message survives and the
// returned error is a *QuotaError.
func (s *Service) SendChatMessage(ctx context.Context, userID, entryID, text string) (ChatResult, error) {
	if strings.TrimSpace(text) == "" {
		return ChatResult{}, ErrEmptyMessage
	}

	e, err := s.ownedEntry(userID, entryID)
	if err != nil {
		return ChatResult{}, err
	}

	// Serialize sends per entry so two rapid messages cannot interleave
	// their history reads and writes.
	mu := s.entryLock(entryID)
	mu.Lock()
	defer mu.Unlock()

	history, err := s.store.ListMessagesForEntry(entryID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("loading thread: %w", err)
	}

	userMsg := storage.Message{
		ID:        s.newID(),
		EntryID:   entryID,
		UserID:    userID,
		Role:      "user",
		Content:   text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertMessage(userMsg); err != nil {
		return ChatResult{}, fmt.Errorf("persisting message: %w", err)
	}

	pref, err := s.store.GetPreference(userID)
	if err != nil {
		return ChatResult{UserMessage: userMsg}, fmt.Errorf("loading preferences: %w", err)
	}
	userTier := tier.Parse(pref.Subscription)
	style := persona.ParseStyle(pref.AIStyle)

	if res := s.quota.CheckAndIncrement(userID, userTier); !res.Allowed {
		return ChatResult{UserMessage: userMsg}, &QuotaError{Remaining: res.Remaining, ResetAt: res.ResetAt}
	}

	msgs := threadMessages(history, text)
	completion, err := s.generate(ctx, claude.Request{
		Model:     tier.ModelFor(userTier),
		MaxTokens: tier.MaxTokensFor(userTier, tier.KindChat),
		System:    persona.BuildChatPrompt(entryContext(e), style),
		Messages:  msgs,
	})
	if err != nil {
		return ChatResult{UserMessage: userMsg}, err
	}

	assistantMsg := storage.Message{
		ID:        s.newID(),
		EntryID:   entryID,
		UserID:    userID,
		Role:      "assistant",
		Content:   completion.Text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertMessage(assistantMsg); err != nil {
		return ChatResult{UserMessage: userMsg}, fmt.Errorf("persisting reply: %w", err)
	}

	return ChatResult{UserMessage: userMsg, AssistantMessage: &assistantMsg}, nil
}

// threadMessages converts stored history plus the new user text into the
// model's message array. The API requires a leading user turn and rejects
// consecutive same-role turns, so runs are merged and a thread that opens
// with the assistant insight gets a synthetic user turn in front.
func threadMessages(history []storage.Message, newText string) []claude.Message {
	var msgs []claude.Message
	for _, m := range history {
		if n := len(msgs); n > 0 && msgs[n-1].Role == m.Role {
			msgs[n-1].Content += "\n\n" + m.Content
			continue
		}
		msgs = append(msgs, claude.Message{Role: m.Role, Content: m.Content})
	}
	if len(msgs) > 0 && msgs[0].Role == "assistant" {
		msgs = append([]claude.Message{{Role: "user", Content: "I just finished writing this entry."}}, msgs...)
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == "user" {
		msgs[n-1].Content += "\n\n" + newText
	} else {
		msgs = append(msgs, claude.Message{Role: "user", Content: newText})
	}
	return msgs
}

// GenerateSummary produces a short summary of the entry and its
// conversation. It draws from the same daily quota pool as insights and
// chat. The summary is returned, not persisted.
func (s *Service) GenerateSummary(ctx context.Context, userID, entryID string) (string, error) {
	e, err := s.ownedEntry(userID, entryID)
	if err != nil {
		return "", err
	}

	pref, err := s.store.GetPreference(userID)
	if err != nil {
		return "", fmt.Errorf("loading preferences: %w", err)
	}
	userTier := tier.Parse(pref.Subscription)
	style := persona.ParseStyle(pref.AIStyle)

	if res := s.quota.CheckAndIncrement(userID, userTier); !res.Allowed {
		return "", &QuotaError{Remaining: res.Remaining, ResetAt: res.ResetAt}
	}

	history, err := s.store.ListMessagesForEntry(entryID)
	if err != nil {
		return "", fmt.Errorf("loading thread: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("[Entry]\n")
	sb.WriteString(e.Content)
	if len(history) > 0 {
		sb.WriteString("\n\n[Conversation]\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}

	completion, err := s.generate(ctx, claude.Request{
		Model:     tier.ModelFor(userTier),
		MaxTokens: tier.MaxTokensFor(userTier, tier.KindSummary),
		System:    persona.BuildSummaryPrompt(style),
		Messages:  []claude.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(completion.Text), nil
}

// generate calls the model with one retry for transient failures
// (timeout, upstream rate limit, malformed completion), backing off
// briefly before the second attempt.
func (s *Service) generate(ctx context.Context, req claude.Request) (claude.Completion, error) {
	completion, err := s.gen.Generate(ctx, req)
	if err == nil {
		return completion, nil
	}
	if !claude.Retryable(err) {
		var authErr *claude.AuthError
		if errors.As(err, &authErr) {
			// Credential misconfiguration is an operator problem, not a
			// user problem.
			s.logger.Error("generation auth failure", "error", err)
		}
		return claude.Completion{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	s.logger.Warn("generation attempt failed, retrying once", "error", err)
	select {
	case <-ctx.Done():
		return claude.Completion{}, ctx.Err()
	case <-time.After(s.delay):
	}

	completion, err = s.gen.Generate(ctx, req)
	if err != nil {
		return claude.Completion{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return completion, nil
}

// Preferences returns the user's companion settings (defaults when unset).
func (s *Service) Preferences(userID string) (storage.Preference, error) {
	return s.store.GetPreference(userID)
}

// UpdatePreferences patches the user's style and/or subscription.
// Nil fields are left unchanged.
func (s *Service) UpdatePreferences(userID string, style, subscription *string) (storage.Preference, error) {
	pref, err := s.store.GetPreference(userID)
	if err != nil {
		return storage.Preference{}, fmt.Errorf("loading preferences: %w", err)
	}

	if style != nil {
		if *style != "coach" && *style != "reflector" {
			return storage.Preference{}, fmt.Errorf("invalid ai_style %q", *style)
		}
		pref.AIStyle = *style
	}
	if subscription != nil {
		if *subscription != "free" && *subscription != "premium" {
			return storage.Preference{}, fmt.Errorf("invalid subscription %q", *subscription)
		}
		pref.Subscription = *subscription
	}

	pref.UserID = userID
	if err := s.store.SetPreference(pref); err != nil {
		return storage.Preference{}, fmt.Errorf("saving preferences: %w", err)
	}
	return pref, nil
}

// QuotaStatus reports the user's remaining daily quota without consuming it.
func (s *Service) QuotaStatus(userID string) (ratelimit.Result, error) {
	pref, err := s.store.GetPreference(userID)
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("loading preferences: %w", err)
	}
	return s.quota.Peek(userID, tier.Parse(pref.Subscription)), nil
}

// Messages returns an entry's thread in ascending timestamp order.
func (s *Service) Messages(userID, entryID string) ([]storage.Message, error) {
	if _, err := s.ownedEntry(userID, entryID); err != nil {
		return nil, err
	}
	return s.store.ListMessagesForEntry(entryID)
}

// Entry returns a single entry owned by userID.
func (s *Service) Entry(userID, entryID string) (storage.Entry, error) {
	return s.ownedEntry(userID, entryID)
}

// RecentEntries returns the user's entries, newest first.
func (s *Service) RecentEntries(userID string, limit int) ([]storage.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListRecentEntries(userID, limit)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
