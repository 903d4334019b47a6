// Package persona assembles system prompts for insight, chat, and summary
// generation. Builders are pure: identical inputs produce identical prompts.
package persona

import (
	"fmt"
	"strings"
	"time"
)

// Style selects the companion persona. It changes tone and framing only;
// the structural contract of each prompt is identical across styles.
type Style int

const (
	Reflector Style = iota
	Coach
)

func (s Style) String() string {
	switch s {
	case Coach:
		return "coach"
	case Reflector:
		return "reflector"
	default:
		return fmt.Sprintf("style(%d)", int(s))
	}
}

// ParseStyle converts a stored style string to a Style.
// Unknown values fall back to Reflector, the default persona.
func ParseStyle(s string) Style {
	if s == "coach" {
		return Coach
	}
	return Reflector
}

// EntryContext carries the entry fields the prompt builders consume.
// Mood is 1-5, or 0 when the user did not rate the entry.
type EntryContext struct {
	Title     string
	Content   string
	Mood      int
	CreatedAt time.Time
}

const coachPersona = `You are a direct, strategic journaling coach. You help the writer turn reflections into concrete next steps. Be warm but candid, favor action-oriented framing, and keep responses focused.`

const reflectorPersona = `You are a thoughtful, exploratory journaling companion. You help the writer notice patterns and sit with their feelings without rushing to solutions. Be gentle, curious, and open-ended.`

const insightInstructions = `Read the journal entry below and respond with ONLY a single valid JSON object, no markdown and no other text, with these exact fields:
- "insight": a short reflective observation about the entry (2-4 sentences)
- "follow_up_question": one open question inviting the writer to go deeper
- "confidence": a number between 0 and 1 indicating how well-grounded the insight is in the entry text`

const chatInstructions = `You are in an ongoing conversation with the writer about the journal entry below. Stay grounded in what they actually wrote, keep replies conversational and reasonably short, and never invent events the entry does not mention.`

const summaryInstructions = `Summarize the journal entry and any conversation about it in 3-5 sentences. Capture the main themes, the writer's emotional state, and any intentions they expressed. Respond with the summary text only.`

func personaFor(style Style) string {
	if style == Coach {
		return coachPersona
	}
	return reflectorPersona
}

// moodLabels maps the 1-5 rating to the wording shown to the model.
var moodLabels = map[int]string{
	1: "very low",
	2: "low",
	3: "neutral",
	4: "good",
	5: "great",
}

func writeEntrySection(sb *strings.Builder, e EntryContext) {
	sb.WriteString("\n\n[Journal Entry]\n")
	if e.Title != "" {
		fmt.Fprintf(sb, "Title: %s\n", e.Title)
	}
	if label, ok := moodLabels[e.Mood]; ok {
		fmt.Fprintf(sb, "Mood: %s (%d/5)\n", label, e.Mood)
	}
	sb.WriteString(e.Content)
}

// BuildInsightPrompt constructs the system prompt for initial insight
// generation. recent carries up to a few prior entries for continuity;
// nil is fine.
func BuildInsightPrompt(e EntryContext, recent []EntryContext, style Style) string {
	var sb strings.Builder
	sb.WriteString(personaFor(style))
	sb.WriteString("\n\n")
	sb.WriteString(insightInstructions)

	if len(recent) > 0 {
		sb.WriteString("\n\n[Recent Entries]\nFor context only; do not comment on these directly.\n")
		for _, r := range recent {
			excerpt := r.Content
			if len(excerpt) > 280 {
				excerpt = excerpt[:280] + "…"
			}
			fmt.Fprintf(&sb, "- (%s) %s\n", r.CreatedAt.Format("2006-01-02"), excerpt)
		}
	}

	writeEntrySection(&sb, e)
	return sb.String()
}

// BuildChatPrompt constructs the system prompt for a chat turn. The prior
// conversation travels as messages, not inside the prompt.
func BuildChatPrompt(e EntryContext, style Style) string {
	var sb strings.Builder
	sb.WriteString(personaFor(style))
	sb.WriteString("\n\n")
	sb.WriteString(chatInstructions)
	writeEntrySection(&sb, e)
	return sb.String()
}

// BuildSummaryPrompt constructs the system prompt for on-demand summaries.
// The entry plus conversation transcript travels as the user message.
func BuildSummaryPrompt(style Style) string {
	return personaFor(style) + "\n\n" + summaryInstructions
}
