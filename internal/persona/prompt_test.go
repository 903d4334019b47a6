package persona

import (
	"strings"
	"testing"
	"time"
)

func entry(content string, mood int) EntryContext {
	return EntryContext{
		Content:   content,
		Mood:      mood,
		CreatedAt: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in   string
		want Style
	}{
		{"coach", Coach},
		{"reflector", Reflector},
		{"", Reflector},
		{"therapist", Reflector},
	}
	for _, tt := range tests {
		if got := ParseStyle(tt.in); got != tt.want {
			t.Errorf("ParseStyle(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildInsightPrompt_Deterministic(t *testing.T) {
	e := entry("Had a rough day at work", 2)
	recent := []EntryContext{entry("Slept badly", 3)}

	a := BuildInsightPrompt(e, recent, Reflector)
	b := BuildInsightPrompt(e, recent, Reflector)
	if a != b {
		t.Error("identical inputs produced different prompts")
	}
}

func TestBuildInsightPrompt_StyleChangesFramingOnly(t *testing.T) {
	e := entry("Had a rough day at work", 2)

	reflector := BuildInsightPrompt(e, nil, Reflector)
	coach := BuildInsightPrompt(e, nil, Coach)

	if reflector == coach {
		t.Error("styles should produce different persona framing")
	}
	// Both styles carry the same structural contract and entry text.
	for name, p := range map[string]string{"reflector": reflector, "coach": coach} {
		for _, want := range []string{`"insight"`, `"follow_up_question"`, `"confidence"`, "Had a rough day at work"} {
			if !strings.Contains(p, want) {
				t.Errorf("%s prompt missing %q", name, want)
			}
		}
	}
}

func TestBuildInsightPrompt_MoodAndRecent(t *testing.T) {
	e := entry("content", 2)
	recent := []EntryContext{entry("yesterday was calmer", 0)}

	p := BuildInsightPrompt(e, recent, Reflector)
	if !strings.Contains(p, "low (2/5)") {
		t.Errorf("prompt missing mood label: %q", p)
	}
	if !strings.Contains(p, "[Recent Entries]") || !strings.Contains(p, "yesterday was calmer") {
		t.Error("prompt missing recent entries section")
	}

	// No mood rating, no recent entries: sections omitted.
	p = BuildInsightPrompt(entry("content", 0), nil, Reflector)
	if strings.Contains(p, "Mood:") {
		t.Error("unrated entry should not include a mood line")
	}
	if strings.Contains(p, "[Recent Entries]") {
		t.Error("prompt should omit recent entries section when empty")
	}
}

func TestBuildInsightPrompt_TruncatesLongRecentEntries(t *testing.T) {
	long := entry(strings.Repeat("a", 1000), 0)
	p := BuildInsightPrompt(entry("today", 0), []EntryContext{long}, Reflector)
	if strings.Contains(p, strings.Repeat("a", 300)) {
		t.Error("recent entry excerpt should be truncated")
	}
}

func TestBuildChatPrompt(t *testing.T) {
	e := EntryContext{Title: "Tuesday", Content: "long meeting", Mood: 4}
	p := BuildChatPrompt(e, Coach)
	for _, want := range []string{"Title: Tuesday", "long meeting", "good (4/5)"} {
		if !strings.Contains(p, want) {
			t.Errorf("chat prompt missing %q", want)
		}
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	if BuildSummaryPrompt(Coach) == BuildSummaryPrompt(Reflector) {
		t.Error("summary prompt should vary by style")
	}
	if !strings.Contains(BuildSummaryPrompt(Reflector), "Summarize") {
		t.Error("summary prompt missing instructions")
	}
}
