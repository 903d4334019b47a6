package journal

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyContent is returned when an entry is saved with blank content.
	ErrEmptyContent = errors.New("entry content is empty")

	// ErrEmptyMessage is returned when a chat message has blank text.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrDuplicateJournalForDay is returned when a second journal-tagged
	// entry is saved for the same user and calendar day.
	ErrDuplicateJournalForDay = errors.New("a journal entry already exists for this day")

	// ErrInvalidMood is returned when a mood rating falls outside 1-5.
	ErrInvalidMood = errors.New("mood rating must be between 1 and 5")

	// ErrGenerationFailed wraps unrecoverable generation failures after the
	// retry budget is spent. The user's entry or message is already safe.
	ErrGenerationFailed = errors.New("generation failed")
)

// QuotaError signals that the user's daily generation quota is exhausted.
// Callers route to the paywall instead of retrying.
type QuotaError struct {
	Remaining int
	ResetAt   time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily AI quota exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}
