// Package tier maps subscription state to model selection, token budgets,
// and daily generation quotas.
package tier

import "fmt"

// Tier is a user's subscription level.
type Tier int

const (
	Free Tier = iota
	Premium
)

func (t Tier) String() string {
	switch t {
	case Free:
		return "free"
	case Premium:
		return "premium"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Parse converts a stored subscription string to a Tier.
// Unknown values fall back to Free.
func Parse(s string) Tier {
	if s == "premium" {
		return Premium
	}
	return Free
}

// RequestKind distinguishes the three generation paths, which carry
// different output-token budgets.
type RequestKind int

const (
	KindInsight RequestKind = iota
	KindChat
	KindSummary
)

func (k RequestKind) String() string {
	switch k {
	case KindInsight:
		return "insight"
	case KindChat:
		return "chat"
	case KindSummary:
		return "summary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	freeModel    = "claude-3-5-haiku-latest"
	premiumModel = "claude-sonnet-4-20250514"

	// UnlimitedQuota marks a tier with no daily cap.
	UnlimitedQuota = -1

	freeDailyQuota = 10
)

// ModelFor returns the model identifier used for the given tier.
func ModelFor(t Tier) string {
	if t == Premium {
		return premiumModel
	}
	return freeModel
}

// MaxTokensFor returns the output-token ceiling for a request.
func MaxTokensFor(t Tier, kind RequestKind) int {
	switch kind {
	case KindInsight:
		if t == Premium {
			return 1024
		}
		return 512
	case KindChat:
		if t == Premium {
			return 1024
		}
		return 400
	case KindSummary:
		if t == Premium {
			return 600
		}
		return 300
	default:
		return 256
	}
}

// DailyQuota returns the number of generation calls allowed per rolling
// 24-hour window, or UnlimitedQuota for tiers with no cap.
func DailyQuota(t Tier) int {
	if t == Premium {
		return UnlimitedQuota
	}
	return freeDailyQuota
}
