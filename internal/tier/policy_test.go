package tier

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"premium", Premium},
		{"free", Free},
		{"", Free},
		{"gold", Free},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestModelFor(t *testing.T) {
	if ModelFor(Free) == ModelFor(Premium) {
		t.Error("free and premium tiers should select different models")
	}
}

func TestMaxTokensFor_PremiumNeverSmaller(t *testing.T) {
	for _, kind := range []RequestKind{KindInsight, KindChat, KindSummary} {
		free := MaxTokensFor(Free, kind)
		premium := MaxTokensFor(Premium, kind)
		if free <= 0 || premium <= 0 {
			t.Fatalf("%v: non-positive token budget (free=%d premium=%d)", kind, free, premium)
		}
		if premium < free {
			t.Errorf("%v: premium budget %d below free budget %d", kind, premium, free)
		}
	}
}

func TestDailyQuota(t *testing.T) {
	if q := DailyQuota(Free); q != 10 {
		t.Errorf("free quota = %d, want 10", q)
	}
	if q := DailyQuota(Premium); q != UnlimitedQuota {
		t.Errorf("premium quota = %d, want unlimited", q)
	}
}
