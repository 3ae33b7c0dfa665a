package scoring

import (
	"strings"
	"testing"
	"time"
)

func TestPredictScoreBounds(t *testing.T) {
	cases := []Features{
		{},
		{Platform: "twitter", Content: strings.Repeat("x", 5000), Hashtags: make([]string, 30)},
		{Platform: "instagram", Content: strings.Repeat("x", 500), Hashtags: make([]string, 8), MediaCount: 3, HasTopic: true,
			LocalPostingAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{Platform: "unknown", Content: "hello?"},
	}
	for i, f := range cases {
		got := PredictScore(f)
		if got < 0 || got > 100 {
			t.Errorf("case %d: score %v out of range", i, got)
		}
	}
}

func TestPredictScoreRewardsGoodShape(t *testing.T) {
	base := Features{Platform: "linkedin", Content: strings.Repeat("word ", 120), Hashtags: []string{"#a", "#b", "#c"}}
	withMedia := base
	withMedia.MediaCount = 1
	if PredictScore(withMedia) <= PredictScore(base) {
		t.Error("expected media to raise the score")
	}

	tooLong := base
	tooLong.Content = strings.Repeat("word ", 2000)
	if PredictScore(tooLong) >= PredictScore(base) {
		t.Error("expected overly long post to score lower")
	}

	empty := base
	empty.Content = ""
	if PredictScore(empty) >= PredictScore(base) {
		t.Error("expected empty post to score lower")
	}
}

func TestPredictScorePostingHour(t *testing.T) {
	f := Features{Platform: "twitter", Content: strings.Repeat("x", 100)}
	f.LocalPostingAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	morning := PredictScore(f)
	f.LocalPostingAt = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	night := PredictScore(f)
	if morning <= night {
		t.Errorf("expected morning (%v) to beat 3am (%v)", morning, night)
	}
}
