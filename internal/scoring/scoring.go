// Package scoring estimates how well a post is likely to perform.
package scoring

import (
	"math"
	"strings"
	"time"
)

// Features describe a post before it is published.
type Features struct {
	Platform       string
	Content        string
	Hashtags       []string
	MediaCount     int
	HasTopic       bool
	LocalPostingAt time.Time
}

type platformProfile struct {
	idealMin, idealMax int
	idealHashtags      int
	mediaBonus         float64
}

var profiles = map[string]platformProfile{
	"twitter":   {idealMin: 70, idealMax: 260, idealHashtags: 1, mediaBonus: 10},
	"linkedin":  {idealMin: 400, idealMax: 1300, idealHashtags: 3, mediaBonus: 8},
	"facebook":  {idealMin: 40, idealMax: 400, idealHashtags: 2, mediaBonus: 12},
	"instagram": {idealMin: 120, idealMax: 1500, idealHashtags: 8, mediaBonus: 20},
	"pinterest": {idealMin: 80, idealMax: 450, idealHashtags: 3, mediaBonus: 20},
}

// PredictScore returns a heuristic engagement score in [0, 100].
func PredictScore(f Features) float64 {
	p, ok := profiles[f.Platform]
	if !ok {
		p = profiles["linkedin"]
	}

	score := 40.0
	score += lengthScore(len([]rune(strings.TrimSpace(f.Content))), p.idealMin, p.idealMax)
	score += hashtagScore(len(f.Hashtags), p.idealHashtags)
	if f.MediaCount > 0 {
		score += p.mediaBonus
	}
	if f.HasTopic {
		score += 8
	}
	if strings.Contains(f.Content, "?") {
		score += 4
	}
	if !f.LocalPostingAt.IsZero() {
		score += hourScore(f.LocalPostingAt.Hour())
	}

	return math.Round(math.Max(0, math.Min(100, score))*10) / 10
}

// lengthScore is +20 inside the ideal range and falls off outside it.
func lengthScore(n, lo, hi int) float64 {
	switch {
	case n == 0:
		return -40
	case n < lo:
		return 20 * float64(n) / float64(lo)
	case n <= hi:
		return 20
	default:
		over := float64(n-hi) / float64(hi)
		return math.Max(-20, 20-40*over)
	}
}

func hashtagScore(n, ideal int) float64 {
	diff := n - ideal
	if diff < 0 {
		diff = -diff
	}
	return math.Max(-10, 10-4*float64(diff))
}

func hourScore(h int) float64 {
	switch {
	case h >= 7 && h <= 9, h >= 12 && h <= 13, h >= 17 && h <= 20:
		return 8
	case h >= 23 || h <= 5:
		return -6
	default:
		return 2
	}
}
