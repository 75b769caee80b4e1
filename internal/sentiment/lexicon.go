// Package sentiment implements the tiered text-classification pipeline used
// to score retrieved news documents. Tier 1 is a deterministic lexicon
// scorer that is always available; Tier 2 is an optional model-backed
// classifier probed once at startup. Results are cached by content hash with
// upgrade-only semantics.
package sentiment

import (
	"math"
	"strings"

	"sectorpulse/pkg/models"
)

// Weighted finance-domain term lists (lowercase). Multi-word phrases are
// matched as substrings of the normalized text.
var bullishTerms = map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "soar": 0.7,
	"upbeat": 0.5, "positive": 0.4, "growth": 0.4, "upgrade": 0.6,
	"outperform": 0.6, "strong": 0.4, "recovery": 0.5, "breakout": 0.6,
	"record high": 0.7, "all-time high": 0.7, "beat": 0.5,
	"beats estimate": 0.6, "expansion": 0.4, "profit": 0.3,
	"dividend": 0.4, "approval": 0.5, "breakthrough": 0.6,
	"record order": 0.6, "contract win": 0.5, "market share gain": 0.5,
	"turnaround": 0.6, "mass production": 0.4, "patent": 0.3,
}

var bearishTerms = map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "slump": 0.6,
	"negative": 0.4, "downgrade": 0.6, "underperform": 0.6,
	"weak": 0.4, "decline": 0.5, "loss": 0.4, "selloff": 0.7,
	"correction": 0.5, "default": 0.7, "fraud": 0.8, "scam": 0.8,
	"investigation": 0.5, "miss": 0.5, "warning": 0.5, "concern": 0.3,
	"recall": 0.6, "lawsuit": 0.5, "sanction": 0.6, "shutdown": 0.6,
	"restructuring": 0.5, "layoff": 0.5, "recession": 0.6,
	"trial failure": 0.8, "guidance cut": 0.7,
}

// Label thresholds on the normalized net score.
const (
	positiveThreshold = 0.15
	negativeThreshold = -0.15
)

// maxLexicalConfidence caps Tier-1 confidence; lexicon hits alone never
// reach model-grade certainty.
const maxLexicalConfidence = 0.95

// ScoreText runs the Tier-1 lexicon scan over text and returns a lexical
// sentiment. Score is the net term weight normalized to [-1, 1]; confidence
// grows with the number of matched terms, capped at maxLexicalConfidence.
// Text with no matches is neutral with near-zero confidence.
func ScoreText(text string) models.Sentiment {
	normalized := models.NormalizeText(text)

	bullScore, bullMatches := scanTerms(normalized, bullishTerms)
	bearScore, bearMatches := scanTerms(normalized, bearishTerms)

	matches := bullMatches + bearMatches
	if matches == 0 || bullScore+bearScore == 0 {
		return models.Sentiment{
			Label:      models.SentimentNeutral,
			Score:      0,
			Confidence: 0.05,
			Tier:       models.TierLexical,
		}
	}

	score := (bullScore - bearScore) / (bullScore + bearScore)

	label := models.SentimentNeutral
	switch {
	case score > positiveThreshold:
		label = models.SentimentPositive
	case score < negativeThreshold:
		label = models.SentimentNegative
	}

	return models.Sentiment{
		Label:      label,
		Score:      score,
		Confidence: math.Min(float64(matches)/10, maxLexicalConfidence),
		Tier:       models.TierLexical,
	}
}

func scanTerms(text string, terms map[string]float64) (score float64, matches int) {
	for term, weight := range terms {
		if strings.Contains(text, term) {
			score += weight
			matches++
		}
	}
	return score, matches
}
