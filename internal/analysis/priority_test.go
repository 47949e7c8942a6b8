package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluatePriorityTables(t *testing.T) {
	tests := []struct {
		name         string
		emotion      string
		emotionScore float64
		style        string
		styleScore   float64
		context      ContextRisk
		want         Tier
	}{
		{name: "neutral", emotion: "alegría", emotionScore: 90, style: "neutral", styleScore: 90, context: ContextNormal, want: TierNormal},
		{name: "high emotion at threshold", emotion: "tristeza", emotionScore: 80, style: "neutral", styleScore: 50, context: ContextNormal, want: TierAlta},
		{name: "high emotion within margin", emotion: "tristeza", emotionScore: 70, style: "neutral", styleScore: 50, context: ContextNormal, want: TierMedia},
		{name: "high emotion below margin", emotion: "tristeza", emotionScore: 69.9, style: "neutral", styleScore: 50, context: ContextNormal, want: TierNormal},
		{name: "medium emotion at threshold", emotion: "confusión", emotionScore: 60, style: "neutral", styleScore: 50, context: ContextNormal, want: TierMedia},
		{name: "medium emotion within margin", emotion: "confusión", emotionScore: 45, style: "neutral", styleScore: 50, context: ContextNormal, want: TierBaja},
		{name: "medium emotion below margin", emotion: "confusión", emotionScore: 44, style: "neutral", styleScore: 50, context: ContextNormal, want: TierNormal},
		{name: "high style alone", emotion: "alegría", emotionScore: 80, style: "agresivo", styleScore: 55, context: ContextNormal, want: TierAlta},
		{name: "high style within margin", emotion: "alegría", emotionScore: 80, style: "agresivo", styleScore: 45, context: ContextNormal, want: TierMedia},
		{name: "medium style within margin", emotion: "alegría", emotionScore: 80, style: "formal", styleScore: 65, context: ContextNormal, want: TierBaja},
		{name: "emotion and style combine", emotion: "confusión", emotionScore: 60, style: "distante", styleScore: 70, context: ContextNormal, want: TierCritica},
		{name: "context alto adds one", emotion: "confusión", emotionScore: 60, style: "neutral", styleScore: 50, context: ContextAlto, want: TierAlta},
		{name: "context medio adds half", emotion: "confusión", emotionScore: 45, style: "neutral", styleScore: 50, context: ContextMedio, want: TierBaja},
		{name: "context alone", emotion: "alegría", emotionScore: 80, style: "neutral", styleScore: 50, context: ContextAlto, want: TierBaja},
		{name: "case insensitive", emotion: "  TRISTEZA ", emotionScore: 80, style: "Neutral", styleScore: 50, context: ContextNormal, want: TierAlta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluatePriority(tt.emotion, tt.emotionScore, tt.style, tt.styleScore, tt.context)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluatePriorityCriticalOverride(t *testing.T) {
	for _, style := range []string{"neutral", "formal", "agresivo", ""} {
		assert.Equal(t, TierCritica, EvaluatePriority("tristeza", 96, style, 0, ContextNormal), "style %q", style)
	}

	assert.Equal(t, TierCritica, EvaluatePriority("frustración", 90, "neutral", 0, ContextNormal))
	assert.Equal(t, TierCritica, EvaluatePriority("ansiedad", 85, "neutral", 0, ContextNormal))
	assert.Equal(t, TierCritica, EvaluatePriority("desánimo", 90, "neutral", 0, ContextNormal))
	assert.Equal(t, TierAlta, EvaluatePriority("tristeza", 94.9, "neutral", 0, ContextNormal))
	assert.Equal(t, TierAlta, EvaluatePriority("ira", 99, "neutral", 0, ContextNormal))
}

func TestEvaluatePriorityMonotonicInEmotionScore(t *testing.T) {
	emotions := []string{"frustración", "tristeza", "ansiedad", "desánimo", "ira", "desesperación", "soledad",
		"preocupación", "confusión", "inseguridad", "nostalgia", "alegría"}
	styles := []struct {
		label string
		score float64
	}{
		{"neutral", 50}, {"evasivo", 60}, {"agresivo", 90}, {"formal", 70}, {"sarcástico", 40},
	}
	contexts := []ContextRisk{ContextNormal, ContextMedio, ContextAlto}

	for _, emotion := range emotions {
		for _, style := range styles {
			for _, ctxRisk := range contexts {
				prev := -1
				for score := 0.0; score <= 100; score += 0.5 {
					rank := EvaluatePriority(emotion, score, style.label, style.score, ctxRisk).Rank()
					if rank < prev {
						t.Fatalf("tier decreased for %s/%s/%s at score %.1f", emotion, style.label, ctxRisk, score)
					}
					prev = rank
				}
			}
		}
	}
}

func TestTierRank(t *testing.T) {
	ordered := []Tier{TierNormal, TierBaja, TierMedia, TierAlta, TierCritica}
	for i, tier := range ordered {
		assert.Equal(t, i, tier.Rank())
	}
}
