// Package analysis scores chat messages for emotional and communication-style
// risk and turns those scores into priority tiers.
package analysis

import "strings"

// Tier is the discrete priority of a single message.
type Tier string

const (
	TierNormal  Tier = "normal"
	TierBaja    Tier = "baja"
	TierMedia   Tier = "media"
	TierAlta    Tier = "alta"
	TierCritica Tier = "crítica"
)

// Rank orders tiers from normal (0) to crítica (4).
func (t Tier) Rank() int {
	switch t {
	case TierBaja:
		return 1
	case TierMedia:
		return 2
	case TierAlta:
		return 3
	case TierCritica:
		return 4
	default:
		return 0
	}
}

// ContextRisk is the conversation-level adjustment applied on top of a
// single message's scores.
type ContextRisk string

const (
	ContextNormal ContextRisk = "normal"
	ContextMedio  ContextRisk = "medio"
	ContextAlto   ContextRisk = "alto"
)

type riskTable map[string]float64

// Thresholds are tuned by tutors; keep them literal.
var (
	highRiskEmotions = riskTable{
		"frustración":   75,
		"tristeza":      80,
		"ansiedad":      70,
		"desánimo":      75,
		"ira":           70,
		"desesperación": 60,
		"soledad":       75,
	}
	mediumRiskEmotions = riskTable{
		"preocupación": 65,
		"confusión":    60,
		"inseguridad":  70,
		"nostalgia":    75,
	}
	highRiskStyles = riskTable{
		"evasivo":         65,
		"pasivo-agresivo": 60,
		"agresivo":        55,
		"defensivo":       70,
	}
	mediumRiskStyles = riskTable{
		"formal":     80,
		"distante":   70,
		"sarcástico": 65,
	}
	criticalEmotions = riskTable{
		"frustración": 90,
		"tristeza":    95,
		"ansiedad":    85,
		"desánimo":    90,
	}
)

const (
	highRiskMargin   = 10
	mediumRiskMargin = 15
)

// EvaluatePriority maps a message's emotion and style scores, adjusted by
// the conversation context, to a priority tier. Labels are matched
// case-insensitively; unknown labels contribute nothing.
func EvaluatePriority(emotion string, emotionScore float64, style string, styleScore float64, contextRisk ContextRisk) Tier {
	emotion = normalizeLabel(emotion)
	style = normalizeLabel(style)

	total := labelRisk(emotion, emotionScore, highRiskEmotions, mediumRiskEmotions) +
		labelRisk(style, styleScore, highRiskStyles, mediumRiskStyles)

	switch contextRisk {
	case ContextAlto:
		total++
	case ContextMedio:
		total += 0.5
	}

	if threshold, ok := criticalEmotions[emotion]; ok && emotionScore >= threshold {
		total = max(total, 4)
	}

	return tierFor(total)
}

// labelRisk awards 3 (high table) or 2 (medium table) when the score meets
// the label's threshold and one point less when it falls within the
// table's margin below it.
func labelRisk(label string, score float64, high, medium riskTable) float64 {
	if threshold, ok := high[label]; ok {
		switch {
		case score >= threshold:
			return 3
		case score >= threshold-highRiskMargin:
			return 2
		}
		return 0
	}
	if threshold, ok := medium[label]; ok {
		switch {
		case score >= threshold:
			return 2
		case score >= threshold-mediumRiskMargin:
			return 1
		}
	}
	return 0
}

func tierFor(total float64) Tier {
	switch {
	case total >= 4:
		return TierCritica
	case total >= 3:
		return TierAlta
	case total >= 2:
		return TierMedia
	case total >= 1:
		return TierBaja
	default:
		return TierNormal
	}
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
