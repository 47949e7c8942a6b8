package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ContextWindow is the number of preceding user messages considered.
const ContextWindow = 3

const (
	contextRiskScore = 70
	contextRiskHits  = 2
)

var contextRiskEmotions = map[string]struct{}{
	"frustración": {},
	"tristeza":    {},
	"desánimo":    {},
}

// ContextSnapshot summarizes the recent conversation. It is recomputed for
// every message and never stored.
type ContextSnapshot struct {
	EmotionFrequency map[string]int `json:"emotion_frequency"`
	StyleFrequency   map[string]int `json:"style_frequency"`
	HighRiskCount    int            `json:"high_risk_count"`
	RiskLevel        ContextRisk    `json:"context_risk_level"`
}

// ContextAggregator re-classifies recent history to detect repeated
// high-risk emotional states.
type ContextAggregator struct {
	classifier Classifier
}

// NewContextAggregator constructs a ContextAggregator.
func NewContextAggregator(classifier Classifier) *ContextAggregator {
	return &ContextAggregator{classifier: classifier}
}

// Aggregate classifies the last ContextWindow entries of history
// concurrently and summarizes them.
func (a *ContextAggregator) Aggregate(ctx context.Context, history []string) (ContextSnapshot, error) {
	window := TrailingWindow(history)
	emotions := make([]Label, len(window))
	styles := make([]Label, len(window))

	g, gctx := errgroup.WithContext(ctx)
	for i, text := range window {
		g.Go(func() error {
			label, err := a.classifier.ClassifyEmotion(gctx, text)
			if err != nil {
				return err
			}
			emotions[i] = label
			return nil
		})
		g.Go(func() error {
			label, err := a.classifier.ClassifyStyle(gctx, text)
			if err != nil {
				return err
			}
			styles[i] = label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ContextSnapshot{}, err
	}

	return Summarize(emotions, styles), nil
}

// Summarize counts label frequencies and qualifying high-risk emotions.
// Two or more hits raise the context risk to alto.
func Summarize(emotions, styles []Label) ContextSnapshot {
	snapshot := ContextSnapshot{
		EmotionFrequency: make(map[string]int, len(emotions)),
		StyleFrequency:   make(map[string]int, len(styles)),
		RiskLevel:        ContextNormal,
	}
	for _, e := range emotions {
		snapshot.EmotionFrequency[e.Name]++
		if _, risky := contextRiskEmotions[normalizeLabel(e.Name)]; risky && e.Score >= contextRiskScore {
			snapshot.HighRiskCount++
		}
	}
	for _, s := range styles {
		snapshot.StyleFrequency[s.Name]++
	}
	if snapshot.HighRiskCount >= contextRiskHits {
		snapshot.RiskLevel = ContextAlto
	}
	return snapshot
}

// TrailingWindow returns at most the last ContextWindow entries of history.
func TrailingWindow(history []string) []string {
	if len(history) > ContextWindow {
		return history[len(history)-ContextWindow:]
	}
	return history
}
