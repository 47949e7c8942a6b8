package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Label is a classifier label with its confidence percentage (0-100).
type Label struct {
	Name  string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier wraps the emotion and communication-style models.
type Classifier interface {
	ClassifyEmotion(ctx context.Context, text string) (Label, error)
	EmotionDistribution(ctx context.Context, text string) ([]Label, error)
	ClassifyStyle(ctx context.Context, text string) (Label, error)
	StyleDistribution(ctx context.Context, text string) ([]Label, error)
}

// AlertChecker decides whether a message warrants an explicit tutor alert.
// An empty reason means no reason was given.
type AlertChecker interface {
	CheckCombinedAlert(ctx context.Context, emotion string, emotionScore float64, style string, styleScore float64) (bool, string, error)
}

// Result is the risk assessment of one user-authored message.
type Result struct {
	Emotion             string           `json:"emotion"`
	EmotionScore        float64          `json:"emotion_score"`
	EmotionDistribution []Label          `json:"emotion_distribution"`
	Style               string           `json:"style"`
	StyleScore          float64          `json:"style_score"`
	StyleDistribution   []Label          `json:"style_distribution"`
	Priority            Tier             `json:"priority"`
	Alert               bool             `json:"alert"`
	AlertReason         *string          `json:"alert_reason"`
	ContextRisk         ContextRisk      `json:"context_risk,omitempty"`
	Context             *ContextSnapshot `json:"context,omitempty"`
}

// Analyzer runs the full scoring pipeline for a message.
type Analyzer struct {
	classifier Classifier
	alerts     AlertChecker
	context    *ContextAggregator
	logger     *zap.Logger
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(classifier Classifier, alerts AlertChecker, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		classifier: classifier,
		alerts:     alerts,
		context:    NewContextAggregator(classifier),
		logger:     logger,
	}
}

// Analyze classifies text, folds in the risk of the preceding user messages
// in history (only the trailing window is used) and evaluates priority and
// alert. It performs no persistence.
func (a *Analyzer) Analyze(ctx context.Context, text string, history []string) (Result, error) {
	var (
		emotion, style         Label
		emotionDist, styleDist []Label
		snapshot               ContextSnapshot
	)
	hasContext := len(history) > 0

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		emotion, err = a.classifier.ClassifyEmotion(gctx, text)
		if err != nil {
			return fmt.Errorf("classify emotion: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		emotionDist, err = a.classifier.EmotionDistribution(gctx, text)
		if err != nil {
			return fmt.Errorf("emotion distribution: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		style, err = a.classifier.ClassifyStyle(gctx, text)
		if err != nil {
			return fmt.Errorf("classify style: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		styleDist, err = a.classifier.StyleDistribution(gctx, text)
		if err != nil {
			return fmt.Errorf("style distribution: %w", err)
		}
		return nil
	})
	if hasContext {
		g.Go(func() error {
			var err error
			snapshot, err = a.context.Aggregate(gctx, history)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	alert, reason, err := a.alerts.CheckCombinedAlert(ctx, emotion.Name, emotion.Score, style.Name, style.Score)
	if err != nil {
		return Result{}, fmt.Errorf("combined alert: %w", err)
	}

	contextRisk := ContextNormal
	if hasContext {
		contextRisk = snapshot.RiskLevel
	}

	result := Result{
		Emotion:             emotion.Name,
		EmotionScore:        emotion.Score,
		EmotionDistribution: emotionDist,
		Style:               style.Name,
		StyleScore:          style.Score,
		StyleDistribution:   styleDist,
		Priority:            EvaluatePriority(emotion.Name, emotion.Score, style.Name, style.Score, contextRisk),
		Alert:               alert,
	}
	if alert && reason != "" {
		result.AlertReason = &reason
	}
	if hasContext {
		result.ContextRisk = contextRisk
		result.Context = &snapshot
	}

	a.logger.Debug("message analyzed",
		zap.String("emotion", result.Emotion),
		zap.Float64("emotion_score", result.EmotionScore),
		zap.String("style", result.Style),
		zap.Float64("style_score", result.StyleScore),
		zap.String("priority", string(result.Priority)),
		zap.Bool("alert", result.Alert),
		zap.String("context_risk", string(contextRisk)),
	)
	return result, nil
}
