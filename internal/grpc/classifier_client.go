package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"tutor-chat-service/internal/analysis"
)

// Full method names of the inference service. Requests and responses are
// google.protobuf.Struct messages.
const (
	methodClassifyEmotion     = "/inference.v1.Classifier/ClassifyEmotion"
	methodEmotionDistribution = "/inference.v1.Classifier/EmotionDistribution"
	methodClassifyStyle       = "/inference.v1.Classifier/ClassifyStyle"
	methodStyleDistribution   = "/inference.v1.Classifier/StyleDistribution"
	methodCheckCombinedAlert  = "/inference.v1.Classifier/CheckCombinedAlert"
)

var errMalformedResponse = errors.New("malformed classifier response")

// ClassifierClient calls the ML inference service over gRPC.
type ClassifierClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewClassifierClient constructs the client. A zero timeout leaves the
// caller's deadline untouched.
func NewClassifierClient(conn grpc.ClientConnInterface, timeout time.Duration) *ClassifierClient {
	return &ClassifierClient{conn: conn, timeout: timeout}
}

var (
	_ analysis.Classifier   = (*ClassifierClient)(nil)
	_ analysis.AlertChecker = (*ClassifierClient)(nil)
)

// ClassifyEmotion returns the dominant emotion for text.
func (c *ClassifierClient) ClassifyEmotion(ctx context.Context, text string) (analysis.Label, error) {
	return c.label(ctx, methodClassifyEmotion, text)
}

// EmotionDistribution returns scores for every known emotion.
func (c *ClassifierClient) EmotionDistribution(ctx context.Context, text string) ([]analysis.Label, error) {
	return c.distribution(ctx, methodEmotionDistribution, text)
}

// ClassifyStyle returns the dominant communication style for text.
func (c *ClassifierClient) ClassifyStyle(ctx context.Context, text string) (analysis.Label, error) {
	return c.label(ctx, methodClassifyStyle, text)
}

// StyleDistribution returns scores for every known style.
func (c *ClassifierClient) StyleDistribution(ctx context.Context, text string) ([]analysis.Label, error) {
	return c.distribution(ctx, methodStyleDistribution, text)
}

// CheckCombinedAlert asks the inference service whether emotion and style
// together warrant a tutor alert.
func (c *ClassifierClient) CheckCombinedAlert(ctx context.Context, emotion string, emotionScore float64, style string, styleScore float64) (bool, string, error) {
	resp, err := c.invoke(ctx, methodCheckCombinedAlert, map[string]any{
		"emotion":       emotion,
		"emotion_score": emotionScore,
		"style":         style,
		"style_score":   styleScore,
	})
	if err != nil {
		return false, "", err
	}
	fields := resp.GetFields()
	alert, ok := fields["alert"]
	if !ok {
		return false, "", fmt.Errorf("%s: %w", methodCheckCombinedAlert, errMalformedResponse)
	}
	return alert.GetBoolValue(), fields["reason"].GetStringValue(), nil
}

func (c *ClassifierClient) label(ctx context.Context, method, text string) (analysis.Label, error) {
	resp, err := c.invoke(ctx, method, map[string]any{"text": text})
	if err != nil {
		return analysis.Label{}, err
	}
	label, ok := parseLabel(resp)
	if !ok {
		return analysis.Label{}, fmt.Errorf("%s: %w", method, errMalformedResponse)
	}
	return label, nil
}

func (c *ClassifierClient) distribution(ctx context.Context, method, text string) ([]analysis.Label, error) {
	resp, err := c.invoke(ctx, method, map[string]any{"text": text})
	if err != nil {
		return nil, err
	}
	values := resp.GetFields()["labels"].GetListValue().GetValues()
	labels := make([]analysis.Label, 0, len(values))
	for _, v := range values {
		label, ok := parseLabel(v.GetStructValue())
		if !ok {
			return nil, fmt.Errorf("%s: %w", method, errMalformedResponse)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

func (c *ClassifierClient) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func parseLabel(s *structpb.Struct) (analysis.Label, bool) {
	fields := s.GetFields()
	name, ok := fields["label"]
	if !ok || name.GetStringValue() == "" {
		return analysis.Label{}, false
	}
	return analysis.Label{Name: name.GetStringValue(), Score: fields["score"].GetNumberValue()}, true
}
