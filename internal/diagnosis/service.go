// Package diagnosis classifies a chest X-ray as NORMAL or PNEUMONIA using an
// injected classifier.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime"
	"strings"
	"time"

	"github.com/Skufu/pneumoscan/internal/model"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyImage        = errors.New("image is empty")
	ErrUndecodableImage  = errors.New("image could not be decoded")
	ErrModelUnavailable  = errors.New("inference unavailable: model not loaded")
	ErrInferenceFailed   = errors.New("inference failed")
)

// AcceptedContentTypes are the upload types the service will decode.
var AcceptedContentTypes = []string{"image/jpeg", "image/png", "image/jpg"}

// Predictor runs the classifier on one NHWC tensor of shape (1, InputSize,
// InputSize, Channels) and returns one raw score per label in model.Labels order.
type Predictor interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

// OutputKind tells the service whether the predictor's scores still need softmax.
type OutputKind string

const (
	OutputLogits        OutputKind = "logits"
	OutputProbabilities OutputKind = "probabilities"
)

// ParseOutputKind accepts "logits" or "probabilities".
func ParseOutputKind(s string) (OutputKind, error) {
	switch OutputKind(strings.ToLower(strings.TrimSpace(s))) {
	case OutputLogits:
		return OutputLogits, nil
	case OutputProbabilities:
		return OutputProbabilities, nil
	default:
		return "", fmt.Errorf("unknown model output kind %q", s)
	}
}

// Observer receives inference timings. metrics.Metrics satisfies it.
type Observer interface {
	ObserveInference(d time.Duration, err error)
}

type Result struct {
	Label         model.Diagnosis     `json:"diagnosis"`
	Confidence    float64             `json:"confidence"`
	Probabilities model.Probabilities `json:"probabilities"`
}

type Service struct {
	predictor Predictor
	output    OutputKind
	observer  Observer
}

// NewService wraps predictor. A nil predictor yields a service that reports
// ErrModelUnavailable for every request.
func NewService(predictor Predictor, output OutputKind, observer Observer) *Service {
	if output == "" {
		output = OutputProbabilities
	}
	return &Service{predictor: predictor, output: output, observer: observer}
}

// Ready reports whether a classifier is loaded.
func (s *Service) Ready() bool {
	return s.predictor != nil
}

// Diagnose decodes image, runs the classifier and picks the most probable label.
func (s *Service) Diagnose(ctx context.Context, image []byte, contentType string) (Result, error) {
	if !s.Ready() {
		return Result{}, ErrModelUnavailable
	}
	if !IsAcceptedContentType(contentType) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}
	if len(image) == 0 {
		return Result{}, ErrEmptyImage
	}

	tensor, err := ImageToTensor(image)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	scores, err := s.predictor.Predict(ctx, tensor)
	if s.observer != nil {
		s.observer.ObserveInference(time.Since(start), err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}

	return s.interpret(scores)
}

func (s *Service) interpret(scores []float32) (Result, error) {
	if len(scores) != len(model.Labels) {
		return Result{}, fmt.Errorf("%w: expected %d scores, got %d", ErrInferenceFailed, len(model.Labels), len(scores))
	}

	var probs []float64
	var err error
	if s.output == OutputLogits {
		probs = Softmax(scores)
	} else {
		probs, err = normalize(scores)
		if err != nil {
			return Result{}, err
		}
	}

	idx := argmax(probs)
	return Result{
		Label:      model.Labels[idx],
		Confidence: RoundConfidence(probs[idx]),
		Probabilities: model.Probabilities{
			Normal:    probs[0],
			Pneumonia: probs[1],
		},
	}, nil
}

// IsAcceptedContentType ignores media type parameters and case.
func IsAcceptedContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, accepted := range AcceptedContentTypes {
		if mediaType == accepted {
			return true
		}
	}
	return false
}

// Softmax converts raw scores to probabilities. Shifting by the max keeps exp finite.
func Softmax(scores []float32) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxScore := float64(scores[0])
	for _, s := range scores[1:] {
		maxScore = math.Max(maxScore, float64(s))
	}
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(float64(s) - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// normalize validates an already-softmaxed vector and rescales it to sum to 1
// in float64.
func normalize(scores []float32) ([]float64, error) {
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: invalid probability %v", ErrInferenceFailed, s)
		}
		out[i] = v
		sum += v
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: probabilities sum to zero", ErrInferenceFailed)
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

// argmax returns the first index of the largest value.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// RoundConfidence turns a probability into a percentage with two decimals.
func RoundConfidence(p float64) float64 {
	return math.Round(p*100*100) / 100
}
