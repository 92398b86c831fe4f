package diagnosis

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/pneumoscan/internal/model"
)

type fakePredictor struct {
	scores []float32
	err    error
	input  []float32
}

func (f *fakePredictor) Predict(_ context.Context, input []float32) ([]float32, error) {
	f.input = input
	return f.scores, f.err
}

type countingObserver struct {
	calls int
	err   error
}

func (c *countingObserver) ObserveInference(_ time.Duration, err error) {
	c.calls++
	c.err = err
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDiagnose_Probabilities(t *testing.T) {
	pred := &fakePredictor{scores: []float32{0.1, 0.9}}
	obs := &countingObserver{}
	svc := NewService(pred, OutputProbabilities, obs)

	res, err := svc.Diagnose(context.Background(), solidPNG(t, 300, 200, color.Gray{Y: 120}), "image/png")
	require.NoError(t, err)

	assert.Equal(t, model.DiagnosisPneumonia, res.Label)
	assert.InDelta(t, 90.0, res.Confidence, 1e-9)
	assert.InDelta(t, 1.0, res.Probabilities.Normal+res.Probabilities.Pneumonia, 1e-6)
	assert.Len(t, pred.input, InputSize*InputSize*Channels)
	assert.Equal(t, 1, obs.calls)
}

func TestDiagnose_LogitsAppliesSoftmaxOnce(t *testing.T) {
	pred := &fakePredictor{scores: []float32{2.0, 0.5}}
	svc := NewService(pred, OutputLogits, nil)

	res, err := svc.Diagnose(context.Background(), solidPNG(t, 50, 50, color.White), "image/png; charset=binary")
	require.NoError(t, err)

	want := 1 / (1 + math.Exp(-1.5))
	assert.Equal(t, model.DiagnosisNormal, res.Label)
	assert.InDelta(t, want, res.Probabilities.Normal, 1e-9)
	assert.InDelta(t, math.Round(want*10000)/100, res.Confidence, 1e-9)
}

func TestDiagnose_ConfidenceMatchesMaxProbability(t *testing.T) {
	img := solidPNG(t, 10, 10, color.Black)
	for _, scores := range [][]float32{{0.3, 0.7}, {0.55, 0.45}, {0.123456, 0.876544}, {0.5, 0.5}} {
		svc := NewService(&fakePredictor{scores: scores}, OutputProbabilities, nil)
		res, err := svc.Diagnose(context.Background(), img, "image/png")
		require.NoError(t, err)

		best := math.Max(res.Probabilities.Normal, res.Probabilities.Pneumonia)
		assert.Equal(t, math.Round(best*100*100)/100, res.Confidence)
		assert.InDelta(t, 1.0, res.Probabilities.Normal+res.Probabilities.Pneumonia, 1e-6)
		assert.GreaterOrEqual(t, res.Probabilities.Normal, 0.0)
		assert.GreaterOrEqual(t, res.Probabilities.Pneumonia, 0.0)
	}
}

func TestDiagnose_Errors(t *testing.T) {
	img := solidPNG(t, 8, 8, color.White)

	t.Run("model unavailable", func(t *testing.T) {
		_, err := NewService(nil, OutputProbabilities, nil).Diagnose(context.Background(), img, "image/png")
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := NewService(&fakePredictor{scores: []float32{1, 0}}, "", nil).Diagnose(context.Background(), img, "image/gif")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewService(&fakePredictor{scores: []float32{1, 0}}, "", nil).Diagnose(context.Background(), nil, "image/png")
		assert.ErrorIs(t, err, ErrEmptyImage)
	})

	t.Run("undecodable", func(t *testing.T) {
		_, err := NewService(&fakePredictor{scores: []float32{1, 0}}, "", nil).Diagnose(context.Background(), []byte("not an image"), "image/png")
		assert.ErrorIs(t, err, ErrUndecodableImage)
	})

	t.Run("predictor failure", func(t *testing.T) {
		obs := &countingObserver{}
		_, err := NewService(&fakePredictor{err: errors.New("boom")}, "", obs).Diagnose(context.Background(), img, "image/png")
		assert.ErrorIs(t, err, ErrInferenceFailed)
		assert.Error(t, obs.err)
	})

	t.Run("wrong score count", func(t *testing.T) {
		_, err := NewService(&fakePredictor{scores: []float32{1, 0, 0}}, "", nil).Diagnose(context.Background(), img, "image/png")
		assert.ErrorIs(t, err, ErrInferenceFailed)
	})

	t.Run("negative probability", func(t *testing.T) {
		_, err := NewService(&fakePredictor{scores: []float32{-0.2, 1.2}}, OutputProbabilities, nil).Diagnose(context.Background(), img, "image/png")
		assert.ErrorIs(t, err, ErrInferenceFailed)
	})
}

func TestIsAcceptedContentType(t *testing.T) {
	assert.True(t, IsAcceptedContentType("image/jpeg"))
	assert.True(t, IsAcceptedContentType("image/jpg"))
	assert.True(t, IsAcceptedContentType("IMAGE/PNG"))
	assert.False(t, IsAcceptedContentType("image/webp"))
	assert.False(t, IsAcceptedContentType(""))
	assert.False(t, IsAcceptedContentType("application/octet-stream"))
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float32{1000, 1000})
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 0.5, p[1], 1e-12)

	p = Softmax([]float32{-3, 4})
	assert.InDelta(t, 1.0, p[0]+p[1], 1e-12)
	assert.Greater(t, p[1], p[0])
}

func TestArgmaxTieKeepsLabelOrder(t *testing.T) {
	assert.Equal(t, 0, argmax([]float64{0.5, 0.5}))
}

func TestRoundConfidence(t *testing.T) {
	assert.Equal(t, 87.65, RoundConfidence(0.876544))
	assert.Equal(t, 100.0, RoundConfidence(1))
	assert.Equal(t, 50.0, RoundConfidence(0.5))
}

func TestImageToTensor(t *testing.T) {
	tensor, err := ImageToTensor(solidPNG(t, 640, 480, color.RGBA{R: 200, G: 100, B: 50, A: 255}))
	require.NoError(t, err)
	require.Len(t, tensor, InputSize*InputSize*Channels)

	for _, i := range []int{0, len(tensor) / 2 / Channels * Channels, len(tensor) - Channels} {
		assert.InDelta(t, 200, tensor[i], 1)
		assert.InDelta(t, 100, tensor[i+1], 1)
		assert.InDelta(t, 50, tensor[i+2], 1)
	}
}

func TestImageToTensor_DropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	tensor, err := ImageToTensor(buf.Bytes())
	require.NoError(t, err)
	assert.InDelta(t, 255, tensor[0], 1)
	assert.InDelta(t, 255, tensor[len(tensor)-1], 1)
}

// pngHeader returns a PNG whose IHDR declares w x h pixels followed by a
// truncated body. Only the header is needed to read the dimensions.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestImageToTensor_RejectsOversizedDimensions(t *testing.T) {
	data := pngHeader(12000, 12000)
	require.Less(t, len(data), 100)

	tensor, err := ImageToTensor(data)
	assert.ErrorIs(t, err, ErrUndecodableImage)
	assert.Nil(t, tensor)
}

func TestDiagnose_OversizedImageSkipsInference(t *testing.T) {
	pred := &fakePredictor{scores: []float32{0.5, 0.5}}
	svc := NewService(pred, OutputProbabilities, nil)

	_, err := svc.Diagnose(context.Background(), pngHeader(20000, 5000), "image/png")
	assert.ErrorIs(t, err, ErrUndecodableImage)
	assert.Nil(t, pred.input)
}

func TestImageToTensor_KeepsColourUnderTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 40, G: 160, B: 90, A: 10})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	tensor, err := ImageToTensor(buf.Bytes())
	require.NoError(t, err)
	mid := (InputSize/2*InputSize + InputSize/2) * Channels
	assert.InDelta(t, 40, tensor[mid], 1)
	assert.InDelta(t, 160, tensor[mid+1], 1)
	assert.InDelta(t, 90, tensor[mid+2], 1)
}

func TestParseOutputKind(t *testing.T) {
	k, err := ParseOutputKind(" Logits ")
	require.NoError(t, err)
	assert.Equal(t, OutputLogits, k)

	_, err = ParseOutputKind("sigmoid")
	assert.Error(t, err)
}
