package tflite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/pneumoscan/internal/diagnosis"
)

func TestLoadMissingFile(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.tflite"), 1, nil)
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestPredictAfterClose(t *testing.T) {
	p := &Predictor{path: "closed.tflite"}
	p.Close()

	input := make([]float32, diagnosis.InputSize*diagnosis.InputSize*diagnosis.Channels)
	var (
		scores []float32
		err    error
	)
	require.NotPanics(t, func() {
		scores, err = p.Predict(context.Background(), input)
	})
	assert.ErrorIs(t, err, diagnosis.ErrModelUnavailable)
	assert.Nil(t, scores)
}
