// Package tflite runs the pneumonia classifier with the TensorFlow Lite C runtime.
// It needs cgo and libtensorflowlite_c at build and run time.
package tflite

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"go.uber.org/zap"

	"github.com/Skufu/pneumoscan/internal/diagnosis"
	"github.com/Skufu/pneumoscan/internal/model"
)

// Predictor owns one interpreter. Invoke is not reentrant, so calls are serialised.
type Predictor struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	path        string
}

// Load reads a .tflite file and prepares an interpreter for 1x224x224x3 float32
// input and 2 float32 outputs. threads <= 0 uses every CPU.
func Load(path string, threads int, logger *zap.Logger) (*Predictor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	m := tflite.NewModelFromFile(path)
	if m == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model from %s", path)
	}

	if threads <= 0 || threads > runtime.NumCPU() {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		logger.Error("tflite error", zap.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(m, options)
	if interpreter == nil {
		options.Delete()
		m.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		m.Delete()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	p := &Predictor{model: m, options: options, interpreter: interpreter, path: path}
	if err := p.checkShapes(); err != nil {
		p.Close()
		return nil, err
	}

	logger.Info("classifier model loaded",
		zap.String("path", path),
		zap.Int("threads", threads),
		zap.Duration("load_time", time.Since(start)))
	return p, nil
}

func (p *Predictor) checkShapes() error {
	in := p.interpreter.GetInputTensor(0)
	if in == nil {
		return fmt.Errorf("cannot get input tensor")
	}
	if in.NumDims() != 4 || in.Dim(1) != diagnosis.InputSize || in.Dim(2) != diagnosis.InputSize || in.Dim(3) != diagnosis.Channels {
		return fmt.Errorf("unexpected input shape: want [1 %d %d %d]", diagnosis.InputSize, diagnosis.InputSize, diagnosis.Channels)
	}

	out := p.interpreter.GetOutputTensor(0)
	if out == nil {
		return fmt.Errorf("cannot get output tensor")
	}
	if n := out.Dim(out.NumDims() - 1); n != len(model.Labels) {
		return fmt.Errorf("unexpected output size %d, want %d", n, len(model.Labels))
	}
	return nil
}

// Predict copies input into the interpreter, invokes it and returns the raw
// output scores. After Close it returns diagnosis.ErrModelUnavailable.
func (p *Predictor) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := diagnosis.InputSize * diagnosis.InputSize * diagnosis.Channels
	if len(input) != want {
		return nil, fmt.Errorf("input has %d values, want %d", len(input), want)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interpreter == nil {
		return nil, diagnosis.ErrModelUnavailable
	}

	in := p.interpreter.GetInputTensor(0)
	if in == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(in.Float32s(), input)

	if status := p.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	out := p.interpreter.GetOutputTensor(0)
	scores := make([]float32, out.Dim(out.NumDims()-1))
	copy(scores, out.Float32s())
	return scores, nil
}

// Close releases the interpreter and model.
func (p *Predictor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interpreter != nil {
		p.interpreter.Delete()
		p.interpreter = nil
	}
	if p.options != nil {
		p.options.Delete()
		p.options = nil
	}
	if p.model != nil {
		p.model.Delete()
		p.model = nil
	}
}

func (p *Predictor) String() string {
	return "tflite:" + p.path
}
