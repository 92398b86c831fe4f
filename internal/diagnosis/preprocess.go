package diagnosis

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	xdraw "golang.org/x/image/draw"
)

const (
	// InputSize is the classifier's fixed square input resolution.
	InputSize = 224
	Channels  = 3

	// MaxImagePixels bounds width*height of an upload before it is decoded.
	MaxImagePixels = 89_478_485
)

// ImageToTensor decodes a JPEG or PNG, drops any alpha channel, resizes to
// InputSize x InputSize and returns an NHWC float32 tensor with values in 0-255.
// Scaling to 0-1 happens inside the model.
func ImageToTensor(data []byte) ([]float32, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodableImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrUndecodableImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUndecodableImage, cfg.Width, cfg.Height, MaxImagePixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodableImage, err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrUndecodableImage)
	}

	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), opaque(src), src.Bounds(), xdraw.Src, nil)

	out := make([]float32, InputSize*InputSize*Channels)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			p := dst.PixOffset(x, y)
			base := (y*InputSize + x) * Channels
			out[base+0] = float32(dst.Pix[p+0])
			out[base+1] = float32(dst.Pix[p+1])
			out[base+2] = float32(dst.Pix[p+2])
		}
	}
	return out, nil
}

// opaqueView reads through to the wrapped image with alpha forced to fully
// opaque, keeping the stored colour channels (the same as discarding alpha).
// Pixels are converted on access so no full-resolution copy is made.
type opaqueView struct {
	image.Image
}

func (v opaqueView) ColorModel() color.Model { return color.NRGBAModel }

func (v opaqueView) At(x, y int) color.Color {
	c := color.NRGBAModel.Convert(v.Image.At(x, y)).(color.NRGBA)
	c.A = 0xff
	return c
}

func (v opaqueView) Opaque() bool { return true }

func opaque(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	return opaqueView{img}
}
