package model

import (
	"image"
	"strings"

	"github.com/nfnt/resize"
)

// DefaultImageSize is the square input resolution of the MobileNetV2 classifier.
const DefaultImageSize = 160

// Layout is the memory order of the model's input tensor.
type Layout string

const (
	LayoutNHWC Layout = "NHWC" // Keras default
	LayoutNCHW Layout = "NCHW"
)

func (l Layout) normalized() Layout {
	if strings.EqualFold(string(l), string(LayoutNCHW)) {
		return LayoutNCHW
	}
	return LayoutNHWC
}

// Normalize converts a frame into a (1, size, size, 3) float tensor with
// values in [0,1] (or (1, 3, size, size) for NCHW).
func Normalize(f *Frame, size int, layout Layout) ([]float32, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultImageSize
	}

	rgb := f.rgb()

	var pixels []float32
	if f.Width >= size && f.Height >= size {
		pixels = areaResize(rgb, f.Width, f.Height, size, size)
	} else {
		pixels = bilinearResize(rgb, f.Width, f.Height, size, size)
	}

	out := make([]float32, len(pixels))
	plane := size * size
	nchw := layout.normalized() == LayoutNCHW
	for p := 0; p < plane; p++ {
		for c := 0; c < 3; c++ {
			v := pixels[p*3+c] / 255
			if nchw {
				out[c*plane+p] = v
			} else {
				out[p*3+c] = v
			}
		}
	}
	return out, nil
}

type span struct {
	index  int
	weight float32
}

// areaSpans returns, for every destination index, the source indices it
// covers and the fraction of the destination cell each one contributes.
func areaSpans(src, dst int) [][]span {
	scale := float64(src) / float64(dst)
	spans := make([][]span, dst)
	for d := 0; d < dst; d++ {
		lo := float64(d) * scale
		hi := lo + scale
		for s := int(lo); s < src && float64(s) < hi; s++ {
			a := max(lo, float64(s))
			b := min(hi, float64(s+1))
			if b > a {
				spans[d] = append(spans[d], span{index: s, weight: float32((b - a) / scale)})
			}
		}
	}
	return spans
}

// areaResize downsamples packed RGB by averaging every source pixel that
// falls inside each destination pixel, weighted by overlap.
func areaResize(rgb []byte, sw, sh, dw, dh int) []float32 {
	xs := areaSpans(sw, dw)
	ys := areaSpans(sh, dh)
	out := make([]float32, dw*dh*3)
	for dy := 0; dy < dh; dy++ {
		for dx := 0; dx < dw; dx++ {
			var r, g, b float32
			for _, yspan := range ys[dy] {
				row := yspan.index * sw
				for _, xspan := range xs[dx] {
					w := yspan.weight * xspan.weight
					i := (row + xspan.index) * 3
					r += w * float32(rgb[i])
					g += w * float32(rgb[i+1])
					b += w * float32(rgb[i+2])
				}
			}
			o := (dy*dw + dx) * 3
			out[o], out[o+1], out[o+2] = r, g, b
		}
	}
	return out
}

// bilinearResize handles the upsampling case, where area averaging
// degenerates to interpolation anyway.
func bilinearResize(rgb []byte, sw, sh, dw, dh int) []float32 {
	src := image.NewRGBA(image.Rect(0, 0, sw, sh))
	for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
		src.Pix[j] = rgb[i]
		src.Pix[j+1] = rgb[i+1]
		src.Pix[j+2] = rgb[i+2]
		src.Pix[j+3] = 0xff
	}

	resized := resize.Resize(uint(dw), uint(dh), src, resize.Bilinear)
	bounds := resized.Bounds()

	out := make([]float32, dw*dh*3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			out[i] = float32(r >> 8)
			out[i+1] = float32(g >> 8)
			out[i+2] = float32(b >> 8)
			i += 3
		}
	}
	return out
}
