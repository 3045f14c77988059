package model

import (
	"image"
	"image/color"
	"strings"
)

type ChannelOrder int

const (
	RGB ChannelOrder = iota // RGBA when there are 4 channels
	BGR                     // BGRA when there are 4 channels
)

// ParseChannelOrder accepts "rgb", "bgr", "rgba" and "bgra" (case insensitive).
func ParseChannelOrder(s string) (ChannelOrder, bool) {
	switch strings.ToLower(s) {
	case "", "rgb", "rgba":
		return RGB, true
	case "bgr", "bgra":
		return BGR, true
	}
	return RGB, false
}

func (o ChannelOrder) String() string {
	if o == BGR {
		return "bgr"
	}
	return "rgb"
}

// MaxDimension bounds the width and height of a frame.
const MaxDimension = 16384

// Frame is an 8-bit interleaved pixel buffer, as delivered by a camera or
// decoded from a file. Rows are tightly packed (stride = Width*Channels).
type Frame struct {
	Width    int
	Height   int
	Channels int
	Order    ChannelOrder
	Pix      []byte
}

func (f *Frame) validate() error {
	if f == nil {
		return preprocessErrorf("no image")
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return preprocessErrorf("unsupported channel count %d (want 1, 3 or 4)", f.Channels)
	}
	if f.Width <= 0 || f.Height <= 0 || f.Width > MaxDimension || f.Height > MaxDimension {
		return preprocessErrorf("invalid dimensions %dx%d (each must be 1 to %d)", f.Width, f.Height, MaxDimension)
	}
	if len(f.Pix) != f.Width*f.Height*f.Channels {
		return preprocessErrorf("pixel buffer has %d bytes, expected %d for %dx%dx%d",
			len(f.Pix), f.Width*f.Height*f.Channels, f.Width, f.Height, f.Channels)
	}
	return nil
}

// FrameFromImage copies a decoded image into a Frame. Grayscale images keep a
// single channel, images with transparency keep their alpha channel, and
// everything else becomes 3-channel RGB.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		f := &Frame{Width: w, Height: h, Channels: 1, Order: RGB, Pix: make([]byte, w*h)}
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(f.Pix[y*w:(y+1)*w], src.Pix[off:off+w])
		}
		return f
	case *image.NRGBA:
		f := &Frame{Width: w, Height: h, Channels: 4, Order: RGB, Pix: make([]byte, w*h*4)}
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(f.Pix[y*w*4:(y+1)*w*4], src.Pix[off:off+w*4])
		}
		return f
	}

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		f := &Frame{Width: w, Height: h, Channels: 3, Order: RGB, Pix: make([]byte, w*h*3)}
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				f.Pix[i] = uint8(r >> 8)
				f.Pix[i+1] = uint8(g >> 8)
				f.Pix[i+2] = uint8(bl >> 8)
				i += 3
			}
		}
		return f
	}

	f := &Frame{Width: w, Height: h, Channels: 4, Order: RGB, Pix: make([]byte, w*h*4)}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			f.Pix[i] = c.R
			f.Pix[i+1] = c.G
			f.Pix[i+2] = c.B
			f.Pix[i+3] = c.A
			i += 4
		}
	}
	return f
}

// Image converts the frame back into an image.Image with the channel order
// corrected, eg for writing to a JPEG file.
func (f *Frame) Image() (image.Image, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Channels {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, f.Pix)
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		rgb := f.rgb()
		for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
			img.Pix[j] = rgb[i]
			img.Pix[j+1] = rgb[i+1]
			img.Pix[j+2] = rgb[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	default:
		img := image.NewNRGBA(rect)
		copy(img.Pix, f.Pix)
		if f.Order == BGR {
			for i := 0; i < len(img.Pix); i += 4 {
				img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
			}
		}
		return img, nil
	}
}

// rgb returns a tightly packed 3-channel RGB copy of a valid frame.
// Gray is replicated, alpha is dropped.
func (f *Frame) rgb() []byte {
	n := f.Width * f.Height
	out := make([]byte, n*3)
	ri, bi := 0, 2
	if f.Order == BGR {
		ri, bi = 2, 0
	}
	for p := 0; p < n; p++ {
		o := p * 3
		switch f.Channels {
		case 1:
			v := f.Pix[p]
			out[o], out[o+1], out[o+2] = v, v, v
		default:
			s := p * f.Channels
			out[o] = f.Pix[s+ri]
			out[o+1] = f.Pix[s+1]
			out[o+2] = f.Pix[s+bi]
		}
	}
	return out
}
