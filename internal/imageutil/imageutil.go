// Package imageutil converts between on-the-wire image encodings and the
// raw RGB buffers the prediction and rendering pipeline works in.
package imageutil

import (
	"fmt"
	"image"
	"image/png"
	"io"

	// register decoders for the upload formats we accept
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// RGBImage is a tightly packed 8-bit RGB pixel buffer.
type RGBImage struct {
	Pixels []uint8 // 3 bytes per pixel, row major
	Width  int
	Height int
}

// Decode reads any registered image format and converts it to 8-bit RGB,
// discarding alpha.
func Decode(r io.Reader) (*RGBImage, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}

	out := &RGBImage{
		Pixels: make([]uint8, 3*w*h),
		Width:  w,
		Height: h,
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			out.Pixels[i] = uint8(r16 >> 8)
			out.Pixels[i+1] = uint8(g16 >> 8)
			out.Pixels[i+2] = uint8(b16 >> 8)
			i += 3
		}
	}
	return out, nil
}

// FrameToImage converts a float color buffer (3 floats per pixel in [0, 1],
// row major) into an 8-bit RGBA image. Values outside [0, 1] are clamped.
func FrameToImage(color []float32, width, height int) (*image.RGBA, error) {
	if len(color) != 3*width*height {
		return nil, fmt.Errorf("color buffer length %d, want %d for %dx%d", len(color), 3*width*height, width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := 3 * (y*width + x)
			o := img.PixOffset(x, y)
			img.Pix[o] = floatToByte(color[i])
			img.Pix[o+1] = floatToByte(color[i+1])
			img.Pix[o+2] = floatToByte(color[i+2])
			img.Pix[o+3] = 0xff
		}
	}
	return img, nil
}

// FrameToRGB24 converts a float color buffer into tightly packed 8-bit RGB
// bytes, the layout the video encoder consumes. Values outside [0, 1] are
// clamped.
func FrameToRGB24(color []float32, width, height int) ([]byte, error) {
	if len(color) != 3*width*height {
		return nil, fmt.Errorf("color buffer length %d, want %d for %dx%d", len(color), 3*width*height, width, height)
	}
	out := make([]byte, len(color))
	for i, v := range color {
		out[i] = floatToByte(v)
	}
	return out, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func floatToByte(v float32) uint8 {
	scaled := v * 255.0
	if scaled <= 0 {
		return 0
	}
	if scaled >= 255 {
		return 255
	}
	return uint8(scaled + 0.5)
}
