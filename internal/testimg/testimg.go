// Package testimg builds small synthetic frames for tests.
package testimg

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Solid returns a w x h image filled with c
func Solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// Pattern returns a black and white frame whose average hash differs per kind:
// 0 = left half white, 1 = top half white, 2 = checkerboard, 3 = diagonal
func Pattern(kind, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	cell := size / 8
	if cell == 0 {
		cell = 1
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var white bool
			switch kind % 4 {
			case 0:
				white = x < size/2
			case 1:
				white = y < size/2
			case 2:
				white = (x/cell+y/cell)%2 == 0
			case 3:
				white = x > y
			}
			c := color.NRGBA{A: 255}
			if white {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// PNG encodes img, panicking on failure
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
