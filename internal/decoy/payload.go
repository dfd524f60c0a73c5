package decoy

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math/rand/v2"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PayloadCreator writes decoy content to a path that must not exist yet.
type PayloadCreator interface {
	Create(ctx context.Context, path string) error
}

// PayloadFunc adapts a function to PayloadCreator.
type PayloadFunc func(ctx context.Context, path string) error

// Create calls f.
func (f PayloadFunc) Create(ctx context.Context, path string) error { return f(ctx, path) }

const (
	defaultImageSize    = 200
	defaultJPEGQuality  = 85
	defaultCaption      = "This is a secure image"
	noisePixelsPerImage = 600
)

// JPEGPayload renders a small captioned placeholder photo. Every image gets a
// random banner colour and pixel noise so no two decoys share a digest.
type JPEGPayload struct {
	Width   int
	Height  int
	Quality int
	Caption string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJPEGPayload returns a 200x200 captioned JPEG payload.
func NewJPEGPayload() *JPEGPayload {
	return &JPEGPayload{
		Width:   defaultImageSize,
		Height:  defaultImageSize,
		Quality: defaultJPEGQuality,
		Caption: defaultCaption,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Create renders the image and writes it to path. The file is created
// exclusively; an existing file is never overwritten. A partially written
// file is removed on failure.
func (p *JPEGPayload) Create(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img := p.render()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: p.Quality}); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("sync payload: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close payload: %w", err)
	}
	return nil
}

func (p *JPEGPayload) render() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	width, height := p.Width, p.Height
	if width <= 0 {
		width = defaultImageSize
	}
	if height <= 0 {
		height = defaultImageSize
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	banner := color.RGBA{
		R: uint8(160 + p.rng.IntN(96)),
		G: uint8(160 + p.rng.IntN(96)),
		B: uint8(160 + p.rng.IntN(96)),
		A: 0xff,
	}
	stripe := image.Rect(0, height-height/6, width, height)
	draw.Draw(img, stripe, &image.Uniform{C: banner}, image.Point{}, draw.Src)

	for range noisePixelsPerImage {
		shade := uint8(200 + p.rng.IntN(56))
		img.SetRGBA(p.rng.IntN(width), p.rng.IntN(height), color.RGBA{R: shade, G: shade, B: shade, A: 0xff})
	}

	if p.Caption != "" {
		face := basicfont.Face7x13
		drawer := font.Drawer{
			Dst:  img,
			Src:  image.Black,
			Face: face,
			Dot:  fixed.P(10, 10+face.Ascent),
		}
		drawer.DrawString(p.Caption)
	}
	return img
}
