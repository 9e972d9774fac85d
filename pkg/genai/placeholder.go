package genai

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/ritzau/node-composer/pkg/imageuri"
)

// Placeholder is an offline Service that returns solid colour images derived
// from a hash of the request. The same request always yields the same image.
type Placeholder struct {
	Size int // Edge length in pixels
}

// NewPlaceholder returns a placeholder backend producing 64x64 images.
func NewPlaceholder() *Placeholder {
	return &Placeholder{Size: 64}
}

// Generate returns an image coloured by the prompt.
func (p *Placeholder) Generate(ctx context.Context, req GenerateRequest) (ImageResult, error) {
	return p.render(ctx, "generate", req.Prompt)
}

// Edit returns an image coloured by the source image and the prompt.
func (p *Placeholder) Edit(ctx context.Context, req EditRequest) (ImageResult, error) {
	if _, err := imageuri.Parse(req.Image); err != nil {
		return ImageResult{}, err
	}
	return p.render(ctx, "edit", req.Image, req.Prompt)
}

// Blend returns an image coloured by every input and the instructions.
func (p *Placeholder) Blend(ctx context.Context, req BlendRequest) (ImageResult, error) {
	if err := CheckBlend(req); err != nil {
		return ImageResult{}, err
	}
	keys := []string{req.Instructions}
	for _, in := range req.Images {
		keys = append(keys, in.Image, in.Prompt)
	}
	return p.render(ctx, "blend", keys...)
}

// RefinePrompt folds the context into the prompt.
func (p *Placeholder) RefinePrompt(ctx context.Context, req RefineRequest) (RefineResult, error) {
	if err := ctx.Err(); err != nil {
		return RefineResult{}, err
	}
	refined := strings.TrimSpace(req.Prompt)
	if c := strings.TrimSpace(req.Context); c != "" {
		refined += ", " + c
	}
	return RefineResult{RefinedPrompt: refined + ", highly detailed"}, nil
}

func (p *Placeholder) render(ctx context.Context, op string, keys ...string) (ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return ImageResult{}, err
	}

	h := fnv.New32a()
	h.Write([]byte(op))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
	}
	sum := h.Sum32()
	fill := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 255}

	size := p.Size
	if size <= 0 {
		size = 64
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ImageResult{}, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	return ImageResult{Image: imageuri.Encode("image/png", buf.Bytes())}, nil
}
