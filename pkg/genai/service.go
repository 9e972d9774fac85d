// Package genai is the boundary to the generative image backend. Calls are
// request/response with no partial results and no cancellation contract:
// callers own the context they pass in.
package genai

import (
	"context"
	"errors"
)

var (
	ErrNoBlendInputs = errors.New("genai: blend needs at least one input image")
	ErrNoImage       = errors.New("genai: backend returned no image")
	ErrNoText        = errors.New("genai: backend returned no text")
)

// GenerateRequest asks for a new image from a text prompt.
type GenerateRequest struct {
	Prompt string
}

// EditRequest asks for an edited copy of an image.
type EditRequest struct {
	Image  string // Data URI
	Prompt string
}

// BlendInput is one image contributing to a blend, with its descriptive prompt.
type BlendInput struct {
	Image  string // Data URI
	Prompt string
}

// BlendRequest asks for one composite of the ordered inputs.
type BlendRequest struct {
	Images       []BlendInput
	Instructions string
}

// RefineRequest asks for an improved prompt.
type RefineRequest struct {
	Prompt  string
	Context string // Optional
}

// ImageResult carries a generated image as a data URI.
type ImageResult struct {
	Image string
}

// RefineResult carries a refined prompt.
type RefineResult struct {
	RefinedPrompt string
}

// Service is the generation backend.
type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (ImageResult, error)
	Edit(ctx context.Context, req EditRequest) (ImageResult, error)
	Blend(ctx context.Context, req BlendRequest) (ImageResult, error)
	RefinePrompt(ctx context.Context, req RefineRequest) (RefineResult, error)
}

// Blend fallbacks used when the user leaves a field empty.
const (
	DefaultInstructions = "Blend the images together seamlessly."
	DefaultInputPrompt  = "user uploaded image"
)

// CheckBlend rejects a blend with no inputs before any call is made.
func CheckBlend(req BlendRequest) error {
	if len(req.Images) == 0 {
		return ErrNoBlendInputs
	}
	return nil
}
