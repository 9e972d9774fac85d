package genai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	googleai "google.golang.org/genai"

	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/logging"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	Endpoint   string        `koanf:"endpoint"`   // Base URL, without the API version
	APIVersion string        `koanf:"apiversion"` // e.g. v1beta
	ImageModel string        `koanf:"imagemodel"`
	TextModel  string        `koanf:"textmodel"`
	APIKey     string        `koanf:"apikey"`
	Timeout    time.Duration `koanf:"timeout"` // Zero means no timeout
}

// DefaultGeminiConfig targets the public generative language API.
var DefaultGeminiConfig = GeminiConfig{
	Endpoint:   "https://generativelanguage.googleapis.com/",
	APIVersion: "v1beta",
	ImageModel: "gemini-2.5-flash-image-preview",
	TextModel:  "gemini-2.5-flash",
}

// Gemini implements Service with the Google Gen AI SDK.
type Gemini struct {
	cfg    GeminiConfig
	models *googleai.Models
}

// NewGemini creates a client for the Gemini API. A nil httpClient lets the
// SDK build its own.
func NewGemini(ctx context.Context, cfg GeminiConfig, httpClient *http.Client) (*Gemini, error) {
	opts := googleai.HTTPOptions{
		BaseURL:    cfg.Endpoint,
		APIVersion: cfg.APIVersion,
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		opts.Timeout = &timeout
	}

	client, err := googleai.NewClient(ctx, &googleai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     googleai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{cfg: cfg, models: client.Models}, nil
}

// Generate creates an image from a text prompt.
func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (ImageResult, error) {
	parts := []*googleai.Part{googleai.NewPartFromText("Generate an image of: " + req.Prompt)}
	return g.image(ctx, "generate", parts)
}

// Edit sends the image followed by the edit instructions.
func (g *Gemini) Edit(ctx context.Context, req EditRequest) (ImageResult, error) {
	img, err := imagePart(req.Image)
	if err != nil {
		return ImageResult{}, err
	}
	return g.image(ctx, "edit", []*googleai.Part{img, googleai.NewPartFromText(req.Prompt)})
}

// Blend sends every input image with its prompt, then the instructions.
func (g *Gemini) Blend(ctx context.Context, req BlendRequest) (ImageResult, error) {
	if err := CheckBlend(req); err != nil {
		return ImageResult{}, err
	}

	parts := []*googleai.Part{googleai.NewPartFromText("You are blending several images into one cohesive composite. " +
		"Each image is preceded by the prompt that describes it.")}
	for i, in := range req.Images {
		img, err := imagePart(in.Image)
		if err != nil {
			return ImageResult{}, fmt.Errorf("blend input %d: %w", i, err)
		}
		parts = append(parts, googleai.NewPartFromText(fmt.Sprintf("Image %d prompt: %s", i, in.Prompt)), img)
	}
	parts = append(parts, googleai.NewPartFromText("Blending instructions: "+req.Instructions+
		"\nCreate a single coherent, visually appealing image that blends the images above."))

	return g.image(ctx, "blend", parts)
}

// RefinePrompt asks the text model for an improved image prompt.
func (g *Gemini) RefinePrompt(ctx context.Context, req RefineRequest) (RefineResult, error) {
	var b strings.Builder
	b.WriteString("Rewrite the following image generation prompt so that it is vivid, specific and ")
	b.WriteString("well structured. Reply with the refined prompt only.\n\nPrompt: ")
	b.WriteString(req.Prompt)
	if req.Context != "" {
		b.WriteString("\nAdditional context: ")
		b.WriteString(req.Context)
	}

	resp, err := g.call(ctx, "refine", g.cfg.TextModel, []*googleai.Part{googleai.NewPartFromText(b.String())}, nil)
	if err != nil {
		return RefineResult{}, err
	}

	refined := strings.TrimSpace(resp.Text())
	if refined == "" {
		return RefineResult{}, ErrNoText
	}
	return RefineResult{RefinedPrompt: refined}, nil
}

func (g *Gemini) image(ctx context.Context, op string, parts []*googleai.Part) (ImageResult, error) {
	resp, err := g.call(ctx, op, g.cfg.ImageModel, parts, &googleai.GenerateContentConfig{
		ResponseModalities: []string{string(googleai.ModalityImage)},
	})
	if err != nil {
		return ImageResult{}, err
	}

	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return ImageResult{Image: imageuri.Encode(p.InlineData.MIMEType, p.InlineData.Data)}, nil
			}
		}
	}
	return ImageResult{}, fmt.Errorf("%s: %w", op, ErrNoImage)
}

func (g *Gemini) call(ctx context.Context, op, model string, parts []*googleai.Part, config *googleai.GenerateContentConfig) (*googleai.GenerateContentResponse, error) {
	contents := []*googleai.Content{googleai.NewContentFromParts(parts, googleai.RoleUser)}

	start := time.Now()
	logging.DebugContext(ctx, "Calling generation backend", "op", op, "model", model, "parts", len(parts))

	resp, err := g.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}

	logging.DebugContext(ctx, "Generation backend responded", "op", op, "duration", time.Since(start))
	return resp, nil
}

func imagePart(uri string) (*googleai.Part, error) {
	img, err := imageuri.Parse(uri)
	if err != nil {
		return nil, err
	}
	return googleai.NewPartFromBytes(img.Data, img.MIME), nil
}
