package graph

import (
	"math/rand/v2"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/model"
)

// SamplePrompts seed new generate nodes and their randomize control.
var SamplePrompts = []string{
	"A mystical forest at twilight",
	"A futuristic cityscape on a distant planet",
	"An abstract painting representing the sound of jazz",
	"A lone astronaut discovering a glowing alien artifact",
	"A steampunk-inspired mechanical owl with intricate gears",
}

// SeedInstructions seed new output nodes, including the initial one.
var SeedInstructions = []string{
	"Blend the two images seamlessly.",
	"Combine the images in a surreal, dreamlike collage.",
	"Use the style of the first image and the subject of the second.",
	"Merge the inputs into a single, cohesive cyberpunk scene.",
	"Create a high-contrast, black and white composition from the inputs.",
}

// SampleInstructions are offered by an output node's randomize control.
var SampleInstructions = []string{
	"Blend the images into a surreal, dreamlike collage.",
	"Use the style of the first image and the subject of the second.",
	"Merge the inputs into a single, cohesive cyberpunk scene.",
	"Create a high-contrast, black and white composition from the inputs.",
	"Blend the images as if they were part of a double exposure photograph.",
	"Overlay the images with a watercolor texture.",
	"Combine the elements into a vintage travel poster.",
	"Merge the images into a pop-art style comic book panel.",
	"Create a fantasy landscape by combining the features of both images.",
	"Blend the images with a glitch art effect.",
	"Imagine the images are from the same sci-fi movie and combine them.",
	"Create a photorealistic composite of the two scenes.",
	"Turn the inputs into a single piece of abstract art.",
	"Fuse the images together with light leaks and lens flares.",
	"Reimagine the scene as an oil painting, combining elements from both images.",
	"Create a minimalist composition using only the key elements from each image.",
	"Blend the images with a gritty, dystopian atmosphere.",
	"Merge the inputs into a serene and peaceful nature scene.",
	"Combine the images in the style of a faded, old photograph.",
	"Create a whimsical and magical scene by merging the two inputs.",
}

// RandomPick returns a uniformly random index in [0, n).
func RandomPick(n int) int {
	return rand.IntN(n)
}

// PickFrom returns a random element of items using pick.
func PickFrom(items []string, pick func(n int) int) string {
	return items[pick(len(items))]
}

// DefaultData returns the initial data for a new node of the given kind.
func DefaultData(kind model.Kind, pick func(n int) int) model.NodeData {
	switch kind {
	case model.KindGenerate:
		return model.NodeData{Prompt: model.String(PickFrom(SamplePrompts, pick))}
	case model.KindOutput:
		return model.NodeData{Instructions: model.String(PickFrom(SeedInstructions, pick))}
	case model.KindUpload, model.KindPrompt:
		return model.NodeData{}
	}
	return model.NodeData{}
}

// Seed is a node to create when a fresh editor starts.
type Seed struct {
	Kind     model.Kind
	Position geom.Point
}

// InitialLayout is the starting graph: a generator and an upload feeding
// space for an output on the right.
var InitialLayout = []Seed{
	{Kind: model.KindGenerate, Position: geom.Point{X: 300, Y: 250}},
	{Kind: model.KindUpload, Position: geom.Point{X: 300, Y: 500}},
	{Kind: model.KindOutput, Position: geom.Point{X: 800, Y: 375}},
}

// Populate adds the seeds to the store in order and returns their ids.
func Populate(s *Store, seeds []Seed) ([]model.NodeID, error) {
	ids := make([]model.NodeID, 0, len(seeds))
	for _, seed := range seeds {
		id, err := s.AddNode(seed.Kind, seed.Position, model.NodeData{})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
