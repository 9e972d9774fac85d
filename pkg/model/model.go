package model

import (
	"errors"
	"fmt"
	"maps"
)

// Kind identifies which widget renders a node and which handles it carries.
type Kind string

const (
	KindGenerate Kind = "generate" // Text prompt -> image
	KindUpload   Kind = "upload"   // Local file -> image
	KindPrompt   Kind = "prompt"   // Prompt + context -> refined prompt
	KindOutput   Kind = "output"   // Blends every connected image; the only sink
)

// Kinds lists every kind in toolbar order.
var Kinds = []Kind{KindGenerate, KindUpload, KindPrompt, KindOutput}

var ErrUnknownKind = errors.New("model: unknown node kind")

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindGenerate, KindUpload, KindPrompt, KindOutput:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// HasInput returns true if connections may end at nodes of this kind.
func (k Kind) HasInput() bool {
	switch k {
	case KindGenerate:
		return false
	case KindUpload, KindPrompt, KindOutput:
		return true
	}
	return false
}

// HasOutput returns true if connections may start at nodes of this kind.
func (k Kind) HasOutput() bool {
	switch k {
	case KindGenerate, KindUpload, KindPrompt:
		return true
	case KindOutput:
		return false
	}
	return false
}

// NodeData is the sparse, kind-dependent payload of a node.
// A nil field means "not set"; Merge only copies fields that are set.
type NodeData struct {
	Prompt        *string `json:"prompt,omitempty"`
	Context       *string `json:"context,omitempty"`
	RefinedPrompt *string `json:"refinedPrompt,omitempty"`
	Image         *string `json:"image,omitempty"`        // Inline data URI
	Instructions  *string `json:"instructions,omitempty"` // Blending instructions (output)
	IsProcessing  *bool   `json:"isProcessing,omitempty"`

	// InputStates snapshots each contributing input's image at the last
	// successful blend, keyed by upstream node id (output only).
	InputStates map[NodeID]string `json:"inputStates,omitempty"`
}

// String returns a pointer to s, for building NodeData patches.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building NodeData patches.
func Bool(b bool) *bool { return &b }

// Merge copies every set field of patch into d.
func (d *NodeData) Merge(patch NodeData) {
	if patch.Prompt != nil {
		d.Prompt = String(*patch.Prompt)
	}
	if patch.Context != nil {
		d.Context = String(*patch.Context)
	}
	if patch.RefinedPrompt != nil {
		d.RefinedPrompt = String(*patch.RefinedPrompt)
	}
	if patch.Image != nil {
		d.Image = String(*patch.Image)
	}
	if patch.Instructions != nil {
		d.Instructions = String(*patch.Instructions)
	}
	if patch.IsProcessing != nil {
		d.IsProcessing = Bool(*patch.IsProcessing)
	}
	if patch.InputStates != nil {
		d.InputStates = maps.Clone(patch.InputStates)
	}
}

// Clone returns a deep copy of d.
func (d NodeData) Clone() NodeData {
	var c NodeData
	c.Merge(d)
	return c
}

// PromptText returns the prompt or "".
func (d NodeData) PromptText() string { return deref(d.Prompt) }

// ContextText returns the context or "".
func (d NodeData) ContextText() string { return deref(d.Context) }

// ImageURI returns the image payload or "".
func (d NodeData) ImageURI() string { return deref(d.Image) }

// InstructionsText returns the blending instructions or "".
func (d NodeData) InstructionsText() string { return deref(d.Instructions) }

// HasImage returns true if the node currently holds an image payload.
func (d NodeData) HasImage() bool { return d.Image != nil && *d.Image != "" }

// Processing returns true while an external call is in flight for the node.
func (d NodeData) Processing() bool { return d.IsProcessing != nil && *d.IsProcessing }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
