// Package actions implements the node widget operations: generate, edit,
// refine, blend, upload and download. Backend calls run without holding any
// editor lock; the per-node processing flag is the only exclusion.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ritzau/node-composer/pkg/genai"
	"github.com/ritzau/node-composer/pkg/graph"
	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/logging"
	"github.com/ritzau/node-composer/pkg/model"
)

var (
	ErrBusy            = errors.New("actions: node is already processing")
	ErrStale           = errors.New("actions: output is stale")
	ErrWrongKind       = errors.New("actions: operation not supported by node kind")
	ErrPromptRequired  = errors.New("actions: prompt required")
	ErrImageRequired   = errors.New("actions: image required")
	ErrNotEnoughInputs = fmt.Errorf("actions: %w", genai.ErrNoBlendInputs)
	ErrUnreadableFile  = errors.New("actions: file is not a readable image")
)

// Graph is the part of the graph store the runner reads and writes.
type Graph interface {
	Node(id model.NodeID) (model.Node, bool)
	Inputs(id model.NodeID) []model.Node
	UpdateNodeData(id model.NodeID, patch model.NodeData) bool
}

// Notifier receives user-facing notices.
type Notifier interface {
	Notify(ctx context.Context, n model.Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n model.Notice)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n model.Notice) { f(ctx, n) }

// Runner executes node actions against a store and a generation service.
type Runner struct {
	mu       sync.Mutex // Serialises the processing-flag check and set
	store    Graph
	svc      genai.Service
	notifier Notifier
	onChange func(model.NodeID)
	pick     func(n int) int
	wg       sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier sets where notices go.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithChangeHook is called after every data change the runner makes,
// outside any runner lock.
func WithChangeHook(f func(model.NodeID)) Option {
	return func(r *Runner) { r.onChange = f }
}

// WithPicker replaces the random source used by Randomize.
func WithPicker(pick func(n int) int) Option {
	return func(r *Runner) { r.pick = pick }
}

// NewRunner creates a runner.
func NewRunner(store Graph, svc genai.Service, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		svc:      svc,
		notifier: NotifierFunc(func(context.Context, model.Notice) {}),
		onChange: func(model.NodeID) {},
		pick:     graph.RandomPick,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// job is a prepared backend call. call returns the patch to apply on success.
type job struct {
	id   model.NodeID
	op   string
	fail model.Notice
	call func(ctx context.Context) (model.NodeData, error)
}

// Generate creates an image from the node's prompt and waits for the result.
func (r *Runner) Generate(ctx context.Context, id model.NodeID) error {
	j, err := r.generateJob(ctx, id)
	if err != nil {
		return err
	}
	return r.do(ctx, j)
}

// StartGenerate checks preconditions, marks the node as processing and runs
// the call in the background.
func (r *Runner) StartGenerate(ctx context.Context, id model.NodeID) error {
	j, err := r.generateJob(ctx, id)
	if err != nil {
		return err
	}
	return r.spawn(ctx, j)
}

func (r *Runner) generateJob(ctx context.Context, id model.NodeID) (job, error) {
	n, err := r.node(id, model.KindGenerate)
	if err != nil {
		return job{}, err
	}
	prompt := n.Data.PromptText()
	if strings.TrimSpace(prompt) == "" {
		return job{}, r.reject(ctx, id, ErrPromptRequired, model.ErrorNotice("Error", "Please enter a prompt."))
	}

	return job{
		id:   id,
		op:   "generate",
		fail: model.ErrorNotice("Generation Failed", "Could not generate image. Please try again."),
		call: func(ctx context.Context) (model.NodeData, error) {
			res, err := r.svc.Generate(ctx, genai.GenerateRequest{Prompt: prompt})
			if err != nil {
				return model.NodeData{}, err
			}
			return model.NodeData{Image: model.String(res.Image)}, nil
		},
	}, nil
}

// Edit replaces the node's image with an edited copy.
func (r *Runner) Edit(ctx context.Context, id model.NodeID, prompt string) error {
	j, err := r.editJob(ctx, id, prompt)
	if err != nil {
		return err
	}
	return r.do(ctx, j)
}

// StartEdit is Edit in the background.
func (r *Runner) StartEdit(ctx context.Context, id model.NodeID, prompt string) error {
	j, err := r.editJob(ctx, id, prompt)
	if err != nil {
		return err
	}
	return r.spawn(ctx, j)
}

func (r *Runner) editJob(ctx context.Context, id model.NodeID, prompt string) (job, error) {
	n, err := r.node(id)
	if err != nil {
		return job{}, err
	}
	if !n.Data.HasImage() {
		return job{}, r.reject(ctx, id, ErrImageRequired, model.ErrorNotice("No image to edit", "Generate or upload an image first."))
	}
	if strings.TrimSpace(prompt) == "" {
		return job{}, r.reject(ctx, id, ErrPromptRequired, model.ErrorNotice("Error", "Please enter a prompt."))
	}

	image := n.Data.ImageURI()
	return job{
		id:   id,
		op:   "edit",
		fail: model.ErrorNotice("Editing Failed", "Could not edit image. Please try again."),
		call: func(ctx context.Context) (model.NodeData, error) {
			res, err := r.svc.Edit(ctx, genai.EditRequest{Image: image, Prompt: prompt})
			if err != nil {
				return model.NodeData{}, err
			}
			return model.NodeData{Image: model.String(res.Image)}, nil
		},
	}, nil
}

// Refine writes a refined version of the node's prompt.
func (r *Runner) Refine(ctx context.Context, id model.NodeID) error {
	j, err := r.refineJob(ctx, id)
	if err != nil {
		return err
	}
	return r.do(ctx, j)
}

// StartRefine is Refine in the background.
func (r *Runner) StartRefine(ctx context.Context, id model.NodeID) error {
	j, err := r.refineJob(ctx, id)
	if err != nil {
		return err
	}
	return r.spawn(ctx, j)
}

func (r *Runner) refineJob(ctx context.Context, id model.NodeID) (job, error) {
	n, err := r.node(id, model.KindPrompt)
	if err != nil {
		return job{}, err
	}
	req := genai.RefineRequest{Prompt: n.Data.PromptText(), Context: n.Data.ContextText()}
	if strings.TrimSpace(req.Prompt) == "" {
		return job{}, r.reject(ctx, id, ErrPromptRequired, model.ErrorNotice("Error", "Please enter an initial prompt."))
	}

	return job{
		id:   id,
		op:   "refine",
		fail: model.ErrorNotice("Refinement Failed", "Could not refine prompt. Please try again."),
		call: func(ctx context.Context) (model.NodeData, error) {
			res, err := r.svc.RefinePrompt(ctx, req)
			if err != nil {
				return model.NodeData{}, err
			}
			return model.NodeData{RefinedPrompt: model.String(res.RefinedPrompt)}, nil
		},
	}, nil
}

// Blend composites every connected input that holds an image. Inputs are
// resolved from the live graph at call time.
func (r *Runner) Blend(ctx context.Context, id model.NodeID) error {
	j, err := r.blendJob(ctx, id)
	if err != nil {
		return err
	}
	return r.do(ctx, j)
}

// StartBlend is Blend in the background.
func (r *Runner) StartBlend(ctx context.Context, id model.NodeID) error {
	j, err := r.blendJob(ctx, id)
	if err != nil {
		return err
	}
	return r.spawn(ctx, j)
}

func (r *Runner) blendJob(ctx context.Context, id model.NodeID) (job, error) {
	n, err := r.node(id, model.KindOutput)
	if err != nil {
		return job{}, err
	}

	req := genai.BlendRequest{Instructions: n.Data.InstructionsText()}
	if strings.TrimSpace(req.Instructions) == "" {
		req.Instructions = genai.DefaultInstructions
	}
	snapshot := make(map[model.NodeID]string)
	for _, in := range r.store.Inputs(id) {
		if !in.Data.HasImage() {
			continue
		}
		prompt := in.Data.PromptText()
		if prompt == "" {
			prompt = genai.DefaultInputPrompt
		}
		req.Images = append(req.Images, genai.BlendInput{Image: in.Data.ImageURI(), Prompt: prompt})
		snapshot[in.ID] = in.Data.ImageURI()
	}
	if err := genai.CheckBlend(req); err != nil {
		return job{}, r.reject(ctx, id, ErrNotEnoughInputs,
			model.ErrorNotice("Not enough inputs", "Connect at least one image node to blend."))
	}

	return job{
		id:   id,
		op:   "blend",
		fail: model.ErrorNotice("Blending Failed", "Could not blend images. Please try again."),
		call: func(ctx context.Context) (model.NodeData, error) {
			res, err := r.svc.Blend(ctx, req)
			if err != nil {
				return model.NodeData{}, err
			}
			return model.NodeData{Image: model.String(res.Image), InputStates: snapshot}, nil
		},
	}, nil
}

// Upload stores a local file as the node's image. No backend call is made.
func (r *Runner) Upload(ctx context.Context, id model.NodeID, filename string, data []byte) error {
	if _, err := r.node(id, model.KindUpload); err != nil {
		return err
	}

	uri, err := imageuri.FromBytes(data)
	if err != nil {
		logging.WarnContext(ctx, "Rejected upload", "nodeID", id, "file", filename, "error", err)
		return r.reject(ctx, id, fmt.Errorf("%w: %v", ErrUnreadableFile, err),
			model.ErrorNotice("Error", "Failed to read file."))
	}

	r.apply(id, model.NodeData{Image: model.String(uri), Prompt: model.String(filename)})
	logging.InfoContext(ctx, "Image uploaded", "nodeID", id, "file", filename, "bytes", len(data))
	return nil
}

// Download returns the node's image. A stale output cannot be downloaded
// until it is blended again.
func (r *Runner) Download(ctx context.Context, id model.NodeID) (imageuri.Image, error) {
	n, err := r.node(id)
	if err != nil {
		return imageuri.Image{}, err
	}
	if !n.Data.HasImage() {
		return imageuri.Image{}, r.reject(ctx, id, ErrImageRequired, model.ErrorNotice("No image to download", ""))
	}
	if IsStale(n, r.store.Inputs(id)) {
		return imageuri.Image{}, r.reject(ctx, id, ErrStale,
			model.ErrorNotice("Inputs have changed", "Regenerate the output before downloading."))
	}
	return imageuri.Parse(n.Data.ImageURI())
}

// Randomize replaces the node's prompt or instructions with a sample.
func (r *Runner) Randomize(ctx context.Context, id model.NodeID) error {
	n, err := r.node(id, model.KindGenerate, model.KindOutput)
	if err != nil {
		return err
	}

	var patch model.NodeData
	switch n.Kind {
	case model.KindGenerate:
		patch.Prompt = model.String(graph.PickFrom(graph.SamplePrompts, r.pick))
	case model.KindOutput:
		patch.Instructions = model.String(graph.PickFrom(graph.SampleInstructions, r.pick))
	case model.KindUpload, model.KindPrompt:
	}
	r.apply(id, patch)
	logging.DebugContext(ctx, "Randomized node text", "nodeID", id)
	return nil
}

// Wait blocks until every background call has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// node fetches a live node and checks its kind against kinds, if any.
func (r *Runner) node(id model.NodeID, kinds ...model.Kind) (model.Node, error) {
	n, ok := r.store.Node(id)
	if !ok {
		return model.Node{}, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}
	if len(kinds) == 0 {
		return n, nil
	}
	for _, k := range kinds {
		if n.Kind == k {
			return n, nil
		}
	}
	return model.Node{}, fmt.Errorf("%w: %s node %d", ErrWrongKind, n.Kind, id)
}

// begin atomically claims the node's processing flag.
func (r *Runner) begin(id model.NodeID) error {
	r.mu.Lock()
	n, ok := r.store.Node(id)
	switch {
	case !ok:
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	case n.Data.Processing():
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrBusy, id)
	}
	r.store.UpdateNodeData(id, model.NodeData{IsProcessing: model.Bool(true)})
	r.mu.Unlock()

	r.onChange(id)
	return nil
}

func (r *Runner) do(ctx context.Context, j job) error {
	if err := r.begin(j.id); err != nil {
		return err
	}
	return r.execute(ctx, j)
}

func (r *Runner) spawn(ctx context.Context, j job) error {
	if err := r.begin(j.id); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.execute(ctx, j)
	}()
	return nil
}

// execute runs the call and applies its outcome. Failures clear the
// processing flag and leave the rest of the node's data untouched.
func (r *Runner) execute(ctx context.Context, j job) error {
	logging.InfoContext(ctx, "Backend call started", "op", j.op, "nodeID", j.id)

	patch, err := safeCall(ctx, j.call)
	if err != nil {
		logging.ErrorContext(ctx, "Backend call failed", "op", j.op, "nodeID", j.id, "error", err)
		r.apply(j.id, model.NodeData{IsProcessing: model.Bool(false)})
		r.notify(ctx, j.id, j.fail)
		return fmt.Errorf("%s node %d: %w", j.op, j.id, err)
	}

	patch.IsProcessing = model.Bool(false)
	r.apply(j.id, patch)
	logging.InfoContext(ctx, "Backend call finished", "op", j.op, "nodeID", j.id)
	return nil
}

func safeCall(ctx context.Context, call func(context.Context) (model.NodeData, error)) (patch model.NodeData, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return call(ctx)
}

// apply writes a patch. A node deleted in the meantime is not an error.
func (r *Runner) apply(id model.NodeID, patch model.NodeData) {
	if !r.store.UpdateNodeData(id, patch) {
		logging.Debug("Discarding result for deleted node", "nodeID", id)
		return
	}
	r.onChange(id)
}

func (r *Runner) reject(ctx context.Context, id model.NodeID, err error, n model.Notice) error {
	logging.DebugContext(ctx, "Action rejected", "nodeID", id, "error", err)
	r.notify(ctx, id, n)
	return err
}

func (r *Runner) notify(ctx context.Context, id model.NodeID, n model.Notice) {
	n.NodeID = id
	r.notifier.Notify(ctx, n)
}
