// Package editor owns one composer session: the graph, the view, the active
// gesture and the notice log. Every mutation republishes the scene.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/node-composer/pkg/actions"
	"github.com/ritzau/node-composer/pkg/genai"
	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/graph"
	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/interaction"
	"github.com/ritzau/node-composer/pkg/logging"
	"github.com/ritzau/node-composer/pkg/model"
	"github.com/ritzau/node-composer/pkg/pubsub"
	"github.com/ritzau/node-composer/pkg/render"
	"github.com/ritzau/node-composer/pkg/snapshot"
)

// ContentSize is the box around the initial nodes that Mount centres.
var ContentSize = geom.Size{Width: 800, Height: 600}

// DefaultViewport is assumed until the browser reports its size.
var DefaultViewport = geom.Size{Width: 1280, Height: 800}

// DefaultNoticeLimit bounds the notice log.
const DefaultNoticeLimit = 50

var ErrNoticeNotFound = errors.New("editor: notice not found")

// Editor serialises every session operation on one mutex. Backend calls run
// outside it; their completions re-enter through the runner's change hook.
type Editor struct {
	mu       sync.Mutex
	store    *graph.Store
	machine  *interaction.Machine
	runner   *actions.Runner
	pub      pubsub.Publisher
	layout   render.Layout
	viewport geom.Size
	mounted  bool
	last     *snapshot.Snapshot
	seqs     map[string]uint64 // Last pointer sequence number per client

	noticeMu    sync.Mutex
	notices     []model.Notice
	noticeLimit int
	now         func() time.Time
}

// Option configures an Editor.
type Option func(*options)

type options struct {
	layout      render.Layout
	limits      geom.Limits
	pick        func(n int) int
	noticeLimit int
	now         func() time.Time
}

// WithLayout sets the widget geometry.
func WithLayout(l render.Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithLimits sets the zoom limits.
func WithLimits(l geom.Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithPicker replaces the random source used for sample prompts.
func WithPicker(pick func(n int) int) Option {
	return func(o *options) { o.pick = pick }
}

// WithNoticeLimit sets how many notices are kept.
func WithNoticeLimit(n int) Option {
	return func(o *options) { o.noticeLimit = n }
}

// WithClock replaces time.Now for notice timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an editor over store. The store is expected to be seeded.
func New(store *graph.Store, svc genai.Service, pub pubsub.Publisher, opts ...Option) *Editor {
	o := options{
		layout:      render.DefaultLayout,
		limits:      geom.DefaultLimits,
		pick:        graph.RandomPick,
		noticeLimit: DefaultNoticeLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Editor{
		store:       store,
		pub:         pub,
		layout:      o.layout,
		viewport:    DefaultViewport,
		seqs:        make(map[string]uint64),
		noticeLimit: o.noticeLimit,
		now:         o.now,
	}
	e.machine = interaction.NewMachine(store,
		interaction.WithLayout(o.layout),
		interaction.WithLimits(o.limits),
		interaction.WithCaptureHook(captureLogger),
	)
	e.runner = actions.NewRunner(store, svc,
		actions.WithNotifier(actions.NotifierFunc(e.notify)),
		actions.WithChangeHook(e.changed),
		actions.WithPicker(o.pick),
	)
	return e
}

// captureLogger traces how long each gesture holds the pointer.
func captureLogger(mode interaction.Mode) func() {
	start := time.Now()
	logging.Trace("Pointer captured", "mode", mode)
	return func() {
		logging.Trace("Pointer released", "mode", mode, "duration", time.Since(start))
	}
}

// Mount records the viewport size. The first mount centres the initial
// content; later mounts only resize.
func (e *Editor) Mount(viewport geom.Size) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if viewport.Width > 0 && viewport.Height > 0 {
		e.viewport = viewport
	}
	if !e.mounted {
		e.machine.SetView(geom.CenterOn(e.viewport, ContentSize, e.machine.View()))
		e.mounted = true
		logging.Info("Canvas mounted", "width", e.viewport.Width, "height", e.viewport.Height)
	}
	e.publishLocked()
}

// AddNode creates a node at the world point under the centre of the viewport.
func (e *Editor) AddNode(kind model.Kind, data model.NodeData) (model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	centre := geom.Point{X: e.viewport.Width / 2, Y: e.viewport.Height / 2}
	id, err := e.store.AddNode(kind, geom.ToWorld(centre, e.machine.View()), userData(data))
	if err != nil {
		return model.Node{}, err
	}
	e.publishLocked()

	n, _ := e.store.Node(id)
	return n, nil
}

// DeleteNode removes a node and its connections. A gesture involving the node
// is abandoned.
func (e *Editor) DeleteNode(id model.NodeID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.DeleteNode(id) {
		return false
	}
	if dragged, ok := e.machine.Dragging(); ok && dragged == id {
		e.machine.Cancel()
	}
	if d := e.machine.Drawing(); d != nil && d.From == id {
		e.machine.Cancel()
	}
	e.publishLocked()
	return true
}

// UpdateNodeData merges user edits into a node. The processing flag and the
// blend snapshot are owned by the actions and cannot be patched.
func (e *Editor) UpdateNodeData(id model.NodeID, patch model.NodeData) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.UpdateNodeData(id, userData(patch)) {
		return false
	}
	e.publishLocked()
	return true
}

// Node returns a copy of a node.
func (e *Editor) Node(id model.NodeID) (model.Node, bool) {
	return e.store.Node(id)
}

// Connect adds a connection outside of a pointer gesture.
func (e *Editor) Connect(ctx context.Context, from, to model.NodeID) (model.Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.store.AddConnection(from, to)
	if err != nil {
		if errors.Is(err, graph.ErrDuplicateConnection) {
			e.notify(ctx, model.ErrorNotice("Connection already exists.", ""))
		}
		return model.Connection{}, err
	}
	e.publishLocked()
	return c, nil
}

// Disconnect removes the connection between from and to.
func (e *Editor) Disconnect(from, to model.NodeID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.RemoveConnection(from, to) {
		return false
	}
	e.publishLocked()
	return true
}

// Sequence orders the pointer events of one browser page. N counts up from
// one; zero means the event is unordered and always applied.
type Sequence struct {
	Client string
	N      uint64
}

// Pointer feeds one pointer or wheel event to the gesture machine. An event
// older than one already applied for the same client is dropped.
func (e *Editor) Pointer(ctx context.Context, seq Sequence, ev interaction.Event) interaction.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inOrderLocked(seq) {
		logging.DebugContext(ctx, "Dropped out-of-order pointer event", "client", seq.Client, "seq", seq.N, "event", fmt.Sprintf("%T", ev))
		return interaction.Outcome{}
	}

	out := e.machine.Handle(ev)
	if out.Notice != nil {
		e.notify(ctx, *out.Notice)
	}
	if out.ConnectionMade != nil {
		logging.DebugContext(ctx, "Connection drawn", "from", out.ConnectionMade.From, "to", out.ConnectionMade.To)
	}
	if out.Changed() {
		e.publishLocked()
	}
	return out
}

// CancelGesture abandons the active gesture, as when the pointer leaves the
// window. It is ordered with the client's pointer events.
func (e *Editor) CancelGesture(seq Sequence) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inOrderLocked(seq) {
		return
	}
	if e.machine.Cancel().Changed() {
		e.publishLocked()
	}
}

func (e *Editor) inOrderLocked(seq Sequence) bool {
	if seq.N == 0 {
		return true
	}
	if seq.N <= e.seqs[seq.Client] {
		return false
	}
	e.seqs[seq.Client] = seq.N
	return true
}

// Mode returns the active gesture mode.
func (e *Editor) Mode() interaction.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.Mode()
}

// Scene returns the current render model.
func (e *Editor) Scene() render.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildLocked()
}

// Image returns the node's current image and its version, whether or not the
// node is stale. It backs the image previews.
func (e *Editor) Image(id model.NodeID) (imageuri.Image, string, error) {
	n, ok := e.store.Node(id)
	if !ok {
		return imageuri.Image{}, "", fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}
	if !n.Data.HasImage() {
		return imageuri.Image{}, "", fmt.Errorf("%w: node %d", actions.ErrImageRequired, id)
	}
	img, err := imageuri.Parse(n.Data.ImageURI())
	if err != nil {
		return imageuri.Image{}, "", err
	}
	return img, n.ImageVersion, nil
}

// Generate starts image generation on a generate node.
func (e *Editor) Generate(ctx context.Context, id model.NodeID) error {
	return e.runner.StartGenerate(ctx, id)
}

// Edit starts an edit of the node's image.
func (e *Editor) Edit(ctx context.Context, id model.NodeID, prompt string) error {
	return e.runner.StartEdit(ctx, id, prompt)
}

// Refine starts prompt refinement on a prompt node.
func (e *Editor) Refine(ctx context.Context, id model.NodeID) error {
	return e.runner.StartRefine(ctx, id)
}

// Blend starts blending the inputs of an output node.
func (e *Editor) Blend(ctx context.Context, id model.NodeID) error {
	return e.runner.StartBlend(ctx, id)
}

// Upload stores a file as the image of an upload node.
func (e *Editor) Upload(ctx context.Context, id model.NodeID, filename string, data []byte) error {
	return e.runner.Upload(ctx, id, filename, data)
}

// UploadNew creates an upload node holding the file. The node is removed
// again if the file is not a readable image.
func (e *Editor) UploadNew(ctx context.Context, filename string, data []byte) (model.NodeID, error) {
	n, err := e.AddNode(model.KindUpload, model.NodeData{})
	if err != nil {
		return 0, err
	}
	if err := e.runner.Upload(ctx, n.ID, filename, data); err != nil {
		e.DeleteNode(n.ID)
		return 0, fmt.Errorf("upload %s: %w", filename, err)
	}
	return n.ID, nil
}

// Download returns the node's image.
func (e *Editor) Download(ctx context.Context, id model.NodeID) (imageuri.Image, error) {
	return e.runner.Download(ctx, id)
}

// Randomize replaces the node's prompt or instructions with a sample.
func (e *Editor) Randomize(ctx context.Context, id model.NodeID) error {
	return e.runner.Randomize(ctx, id)
}

// Wait blocks until all background calls have completed.
func (e *Editor) Wait() {
	e.runner.Wait()
}

// Notices returns the notice log, oldest first.
func (e *Editor) Notices() []model.Notice {
	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()
	return append([]model.Notice(nil), e.notices...)
}

// DismissNotice removes a notice from the log.
func (e *Editor) DismissNotice(id string) error {
	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()

	for i, n := range e.notices {
		if n.ID != id {
			continue
		}
		e.notices = append(e.notices[:i], e.notices[i+1:]...)
		if err := e.pub.Publish(pubsub.TopicNotices, pubsub.EventNoticeDismiss, pubsub.NoticeDismissal{ID: id}); err != nil {
			logging.Warn("Failed to publish notice dismissal", "id", id, "error", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoticeNotFound, id)
}

// notify records a notice and pushes it to subscribers. It only takes the
// notice lock, so it is safe to call with or without e.mu held.
func (e *Editor) notify(ctx context.Context, n model.Notice) {
	n.ID = uuid.NewString()
	n.Time = e.now()

	e.noticeMu.Lock()
	defer e.noticeMu.Unlock()

	e.notices = append(e.notices, n)
	if over := len(e.notices) - e.noticeLimit; e.noticeLimit > 0 && over > 0 {
		e.notices = append([]model.Notice(nil), e.notices[over:]...)
	}

	logging.InfoContext(ctx, "Notice", "level", n.Level, "title", n.Title, "nodeID", n.NodeID)
	if err := e.pub.Publish(pubsub.TopicNotices, pubsub.EventNotice, n); err != nil {
		logging.Warn("Failed to publish notice", "id", n.ID, "error", err)
	}
}

// changed is the runner's hook. It runs outside e.mu.
func (e *Editor) changed(model.NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishLocked()
}

func (e *Editor) buildLocked() render.Scene {
	nodes, conns := e.store.Snapshot()
	return render.Build(nodes, conns, render.Input{
		View:    e.machine.View(),
		Layout:  e.layout,
		Mode:    e.machine.Mode().String(),
		Pointer: e.machine.Pointer(),
		Drawing: e.machine.Drawing(),
		Stale:   actions.StaleSet(nodes, conns),
	})
}

// publishLocked sends the scene to subscribers. The first publish carries the
// full scene; later ones carry a diff while the full scene is kept for replay.
func (e *Editor) publishLocked() {
	scene := e.buildLocked()

	if e.last == nil {
		if err := e.pub.Publish(pubsub.TopicScene, pubsub.EventSceneFull, scene); err != nil {
			logging.Warn("Failed to publish scene", "error", err)
			return
		}
		e.last = snapshot.Create(scene)
		return
	}

	diff, next := snapshot.ComputeDiff(e.last, scene)
	if diff.Hash == e.last.Hash {
		return
	}
	if err := e.pub.PublishWithSnapshot(pubsub.TopicScene, pubsub.EventSceneDiff, diff, pubsub.EventSceneFull, scene); err != nil {
		logging.Warn("Failed to publish scene", "error", err)
		return
	}
	e.last = next
}

// userData drops the fields the actions own.
func userData(d model.NodeData) model.NodeData {
	d.IsProcessing = nil
	d.InputStates = nil
	return d
}
