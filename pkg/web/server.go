package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ritzau/node-composer/pkg/actions"
	"github.com/ritzau/node-composer/pkg/editor"
	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/graph"
	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/interaction"
	"github.com/ritzau/node-composer/pkg/logging"
	"github.com/ritzau/node-composer/pkg/model"
	"github.com/ritzau/node-composer/pkg/pubsub"
)

//go:embed static/*
var staticFiles embed.FS

// MaxUploadSize bounds multipart uploads.
const MaxUploadSize = 20 << 20

// Server represents the web server.
type Server struct {
	router    *mux.Router
	editor    *editor.Editor
	publisher pubsub.Publisher
}

// NewServer creates a web server for one editor session.
func NewServer(ed *editor.Editor, publisher pubsub.Publisher) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		editor:    ed,
		publisher: publisher,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler, with request logging.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/scene", s.handleScene).Methods("GET")
	api.HandleFunc("/mount", s.handleMount).Methods("POST")
	api.HandleFunc("/pointer", s.handlePointer).Methods("POST")

	api.HandleFunc("/nodes", s.handleAddNode).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}", s.handleUpdateNode).Methods("PATCH")
	api.HandleFunc("/nodes/{id:[0-9]+}", s.handleDeleteNode).Methods("DELETE")
	api.HandleFunc("/nodes/{id:[0-9]+}/generate", s.nodeAction(s.editor.Generate)).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}/refine", s.nodeAction(s.editor.Refine)).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}/blend", s.nodeAction(s.editor.Blend)).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}/edit", s.handleEdit).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}/randomize", s.handleRandomize).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}/upload", s.handleUpload).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}/download", s.handleDownload).Methods("GET")
	api.HandleFunc("/nodes/{id:[0-9]+}/image", s.handleImage).Methods("GET")

	api.HandleFunc("/connections", s.handleConnect).Methods("POST")
	api.HandleFunc("/connections/{from:[0-9]+}/{to:[0-9]+}", s.handleDisconnect).Methods("DELETE")

	api.HandleFunc("/notices", s.handleNotices).Methods("GET")
	api.HandleFunc("/notices/{id}", s.handleDismissNotice).Methods("DELETE")

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("Static files missing from binary", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if topic != pubsub.TopicScene && topic != pubsub.TopicNotices {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown topic %q", topic))
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flush(w)

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		logging.ErrorContext(r.Context(), "Failed to subscribe", "topic", topic, "error", err)
		return
	}
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(ctx, "SSE client gone", "topic", topic, "error", err)
				return
			}
			flush(w)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Scene())
}

func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	var viewport geom.Size
	if !decode(w, r, &viewport) {
		return
	}
	s.editor.Mount(viewport)
	writeJSON(w, http.StatusOK, s.editor.Scene().View)
}

// pointerRequest is one browser pointer event.
type pointerRequest struct {
	Type      string  `json:"type"`   // down, move, up, wheel or cancel
	Client    string  `json:"client"` // Random id of the browser page
	Seq       uint64  `json:"seq"`    // Counts up per client; zero is unordered
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Button    int     `json:"button"`
	MovementX float64 `json:"movementX"`
	MovementY float64 `json:"movementY"`
	DeltaY    float64 `json:"deltaY"`
	Target    struct {
		Kind string       `json:"kind"`
		Node model.NodeID `json:"node"`
	} `json:"target"`
}

func (p pointerRequest) event() (interaction.Event, error) {
	screen := geom.Point{X: p.X, Y: p.Y}
	switch p.Type {
	case "down":
		kind, err := interaction.ParseTargetKind(p.Target.Kind)
		if err != nil {
			return nil, err
		}
		return interaction.PointerDown{
			Screen: screen,
			Button: interaction.Button(p.Button),
			Target: interaction.Target{Kind: kind, Node: p.Target.Node},
		}, nil
	case "move":
		return interaction.PointerMove{Screen: screen, Movement: geom.Point{X: p.MovementX, Y: p.MovementY}}, nil
	case "up":
		return interaction.PointerUp{Screen: screen}, nil
	case "wheel":
		return interaction.Wheel{Screen: screen, DeltaY: p.DeltaY}, nil
	}
	return nil, fmt.Errorf("unknown pointer event type %q", p.Type)
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decode(w, r, &req) {
		return
	}

	seq := editor.Sequence{Client: req.Client, N: req.Seq}
	if req.Type == "cancel" {
		s.editor.CancelGesture(seq)
	} else {
		ev, err := req.event()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.editor.Pointer(r.Context(), seq, ev)
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": s.editor.Mode().String()})
}

type addNodeRequest struct {
	Kind model.Kind     `json:"kind"`
	Data model.NodeData `json:"data"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.editor.AddNode(req.Kind, req.Data)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	logging.InfoContext(r.Context(), "Node added", "nodeID", n.ID, "kind", n.Kind)
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r, "id")
	if !ok {
		return
	}
	var patch model.NodeData
	if !decode(w, r, &patch) {
		return
	}
	if !s.editor.UpdateNodeData(id, patch) {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r, "id")
	if !ok {
		return
	}
	if !s.editor.DeleteNode(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id))
		return
	}
	logging.InfoContext(r.Context(), "Node deleted", "nodeID", id)
	w.WriteHeader(http.StatusNoContent)
}

// nodeAction adapts a background action. Accepted work answers 202.
func (s *Server) nodeAction(start func(context.Context, model.NodeID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := nodeID(w, r, "id")
		if !ok {
			return
		}
		if err := start(r.Context(), id); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.editor.Edit(r.Context(), id, req.Prompt); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRandomize(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r, "id")
	if !ok {
		return
	}
	if err := s.editor.Randomize(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	n, _ := s.editor.Node(id)
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}
	if err := s.editor.Upload(r.Context(), id, header.Filename, data); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r, "id")
	if !ok {
		return
	}
	img, err := s.editor.Download(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	name := fmt.Sprintf("composer-%d%s", id, imageuri.Extension(img.MIME))
	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// handleImage serves the preview of a node. Unlike a download it is not
// gated on staleness. A request for the current version may be cached.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r, "id")
	if !ok {
		return
	}
	img, version, err := s.editor.Image(id)
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, actions.ErrImageRequired) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	if version != "" && r.URL.Query().Get("v") == version {
		w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("ETag", strconv.Quote(version))
	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

type connectRequest struct {
	From model.NodeID `json:"from"`
	To   model.NodeID `json:"to"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.editor.Connect(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	from, ok := nodeID(w, r, "from")
	if !ok {
		return
	}
	to, ok := nodeID(w, r, "to")
	if !ok {
		return
	}
	if !s.editor.Disconnect(from, to) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no connection %s", model.ConnectionKey{From: from, To: to}))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Notices())
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.DismissNotice(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Web server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down web server: %w", err)
	}
	logging.Info("Web server stopped")
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound), errors.Is(err, editor.ErrNoticeNotFound):
		return http.StatusNotFound
	case errors.Is(err, actions.ErrBusy), errors.Is(err, graph.ErrDuplicateConnection):
		return http.StatusConflict
	case errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, graph.ErrSelfLoop),
		errors.Is(err, graph.ErrNoInput),
		errors.Is(err, graph.ErrNoOutput),
		errors.Is(err, actions.ErrWrongKind),
		errors.Is(err, actions.ErrPromptRequired),
		errors.Is(err, actions.ErrImageRequired),
		errors.Is(err, actions.ErrNotEnoughInputs),
		errors.Is(err, actions.ErrStale),
		errors.Is(err, actions.ErrUnreadableFile):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func nodeID(w http.ResponseWriter, r *http.Request, name string) (model.NodeID, bool) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad %s: %w", name, err))
		return 0, false
	}
	return model.NodeID(v), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
