package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/node-composer/pkg/editor"
	"github.com/ritzau/node-composer/pkg/genai"
	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/graph"
	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/model"
	"github.com/ritzau/node-composer/pkg/pubsub"
	"github.com/ritzau/node-composer/pkg/render"
)

func newTestServer(t *testing.T) (*httptest.Server, *editor.Editor) {
	t.Helper()
	store := graph.NewStore(graph.WithPicker(func(int) int { return 0 }))
	if _, err := graph.Populate(store, graph.InitialLayout); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	pub := pubsub.NewSSEPublisher()
	ed := editor.New(store, genai.NewPlaceholder(), pub)

	ts := httptest.NewServer(NewServer(ed, pub).Handler())
	t.Cleanup(func() {
		ts.Close()
		pub.Close()
	})
	return ts, ed
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func TestHealthAndScene(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, "GET", ts.URL+"/api/health", "")
	expectStatus(t, resp, http.StatusOK)
	if id := resp.Header.Get("X-Request-ID"); id == "" {
		t.Error("Expected a request id header")
	}

	resp = do(t, "GET", ts.URL+"/api/scene", "")
	expectStatus(t, resp, http.StatusOK)
	var scene render.Scene
	if err := json.NewDecoder(resp.Body).Decode(&scene); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(scene.Nodes) != 3 || scene.Mode != "idle" {
		t.Errorf("Unexpected scene: %d nodes, mode %s", len(scene.Nodes), scene.Mode)
	}
}

func TestStaticIndex(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, "GET", ts.URL+"/", "")
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "app.js") {
		t.Error("Index page should load the client script")
	}
}

func TestNodeLifecycle(t *testing.T) {
	ts, ed := newTestServer(t)

	resp := do(t, "POST", ts.URL+"/api/mount", `{"width":1000,"height":700}`)
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, "POST", ts.URL+"/api/nodes", `{"kind":"prompt","data":{"prompt":"a fox"}}`)
	expectStatus(t, resp, http.StatusCreated)
	var n model.Node
	json.NewDecoder(resp.Body).Decode(&n)
	if n.ID != 4 || n.Position != (geom.Point{X: 400, Y: 300}) {
		t.Errorf("Unexpected node %+v", n)
	}

	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes", `{"kind":"video"}`), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes", `{`), http.StatusBadRequest)

	expectStatus(t, do(t, "PATCH", ts.URL+"/api/nodes/4", `{"context":"in snow"}`), http.StatusNoContent)
	if got, _ := ed.Node(4); got.Data.ContextText() != "in snow" {
		t.Errorf("Patch not applied: %+v", got.Data)
	}

	expectStatus(t, do(t, "DELETE", ts.URL+"/api/nodes/4", ""), http.StatusNoContent)
	expectStatus(t, do(t, "DELETE", ts.URL+"/api/nodes/4", ""), http.StatusNotFound)
	expectStatus(t, do(t, "PATCH", ts.URL+"/api/nodes/4", `{}`), http.StatusNotFound)
}

func TestConnections(t *testing.T) {
	ts, _ := newTestServer(t)

	expectStatus(t, do(t, "POST", ts.URL+"/api/connections", `{"from":1,"to":3}`), http.StatusCreated)
	expectStatus(t, do(t, "POST", ts.URL+"/api/connections", `{"from":1,"to":3}`), http.StatusConflict)
	expectStatus(t, do(t, "POST", ts.URL+"/api/connections", `{"from":3,"to":1}`), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, "POST", ts.URL+"/api/connections", `{"from":2,"to":2}`), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, "POST", ts.URL+"/api/connections", `{"from":1,"to":42}`), http.StatusNotFound)

	expectStatus(t, do(t, "DELETE", ts.URL+"/api/connections/1/3", ""), http.StatusNoContent)
	expectStatus(t, do(t, "DELETE", ts.URL+"/api/connections/1/3", ""), http.StatusNotFound)

	// The duplicate produced a notice
	resp := do(t, "GET", ts.URL+"/api/notices", "")
	var notices []model.Notice
	json.NewDecoder(resp.Body).Decode(&notices)
	if len(notices) != 1 || notices[0].Title != "Connection already exists." {
		t.Fatalf("Unexpected notices %+v", notices)
	}
	expectStatus(t, do(t, "DELETE", ts.URL+"/api/notices/"+notices[0].ID, ""), http.StatusNoContent)
	expectStatus(t, do(t, "DELETE", ts.URL+"/api/notices/"+notices[0].ID, ""), http.StatusNotFound)
}

func TestPointerDrag(t *testing.T) {
	ts, ed := newTestServer(t)

	resp := do(t, "POST", ts.URL+"/api/pointer", `{"type":"down","x":10,"y":10,"button":0,"target":{"kind":"node-header","node":1}}`)
	expectStatus(t, resp, http.StatusOK)
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["mode"] != "dragging-node" {
		t.Errorf("Expected dragging-node, got %q", body["mode"])
	}

	expectStatus(t, do(t, "POST", ts.URL+"/api/pointer", `{"type":"move","x":30,"y":20,"movementX":20,"movementY":10}`), http.StatusOK)
	expectStatus(t, do(t, "POST", ts.URL+"/api/pointer", `{"type":"up","x":30,"y":20}`), http.StatusOK)

	n, _ := ed.Node(1)
	if n.Position != (geom.Point{X: 320, Y: 260}) {
		t.Errorf("Expected node at (320,260), got %+v", n.Position)
	}

	expectStatus(t, do(t, "POST", ts.URL+"/api/pointer", `{"type":"down","target":{"kind":"elsewhere"}}`), http.StatusBadRequest)
	expectStatus(t, do(t, "POST", ts.URL+"/api/pointer", `{"type":"hover"}`), http.StatusBadRequest)
	expectStatus(t, do(t, "POST", ts.URL+"/api/pointer", `{"type":"cancel"}`), http.StatusOK)
}

func TestPointerSequenceDropsLateEvents(t *testing.T) {
	ts, ed := newTestServer(t)

	expectStatus(t, do(t, "POST", ts.URL+"/api/pointer", `{"type":"up","client":"page","seq":2}`), http.StatusOK)
	resp := do(t, "POST", ts.URL+"/api/pointer", `{"type":"down","client":"page","seq":1,"button":0,"target":{"kind":"node-header","node":1}}`)
	expectStatus(t, resp, http.StatusOK)

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["mode"] != "idle" || ed.Mode().String() != "idle" {
		t.Errorf("Expected a late press to leave the editor idle, got %q", body["mode"])
	}
}

func TestImagePreview(t *testing.T) {
	ts, ed := newTestServer(t)

	expectStatus(t, do(t, "GET", ts.URL+"/api/nodes/1/image", ""), http.StatusNotFound)
	expectStatus(t, do(t, "GET", ts.URL+"/api/nodes/99/image", ""), http.StatusNotFound)

	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/1/generate", ""), http.StatusAccepted)
	ed.Wait()

	var url string
	for _, n := range ed.Scene().Nodes {
		if n.ID == 1 {
			url = n.ImageURL
		}
	}
	if !strings.HasPrefix(url, "/api/nodes/1/image?v=") {
		t.Fatalf("Expected an image URL on the widget, got %q", url)
	}

	resp := do(t, "GET", ts.URL+url, "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("Expected the versioned URL to be cacheable, got %q", cc)
	}
	data, _ := io.ReadAll(resp.Body)
	if _, err := imageuri.Sniff(data); err != nil {
		t.Errorf("Preview is not an image: %v", err)
	}

	old := do(t, "GET", ts.URL+"/api/nodes/1/image?v=outdated", "")
	expectStatus(t, old, http.StatusOK)
	if cc := old.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Expected an outdated version to skip caching, got %q", cc)
	}
}

func TestActions(t *testing.T) {
	ts, ed := newTestServer(t)

	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/1/generate", ""), http.StatusAccepted)
	ed.Wait()
	if n, _ := ed.Node(1); !n.Data.HasImage() {
		t.Fatal("Generate should have produced an image")
	}

	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/3/blend", ""), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/3/generate", ""), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/99/generate", ""), http.StatusNotFound)
	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/2/edit", `{"prompt":"brighter"}`), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/1/edit", `{"prompt":"brighter"}`), http.StatusAccepted)
	ed.Wait()

	resp := do(t, "POST", ts.URL+"/api/nodes/3/randomize", "")
	expectStatus(t, resp, http.StatusOK)

	do(t, "POST", ts.URL+"/api/connections", `{"from":1,"to":3}`)
	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/3/blend", ""), http.StatusAccepted)
	ed.Wait()

	resp = do(t, "GET", ts.URL+"/api/nodes/3/download", "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "composer-3.png") {
		t.Errorf("Unexpected disposition %q", cd)
	}
	expectStatus(t, do(t, "GET", ts.URL+"/api/nodes/2/download", ""), http.StatusUnprocessableEntity)
}

func TestUpload(t *testing.T) {
	ts, ed := newTestServer(t)

	res, _ := genai.NewPlaceholder().Generate(context.Background(), genai.GenerateRequest{Prompt: "x"})
	img, _ := imageuri.Parse(res.Image)

	upload := func(data []byte) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("file", "photo.png")
		fw.Write(data)
		mw.Close()

		resp, err := http.Post(ts.URL+"/api/nodes/2/upload", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	expectStatus(t, upload(img.Data), http.StatusNoContent)
	n, _ := ed.Node(2)
	if !n.Data.HasImage() || n.Data.PromptText() != "photo.png" {
		t.Errorf("Unexpected upload node data %+v", n.Data)
	}

	expectStatus(t, upload([]byte("not an image")), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, "POST", ts.URL+"/api/nodes/2/upload", ""), http.StatusBadRequest)
}

func TestSubscribeScene(t *testing.T) {
	ts, ed := newTestServer(t)
	ed.Mount(geom.Size{Width: 800, Height: 600})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/subscribe/scene", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected event stream, got %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	select {
	case line := <-lines:
		var ev pubsub.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("Bad event: %v", err)
		}
		if ev.Topic != pubsub.TopicScene || ev.Type != pubsub.EventSceneFull {
			t.Errorf("Expected a full scene first, got %s/%s", ev.Topic, ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for scene event")
	}

	expectStatus(t, do(t, "GET", ts.URL+"/api/subscribe/pointer", ""), http.StatusNotFound)
}
