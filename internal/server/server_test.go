package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	everrors "github.com/matzehuels/evocity/pkg/errors"
	"github.com/matzehuels/evocity/pkg/graph"
	"github.com/matzehuels/evocity/pkg/observability"
	"github.com/matzehuels/evocity/pkg/observability/prom"
	"github.com/matzehuels/evocity/pkg/pipeline"
	"github.com/matzehuels/evocity/pkg/scene"
)

func writeRevision(t *testing.T, dir, file string, s *graph.Snapshot) {
	t.Helper()
	if err := graph.WriteSnapshotFile(s, filepath.Join(dir, file)); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T, duration time.Duration) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	writeRevision(t, dir, "001.json", graph.MustSnapshot("v1", []graph.Node{
		{ID: "main.go", Attributes: graph.Attributes{"loc": 100}},
	}, nil))
	writeRevision(t, dir, "002.json", graph.MustSnapshot("v2", []graph.Node{
		{ID: "main.go", Attributes: graph.Attributes{"loc": 140}},
		{ID: "util.go", Attributes: graph.Attributes{"loc": 20}},
	}, []graph.Edge{{ID: "main-util", Source: "main.go", Target: "util.go"}}))

	reg := prometheus.NewRegistry()
	prom.New(reg).Register()
	t.Cleanup(observability.Reset)

	s, err := New(context.Background(), Config{
		Runner: pipeline.NewRunner(nil, nil, nil),
		Options: pipeline.Options{
			Source:   dir,
			Edges:    true,
			Cache:    pipeline.CacheNone,
			Duration: duration,
		},
		Gatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, dir
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestNewRequiresRunner(t *testing.T) {
	if _, err := New(context.Background(), Config{}); !everrors.Is(err, everrors.ErrCodeInvalidConfig) {
		t.Errorf("New() error = %v, want INVALID_CONFIG", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, 0)
	w := do(t, s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decode[map[string]string](t, w); resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestNavigation(t *testing.T) {
	s, _ := newTestServer(t, 0)

	state := decode[StateResponse](t, do(t, s, "GET", "/api/state", ""))
	if state.Current != -1 || state.Count != 2 || state.State.String() != "idle" {
		t.Fatalf("initial state = %+v", state)
	}

	tests := []struct {
		method, path string
		wantStatus   int
		wantCurrent  int
	}{
		{"POST", "/api/previous", http.StatusNotFound, -1},
		{"POST", "/api/next", http.StatusAccepted, 0},
		{"POST", "/api/next", http.StatusAccepted, 1},
		{"POST", "/api/next", http.StatusNotFound, 1},
		{"POST", "/api/revisions/0", http.StatusAccepted, 0},
		{"POST", "/api/revisions/7", http.StatusNotFound, 0},
		{"POST", "/api/revisions/seven", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		w := do(t, s, tt.method, tt.path, "")
		if w.Code != tt.wantStatus {
			t.Errorf("%s %s status = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body)
		}
		state := decode[StateResponse](t, do(t, s, "GET", "/api/state", ""))
		if state.Current != tt.wantCurrent {
			t.Errorf("after %s %s current = %d, want %d", tt.method, tt.path, state.Current, tt.wantCurrent)
		}
	}
}

func TestBusyRejection(t *testing.T) {
	s, _ := newTestServer(t, time.Second)

	w := do(t, s, "POST", "/api/next", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("first next status = %d", w.Code)
	}
	if state := decode[StateResponse](t, w); !state.Transitioning {
		t.Error("transition should still be running")
	}

	w = do(t, s, "POST", "/api/next", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("second next status = %d, want 409", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != everrors.ErrCodeAlreadyAnimating {
		t.Errorf("error code = %q, want ALREADY_ANIMATING", resp.Code)
	}

	s.Tick(2 * time.Second)
	state := decode[StateResponse](t, do(t, s, "GET", "/api/state", ""))
	if state.Transitioning || state.Current != 0 {
		t.Errorf("after tick state = %+v", state)
	}
	if state.LastTransition == nil || !slices.Equal(state.LastTransition.Nodes.Added, []string{"main.go"}) {
		t.Errorf("last transition = %+v", state.LastTransition)
	}
}

func TestGetDiff(t *testing.T) {
	s, _ := newTestServer(t, 0)

	w := do(t, s, "GET", "/api/revisions/1/diff", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body)
	}
	resp := decode[DiffResponse](t, w)
	if resp.From != 0 || resp.To != 1 {
		t.Errorf("from/to = %d/%d, want 0/1", resp.From, resp.To)
	}
	if !slices.Equal(resp.Nodes.Added, []string{"util.go"}) || !slices.Equal(resp.Nodes.Changed, []string{"main.go"}) {
		t.Errorf("nodes = %+v", resp.Nodes)
	}
	if !slices.Equal(resp.Edges.Added, []string{"main-util"}) {
		t.Errorf("edges = %+v", resp.Edges)
	}

	resp = decode[DiffResponse](t, do(t, s, "GET", "/api/revisions/0/diff", ""))
	if resp.From != -1 || !slices.Equal(resp.Nodes.Added, []string{"main.go"}) {
		t.Errorf("diff of first revision = %+v", resp)
	}

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/revisions/1/diff?from=1", http.StatusOK},
		{"/api/revisions/2/diff", http.StatusNotFound},
		{"/api/revisions/1/diff?from=9", http.StatusNotFound},
		{"/api/revisions/1/diff?from=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, s, "GET", tt.path, ""); w.Code != tt.wantStatus {
			t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.wantStatus)
		}
	}
}

func TestGetElements(t *testing.T) {
	s, _ := newTestServer(t, 0)

	all := decode[[]scene.Element](t, do(t, s, "GET", "/api/elements", ""))
	if len(all) != 3 {
		t.Errorf("len(elements) = %d, want 3 placeholders", len(all))
	}
	if visible := decode[[]scene.Element](t, do(t, s, "GET", "/api/elements?visible=true", "")); len(visible) != 0 {
		t.Errorf("visible before navigation = %d, want 0", len(visible))
	}

	do(t, s, "POST", "/api/revisions/1", "")
	counts := map[scene.Kind]int{}
	for _, e := range decode[[]scene.Element](t, do(t, s, "GET", "/api/elements?visible=true", "")) {
		counts[e.Kind]++
	}
	if counts[scene.KindNode] != 2 || counts[scene.KindEdge] != 1 || counts[scene.KindPlane] != 1 {
		t.Errorf("visible elements by kind = %v", counts)
	}
}

func TestListRevisions(t *testing.T) {
	s, _ := newTestServer(t, 0)
	revs := decode[[]RevisionInfo](t, do(t, s, "GET", "/api/revisions", ""))
	want := []RevisionInfo{{0, "v1", 1, 0}, {1, "v2", 2, 1}}
	if !slices.Equal(revs, want) {
		t.Errorf("revisions = %+v, want %+v", revs, want)
	}
}

func TestSetAutoPlay(t *testing.T) {
	s, _ := newTestServer(t, 0)

	w := do(t, s, "POST", "/api/autoplay", `{"enabled":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d (%s)", w.Code, w.Body)
	}
	// With instant transitions auto-play runs to the end within the request.
	state := decode[StateResponse](t, w)
	if state.Current != 1 || state.AutoPlay {
		t.Errorf("state = %+v, want current 1 with auto-play stopped", state)
	}

	if w := do(t, s, "POST", "/api/autoplay", `{enabled`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}
}

func TestSetDuration(t *testing.T) {
	s, _ := newTestServer(t, time.Second)

	tests := []struct {
		body       string
		wantStatus int
	}{
		{`{"duration":"250ms"}`, http.StatusOK},
		{`{"duration":"-1s"}`, http.StatusBadRequest},
		{`{"duration":"soon"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, s, "POST", "/api/duration", tt.body); w.Code != tt.wantStatus {
			t.Errorf("POST /api/duration %s status = %d, want %d", tt.body, w.Code, tt.wantStatus)
		}
	}
	state := decode[StateResponse](t, do(t, s, "GET", "/api/state", ""))
	if state.Duration != "250ms" {
		t.Errorf("duration = %q, want 250ms", state.Duration)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, 0)
	do(t, s, "POST", "/api/next", "")

	w := do(t, s, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "evocity_transitions_total 1") {
		t.Errorf("metrics missing transition counter:\n%s", body)
	}
}

func TestReload(t *testing.T) {
	s, dir := newTestServer(t, 0)
	do(t, s, "POST", "/api/revisions/1", "")

	writeRevision(t, dir, "003.json", graph.MustSnapshot("v3", []graph.Node{
		{ID: "util.go", Attributes: graph.Attributes{"loc": 25}},
	}, nil))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// The reloaded series is applied on the next tick.
	if state := decode[StateResponse](t, do(t, s, "GET", "/api/state", "")); state.Count != 2 {
		t.Errorf("count before tick = %d, want 2", state.Count)
	}
	s.Tick(0)
	state := decode[StateResponse](t, do(t, s, "GET", "/api/state", ""))
	if state.Count != 3 || state.Current != 1 || state.Revision != "v2" {
		t.Errorf("after reload state = %+v", state)
	}
}
