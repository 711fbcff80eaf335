package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cheahjs/sdwebui-panel/internal/generation"
	"github.com/cheahjs/sdwebui-panel/internal/params"
	"github.com/cheahjs/sdwebui-panel/internal/storage"
)

type fakeGenerator struct {
	calls  int
	got    params.Parameters
	result *generation.Result
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, p params.Parameters) (*generation.Result, error) {
	f.calls++
	f.got = p
	return f.result, f.err
}

type fakeHealth bool

func (f fakeHealth) Available(context.Context) bool {
	return bool(f)
}

func newTestRouter(t *testing.T, gen *fakeGenerator, healthy bool, staticDir string) (*Router, *storage.ImageStore) {
	t.Helper()
	store, err := storage.NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}
	router := NewRouter(Config{
		Generator:          gen,
		Health:             fakeHealth(healthy),
		Images:             store,
		StaticDir:          staticDir,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	})
	return router, store
}

func postJSON(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	gen := &fakeGenerator{}
	router, _ := newTestRouter(t, gen, true, "")

	for _, body := range []string{`{}`, `{"prompt":""}`, `{"prompt":"   "}`} {
		rec := postJSON(t, router, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: got status %d", body, rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != "Prompt is required" {
			t.Fatalf("unexpected error: %+v", resp)
		}
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called for blank prompts")
	}
}

func TestGenerateRejectsInvalidJSON(t *testing.T) {
	gen := &fakeGenerator{}
	router, _ := newTestRouter(t, gen, true, "")

	rec := postJSON(t, router, `{"prompt":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", rec.Code)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called")
	}
}

func TestGenerateSuccess(t *testing.T) {
	gen := &fakeGenerator{result: &generation.Result{
		Success:   true,
		ImageURL:  "/generated/generated_x.png",
		ImagePath: "/data/generated/generated_x.png",
		Prompt:    "a red fox in snow",
		Info:      json.RawMessage(`{}`),
	}}
	router, _ := newTestRouter(t, gen, true, "")

	rec := postJSON(t, router, `{"prompt":"a red fox in snow","steps":20,"sampler":"Euler a","seed":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}
	if gen.got.Steps != 20 || gen.got.Sampler != "Euler a" || gen.got.Seed == nil || *gen.got.Seed != 0 {
		t.Fatalf("request not decoded: %+v", gen.got)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	for _, key := range []string{"success", "imageUrl", "imagePath", "prompt", "parameters", "info"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %s in %v", key, body)
		}
	}
	if body["imageUrl"] != "/generated/generated_x.png" {
		t.Fatalf("unexpected imageUrl: %v", body["imageUrl"])
	}
}

func TestGenerateFailure(t *testing.T) {
	gen := &fakeGenerator{err: &generation.Error{
		Message: generation.ErrServiceUnavailable.Error(),
		Details: "probe failed",
		Err:     generation.ErrServiceUnavailable,
	}}
	router, _ := newTestRouter(t, gen, false, "")

	rec := postJSON(t, router, `{"prompt":"fox"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error != "Stable Diffusion WebUI is not running. Please start it first." || resp.Details != "probe failed" {
		t.Fatalf("unexpected error body: %+v", resp)
	}
}

func TestGeneratePlainError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection reset")}
	router, _ := newTestRouter(t, gen, true, "")

	rec := postJSON(t, router, `{"prompt":"fox"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "connection reset" {
		t.Fatalf("unexpected error body: %+v", resp)
	}
}

func TestGenerateBodyTooLarge(t *testing.T) {
	gen := &fakeGenerator{}
	store, err := storage.NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}
	router := NewRouter(Config{Generator: gen, Health: fakeHealth(true), Images: store, MaxBodyBytes: 16})

	rec := postJSON(t, router, `{"prompt":"this body is longer than sixteen bytes"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	for _, healthy := range []bool{true, false} {
		router, _ := newTestRouter(t, &fakeGenerator{}, healthy, "")
		router.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d", rec.Code)
		}
		var resp HealthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode health: %v", err)
		}
		if resp.Status != "ok" || resp.SDWebUIAvailable != healthy || resp.Timestamp != "2026-10-15T12:00:00.000Z" {
			t.Fatalf("unexpected health response: %+v", resp)
		}
	}
}

func TestServeGeneratedImage(t *testing.T) {
	router, store := newTestRouter(t, &fakeGenerator{}, true, "")

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	stored, err := store.StoreImage(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("StoreImage: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generated/"+stored.Filename, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Fatalf("body is not a png: %v", err)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generated/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing image: got status %d", rec.Code)
	}
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>panel</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	router, _ := newTestRouter(t, &fakeGenerator{}, true, dir)

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{path: "/app.js", status: http.StatusOK, want: "console.log(1)"},
		{path: "/img2img", status: http.StatusOK, want: "panel"},
		{path: "/", status: http.StatusOK, want: "panel"},
		{path: "/api/unknown", status: http.StatusNotFound, want: "Not found"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status || !strings.Contains(rec.Body.String(), tt.want) {
			t.Fatalf("%s: got %d %q", tt.path, rec.Code, rec.Body.String())
		}
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	router, _ := newTestRouter(t, &fakeGenerator{}, true, "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign site: %q", got)
	}
}
