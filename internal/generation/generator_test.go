package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cheahjs/sdwebui-panel/internal/params"
	"github.com/cheahjs/sdwebui-panel/internal/sdwebui"
	"github.com/cheahjs/sdwebui-panel/internal/storage"
)

func encodedPNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// fakeWebUI records every request and answers with a canned response.
type fakeWebUI struct {
	t        *testing.T
	mu       sync.Mutex
	probeOK  bool
	status   int
	body     string
	calls    []string
	payloads []map[string]interface{}
}

func (f *fakeWebUI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if r.URL.Path == "/sdapi/v1/progress" {
		if !f.probeOK {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"progress":0,"eta_relative":0}`))
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		f.t.Errorf("decode payload: %v", err)
	}
	f.payloads = append(f.payloads, payload)
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	_, _ = w.Write([]byte(f.body))
}

func (f *fakeWebUI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeWebUI) Payload(i int) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[i]
}

func newTestGenerator(t *testing.T, fake *fakeWebUI) (*Generator, string) {
	t.Helper()
	fake.t = t
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	client, err := sdwebui.New(sdwebui.Config{Host: ts.URL})
	if err != nil {
		t.Fatalf("sdwebui.New: %v", err)
	}
	dir := t.TempDir()
	store, err := storage.NewImageStore(dir)
	if err != nil {
		t.Fatalf("NewImageStore: %v", err)
	}
	gen, err := New(Config{API: client, Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gen, dir
}

func TestGenerateTextToImageDefaults(t *testing.T) {
	fake := &fakeWebUI{probeOK: true, body: `{"images":["` + encodedPNG(t) + `"],"info":"{\"seed\":42}"}`}
	gen, _ := newTestGenerator(t, fake)

	result, err := gen.Generate(context.Background(), params.Parameters{Prompt: "a red fox in snow"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 2 || calls[0] != "GET /sdapi/v1/progress" || calls[1] != "POST /sdapi/v1/txt2img" {
		t.Fatalf("unexpected upstream calls: %v", calls)
	}
	payload := fake.Payload(0)
	if payload["sampler_name"] != params.DefaultSampler || payload["steps"] != float64(35) {
		t.Fatalf("unexpected payload defaults: %v", payload)
	}
	if payload["scheduler"] != "BETA" || payload["cfg_scale"] != 4.0 {
		t.Fatalf("unexpected scheduler/cfg: %v", payload)
	}
	if payload["negative_prompt"] != params.DefaultNegativePrompt {
		t.Fatalf("default negative prompt not applied: %v", payload["negative_prompt"])
	}
	if _, ok := payload["sampler"]; ok {
		t.Fatalf("sampler must be renamed to sampler_name")
	}

	if !result.Success || result.Prompt != "a red fox in snow" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.HasPrefix(result.ImageURL, "/generated/generated_") || !strings.HasSuffix(result.ImageURL, ".png") {
		t.Fatalf("unexpected image url: %s", result.ImageURL)
	}
	if _, err := os.Stat(result.ImagePath); err != nil {
		t.Fatalf("image not written: %v", err)
	}
	if string(result.Info) != `"{\"seed\":42}"` {
		t.Fatalf("info not passed through: %s", result.Info)
	}
}

func TestGenerateImageToImageWithMask(t *testing.T) {
	fake := &fakeWebUI{probeOK: true, body: `{"images":["` + encodedPNG(t) + `"]}`}
	gen, _ := newTestGenerator(t, fake)

	result, err := gen.Generate(context.Background(), params.Parameters{
		Prompt:     "inpaint",
		InitImages: []string{"aW5pdA=="},
		Mask:       "bWFzaw==",
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if calls := fake.Calls(); calls[1] != "POST /sdapi/v1/img2img" {
		t.Fatalf("expected img2img call, got %v", calls)
	}
	payload := fake.Payload(0)
	if payload["mask"] != "bWFzaw==" || payload["mask_blur"] != float64(4) {
		t.Fatalf("mask fields missing: %v", payload)
	}
	for _, key := range []string{"inpainting_fill", "inpaint_full_res", "inpaint_full_res_padding", "inpainting_mask_invert"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing %s in payload", key)
		}
	}
	if string(result.Info) != "{}" {
		t.Fatalf("missing info should become {}: %s", result.Info)
	}
	if result.Parameters.InitImages != nil || result.Parameters.Mask != "" {
		t.Fatalf("echoed parameters must not carry image payloads")
	}
}

func TestGenerateProbeFailureSkipsGeneration(t *testing.T) {
	fake := &fakeWebUI{probeOK: false}
	gen, _ := newTestGenerator(t, fake)

	_, err := gen.Generate(context.Background(), params.Parameters{Prompt: "fox"})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if calls := fake.Calls(); len(calls) != 1 {
		t.Fatalf("generation must not be attempted, calls: %v", calls)
	}
}

func TestGenerateBlankPrompt(t *testing.T) {
	fake := &fakeWebUI{probeOK: true}
	gen, _ := newTestGenerator(t, fake)

	if _, err := gen.Generate(context.Background(), params.Parameters{Prompt: "  "}); !errors.Is(err, params.ErrPromptRequired) {
		t.Fatalf("expected ErrPromptRequired, got %v", err)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Fatalf("no upstream call expected, got %v", calls)
	}
}

func TestGenerateNoImage(t *testing.T) {
	fake := &fakeWebUI{probeOK: true, body: `{"images":[]}`}
	gen, _ := newTestGenerator(t, fake)

	_, err := gen.Generate(context.Background(), params.Parameters{Prompt: "fox"})
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestGenerateNaNRemediation(t *testing.T) {
	fake := &fakeWebUI{probeOK: true, status: http.StatusInternalServerError, body: `{"error":"NansException","detail":"","errors":"A tensor with all NaNs"}`}
	gen, _ := newTestGenerator(t, fake)

	_, err := gen.Generate(context.Background(), params.Parameters{Prompt: "fox"})
	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if !strings.HasPrefix(genErr.Message, "NaN Error:") {
		t.Fatalf("unexpected message: %s", genErr.Message)
	}
	for _, step := range []string{
		"1. In Stable Diffusion WebUI Settings, enable 'Upcast cross attention layer to float32'",
		"2. Restart WebUI with --no-half command line argument",
		"3. Try a different model or reduce image resolution",
		"4. Use --disable-nan-check to bypass this check (not recommended)",
	} {
		if !strings.Contains(genErr.Message, step) {
			t.Fatalf("missing remediation step %q", step)
		}
	}
	raw, ok := genErr.Details.(json.RawMessage)
	if !ok || !strings.Contains(string(raw), "NansException") {
		t.Fatalf("details should carry the upstream body: %#v", genErr.Details)
	}
}

func TestGenerateOtherUpstreamError(t *testing.T) {
	fake := &fakeWebUI{probeOK: true, status: http.StatusInternalServerError, body: `{"error":"OutOfMemoryError","detail":"CUDA out of memory"}`}
	gen, _ := newTestGenerator(t, fake)

	_, err := gen.Generate(context.Background(), params.Parameters{Prompt: "fox"})
	if err == nil || err.Error() != "Stable Diffusion WebUI Error: OutOfMemoryError" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateUnstructuredError(t *testing.T) {
	fake := &fakeWebUI{probeOK: true, status: http.StatusBadGateway, body: `<html>bad gateway</html>`}
	gen, _ := newTestGenerator(t, fake)

	_, err := gen.Generate(context.Background(), params.Parameters{Prompt: "fox"})
	var apiErr *sdwebui.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("raw upstream error should be kept, got %T: %v", err, err)
	}
	if strings.HasPrefix(err.Error(), "Stable Diffusion WebUI Error") {
		t.Fatalf("unstructured error must not be prefixed: %v", err)
	}
}

func TestConvertRequestHighResDefaults(t *testing.T) {
	p, err := params.Parameters{Prompt: "p", Width: 512, HRScale: 2.0}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	req := convertRequest(p)
	if req.HRResizeX != 1024 {
		t.Fatalf("hr_resize_x: got %d want 1024", req.HRResizeX)
	}
	if req.HRSecondPassSteps != 17 || req.HRUpscaler != "Latent" {
		t.Fatalf("unexpected hr fields: %+v", req)
	}
	if req.InitImages != nil || req.MaskBlur != nil {
		t.Fatalf("txt2img request must not carry img2img fields")
	}
}

func TestConvertRequestIgnoresMaskWithoutInitImages(t *testing.T) {
	p, err := params.Parameters{Prompt: "p", Mask: "bWFzaw=="}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	req := convertRequest(p)
	if req.Mask != "" || req.MaskBlur != nil {
		t.Fatalf("mask must only be forwarded for img2img: %+v", req)
	}
}

func TestDecodeImageAcceptsDataURL(t *testing.T) {
	data, err := decodeImage("data:image/png;base64,aGVsbG8=")
	if err != nil || string(data) != "hello" {
		t.Fatalf("unexpected decode: %q %v", data, err)
	}
	if _, err := decodeImage("%%%"); err == nil {
		t.Fatalf("expected decode error")
	}
}
