package design

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/providers/fal"
)

func TestComposeRequiresBothImages(t *testing.T) {
	c := NewComposer(fal.NewClient(fal.Options{}), "fal-ai/nano-banana/edit")
	cases := []ComposeRequest{
		{Foreground: []byte("fg")},
		{Background: []byte("bg")},
	}
	for _, req := range cases {
		_, err := c.Compose(context.Background(), req)
		f, ok := domain.FailureFrom(err)
		if !ok || f.Code != 400 {
			t.Errorf("Compose(%+v) err = %v, want a 400 failure", req, err)
		}
	}
}

func TestComposeSendsOrderedImagesAndPrompt(t *testing.T) {
	var input map[string]any
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	composed := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("blended"))
	mux.HandleFunc("POST /{model...}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&input)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-1",
			"status_url":   srv.URL + "/queue/status",
			"response_url": srv.URL + "/queue/response",
		})
	})
	mux.HandleFunc("GET /queue/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "COMPLETED"})
	})
	mux.HandleFunc("GET /queue/response", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"images": []any{composed}})
	})

	client := fal.NewClient(fal.Options{
		QueueURL:     srv.URL,
		HTTPClient:   srv.Client(),
		PollInterval: time.Millisecond,
	})
	c := NewComposer(client, "fal-ai/nano-banana/edit")

	out, err := c.Compose(context.Background(), ComposeRequest{
		Background: []byte("bg-bytes"),
		Foreground: []byte("fg-bytes"),
		APIKey:     "secret",
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if string(out) != "blended" {
		t.Fatalf("out = %q", out)
	}

	urls, ok := input["image_urls"].([]any)
	if !ok || len(urls) != 2 {
		t.Fatalf("image_urls = %v", input["image_urls"])
	}
	wantBg := "base64," + base64.StdEncoding.EncodeToString([]byte("bg-bytes"))
	if !strings.HasSuffix(urls[0].(string), wantBg) {
		t.Error("background is not the first image url")
	}
	prompt, _ := input["prompt"].(string)
	if prompt != DefaultInstruction() {
		t.Errorf("prompt = %q, want default instruction", prompt)
	}
}

func TestDefaultInstruction(t *testing.T) {
	got := DefaultInstruction()
	for _, want := range []string{"pedestal", "shadow", "aspect ratio", "Do not crop"} {
		if !strings.Contains(got, want) {
			t.Errorf("instruction missing %q", want)
		}
	}
}
