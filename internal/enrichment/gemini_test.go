package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestGeminiSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-pro:generateContent") {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "g-key" {
			t.Fatalf("key 参数不正确: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]string{{"text": "analysis text"}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer srv.Close()

	g := NewGemini("g-key", srv.URL, time.Second, zerolog.Nop())
	content, err := g.Complete(context.Background(), "prompt", "gemini-pro")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if content != "analysis text" {
		t.Fatalf("内容解析不正确: %q", content)
	}
}

func TestGeminiContentTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"text": "direct text"}},
			},
		})
	}))
	defer srv.Close()

	g := NewGemini("g-key", srv.URL, time.Second, zerolog.Nop())
	content, err := g.Complete(context.Background(), "prompt", "gemini-pro")
	if err != nil {
		t.Fatalf("content.text 形态应被兼容: %v", err)
	}
	if content != "direct text" {
		t.Fatalf("内容解析不正确: %q", content)
	}
}

func TestGeminiModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "model not found"},
		})
	}))
	defer srv.Close()

	g := NewGemini("g-key", srv.URL, time.Second, zerolog.Nop())
	_, err := g.Complete(context.Background(), "prompt", "gemini-9000")
	if err == nil {
		t.Fatal("404 应报错")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != CodeNotFound {
		t.Fatalf("404 应映射为 not_found: %v", err)
	}
}

func TestGeminiNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	g := NewGemini("g-key", srv.URL, time.Second, zerolog.Nop())
	if _, err := g.Complete(context.Background(), "prompt", "gemini-pro"); err == nil {
		t.Fatal("空 candidates 应报错")
	}
}
