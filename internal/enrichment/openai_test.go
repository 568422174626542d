package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestChatProviderSuccess(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  hello  "}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", srv.URL, time.Second, zerolog.Nop())
	content, err := p.Complete(context.Background(), "prompt", "gpt-4o")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if content != "hello" {
		t.Fatalf("应去除首尾空白, 实际 %q", content)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization 头不正确: %s", gotAuth)
	}
	if gotReq.Model != "gpt-4o" || len(gotReq.Messages) != 2 {
		t.Fatalf("请求体不正确: %+v", gotReq)
	}
}

func TestChatProviderStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		code   ErrorCode
	}{
		{http.StatusNotFound, CodeNotFound},
		{http.StatusUnauthorized, CodeAuthInvalid},
		{http.StatusForbidden, CodeAuthInvalid},
		{http.StatusTooManyRequests, CodeQuotaExhausted},
		{http.StatusInternalServerError, CodeOther},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "nope"},
			})
		}))

		p := NewOpenAI("sk-test", srv.URL, time.Second, zerolog.Nop())
		_, err := p.Complete(context.Background(), "prompt", "gpt-4o")
		srv.Close()

		if err == nil {
			t.Fatalf("HTTP %d 应报错", tc.status)
		}
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("应返回分类错误: %v", err)
		}
		if perr.Code != tc.code {
			t.Fatalf("HTTP %d 应映射为 %s, 实际 %s", tc.status, tc.code, perr.Code)
		}
	}
}

func TestChatProviderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewDeepSeek("sk-test", srv.URL, time.Second, zerolog.Nop())
	if _, err := p.Complete(context.Background(), "prompt", "deepseek-chat"); err == nil {
		t.Fatal("空 choices 应报错")
	}
}

func TestChatProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", srv.URL, time.Second, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, "prompt", "gpt-4o")
	if err == nil {
		t.Fatal("超时应报错")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != CodeTimeout {
		t.Fatalf("超时应映射为 timeout 错误: %v", err)
	}
}
