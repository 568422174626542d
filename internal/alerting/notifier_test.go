package alerting

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
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/enrichment"
)

func testNote() Notification {
	return Notification{
		Code:        "600036.SH",
		Name:        "招商银行",
		Direction:   DirectionUp,
		Price:       decimal.NewFromInt(51),
		Threshold:   decimal.NewFromInt(50),
		TriggeredAt: time.Now(),
		Recipient:   "owner@example.com",
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "600036.SH") {
		t.Fatalf("消息应包含股票代码: %q", received["text"])
	}
	if !strings.Contains(received["text"], "上涨") {
		t.Fatalf("UP 方向应渲染为上涨: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(ctx context.Context, note Notification) error {
	s.calls++
	return s.err
}

func TestFanoutDeliversToAllChannels(t *testing.T) {
	first := &stubNotifier{}
	second := &stubNotifier{err: errors.New("boom")}

	fanout := NewFanout([]Notifier{first, second}, testLogger())
	err := fanout.Notify(context.Background(), testNote())

	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("每个通道都应被调用一次: %d/%d", first.calls, second.calls)
	}
	if err == nil {
		t.Fatal("任一通道失败时 Fanout 应返回错误")
	}
}

func TestRenderAnalysis(t *testing.T) {
	if got := renderAnalysis(nil); got != "" {
		t.Fatalf("无分析结果应返回空串, 实际 %q", got)
	}

	failed := &enrichment.Result{Failed: true, Message: "api key not configured"}
	if got := renderAnalysis(failed); !strings.Contains(got, "暂不可用") {
		t.Fatalf("失败结果应标记为暂不可用: %q", got)
	}

	ok := &enrichment.Result{Score: 75, Recommendation: "Hold", TechnicalSummary: "震荡偏强"}
	got := renderAnalysis(ok)
	if !strings.Contains(got, "75/100") || !strings.Contains(got, "Hold") {
		t.Fatalf("摘要应包含评分与建议: %q", got)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
