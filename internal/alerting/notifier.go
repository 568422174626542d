package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/enrichment"
)

// Notification 封装一次告警的投递上下文。
type Notification struct {
	Code        string
	Name        string
	Direction   Direction
	Price       decimal.Decimal
	Threshold   decimal.Decimal
	TriggeredAt time.Time
	Recipient   string
	Analysis    *enrichment.Result
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Fanout dispatches one notification across every configured channel.
// Channel failures are collected, never retried.
type Fanout struct {
	targets []Notifier
	logger  zerolog.Logger
}

// NewFanout builds a fan-out notifier.
func NewFanout(targets []Notifier, logger zerolog.Logger) *Fanout {
	return &Fanout{targets: targets, logger: logger.With().Str("component", "alert_fanout").Logger()}
}

// Notify implements Notifier.
func (f *Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, target := range f.targets {
		if err := target.Notify(ctx, note); err != nil {
			f.logger.Error().Err(err).Str("code", note.Code).Msg("告警通道投递失败")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("code", note.Code).
		Str("direction", string(note.Direction)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	direction := "上涨"
	if note.Direction == DirectionDown {
		direction = "下跌"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[股票价格预警] %s(%s)\n", note.Name, note.Code))
	builder.WriteString(fmt.Sprintf("当前价格: %s 已%s至阈值 %s\n", note.Price.StringFixed(2), direction, note.Threshold.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("触发时间: %s\n", note.TriggeredAt.UTC().Format(time.RFC3339)))
	if summary := renderAnalysis(note.Analysis); summary != "" {
		builder.WriteString("\nAI分析: ")
		builder.WriteString(summary)
	}
	return builder.String()
}

// renderAnalysis condenses an enrichment result to one line of commentary.
func renderAnalysis(res *enrichment.Result) string {
	if res == nil {
		return ""
	}
	if res.Failed {
		return fmt.Sprintf("暂不可用 (%s)", res.Message)
	}
	return fmt.Sprintf("评分 %d/100，建议 %s。%s", res.Score, res.Recommendation, res.TechnicalSummary)
}

var _ Notifier = (*TelegramNotifier)(nil)
var _ Notifier = (*Fanout)(nil)
