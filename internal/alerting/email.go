package alerting

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SendFunc delivers a rendered message. Replaceable in tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailOptions parameterise the SMTP notifier.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// EmailNotifier delivers alerts to the instrument owner's mailbox.
type EmailNotifier struct {
	opts   EmailOptions
	send   SendFunc
	logger zerolog.Logger
}

// NewEmailNotifier 构造 SMTP 告警器。
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Sender == "" {
		opts.Sender = opts.Username
	}
	return &EmailNotifier{
		opts:   opts,
		send:   smtp.SendMail,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Notify implements Notifier.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if n.opts.Username == "" || n.opts.Password == "" {
		return errors.New("smtp 账号密码未配置，无法发送邮件")
	}
	if note.Recipient == "" {
		return errors.New("notification has no recipient")
	}

	subject, body := renderEmail(note)

	header := strings.Builder{}
	header.WriteString(fmt.Sprintf("From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", "股票价格提醒"), n.opts.Sender))
	header.WriteString(fmt.Sprintf("To: %s\r\n", note.Recipient))
	header.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	header.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	auth := smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	msg := []byte(header.String() + body)

	if err := n.send(addr, auth, n.opts.Sender, []string{note.Recipient}, msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	n.logger.Info().Str("recipient", note.Recipient).Str("code", note.Code).Msg("告警邮件已发送")
	return nil
}

func renderEmail(note Notification) (string, string) {
	direction := "上涨"
	arrow := "📈"
	if note.Direction == DirectionDown {
		direction = "下跌"
		arrow = "📉"
	}

	subject := fmt.Sprintf("%s 股票价格提醒: %s已%s至阈值价格", arrow, note.Name, direction)

	builder := strings.Builder{}
	builder.WriteString("尊敬的用户：\n\n")
	builder.WriteString(fmt.Sprintf("您关注的股票 %s(%s) 价格已发生重要变动。\n\n", note.Name, note.Code))
	builder.WriteString(fmt.Sprintf("当前价格: %s\n", note.Price.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("阈值价格: %s\n", note.Threshold.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("变动方向: %s %s\n", direction, arrow))
	builder.WriteString(fmt.Sprintf("提醒时间: %s\n", note.TriggeredAt.UTC().Format(time.RFC3339)))

	if summary := renderAnalysis(note.Analysis); summary != "" {
		builder.WriteString("\n---------- AI分析 ----------\n")
		builder.WriteString(summary)
		builder.WriteString("\n----------------------------\n")
	}

	builder.WriteString("\n请及时查看您的股票交易账户，并根据市场情况做出相应决策。\n")
	builder.WriteString("\n--------------------------------\n此邮件由股票盯盘系统自动发送，请勿回复。\n")

	return subject, builder.String()
}

var _ Notifier = (*EmailNotifier)(nil)
