package alerting

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestEmailNotifierSendsRenderedMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)

	notifier := NewEmailNotifier(EmailOptions{
		Host:     "smtp.example.com",
		Port:     25,
		Username: "bot@example.com",
		Password: "secret",
	}, testLogger())
	notifier.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotFrom = from
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("邮件发送应成功: %v", err)
	}

	if gotAddr != "smtp.example.com:25" {
		t.Fatalf("SMTP 地址不正确: %s", gotAddr)
	}
	if gotFrom != "bot@example.com" {
		t.Fatalf("发件人应回落到用户名: %s", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "owner@example.com" {
		t.Fatalf("收件人不正确: %v", gotTo)
	}
	if !strings.Contains(gotMsg, "600036.SH") {
		t.Fatal("正文应包含股票代码")
	}
	if !strings.Contains(gotMsg, "Subject: ") {
		t.Fatal("应包含 Subject 头")
	}
}

func TestEmailNotifierMissingCredentials(t *testing.T) {
	notifier := NewEmailNotifier(EmailOptions{Host: "smtp.example.com", Port: 25}, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("缺少账号密码应报错")
	}
}

func TestEmailNotifierMissingRecipient(t *testing.T) {
	notifier := NewEmailNotifier(EmailOptions{
		Host: "smtp.example.com", Port: 25, Username: "bot@example.com", Password: "secret",
	}, testLogger())

	note := testNote()
	note.Recipient = ""
	if err := notifier.Notify(context.Background(), note); err == nil {
		t.Fatal("缺少收件人应报错")
	}
}

func TestRenderEmailDirection(t *testing.T) {
	note := testNote()
	note.Direction = DirectionDown

	subject, body := renderEmail(note)
	if !strings.Contains(subject, "📉") {
		t.Fatalf("下跌告警主题应带下跌符号: %q", subject)
	}
	if !strings.Contains(body, "下跌") {
		t.Fatal("正文应描述下跌方向")
	}
}
