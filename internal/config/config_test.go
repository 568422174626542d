package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
pricefeed:
  allow_mock: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Scheduler.Interval != 60*time.Second {
		t.Fatalf("默认巡检周期应为 60s, 实际 %s", cfg.Scheduler.Interval)
	}
	if cfg.Alerting.Cooldown != 60*time.Minute {
		t.Fatalf("默认冷却窗口应为 60m, 实际 %s", cfg.Alerting.Cooldown)
	}
	if cfg.Alerting.SignificantMovePct != 2.0 {
		t.Fatalf("默认显著波动阈值应为 2.0, 实际 %v", cfg.Alerting.SignificantMovePct)
	}
	if len(cfg.Alerting.Channels) != 1 || cfg.Alerting.Channels[0] != "email" {
		t.Fatalf("默认通道应为 email, 实际 %v", cfg.Alerting.Channels)
	}
	if cfg.Storage.DataDir != "data" {
		t.Fatalf("默认数据目录应为 data, 实际 %s", cfg.Storage.DataDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  interval: 5m
pricefeed:
  token: tk
alerting:
  cooldown: 30m
  significant_move_pct: 1.5
enrichment:
  enabled: true
  provider: google
  gemini:
    api_key: g-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("interval 覆盖未生效: %s", cfg.Scheduler.Interval)
	}
	if cfg.Alerting.Cooldown != 30*time.Minute {
		t.Fatalf("cooldown 覆盖未生效: %s", cfg.Alerting.Cooldown)
	}
	if NormalizeProvider(cfg.Enrichment.Provider) != "gemini" {
		t.Fatalf("google 别名应归一化为 gemini: %s", cfg.Enrichment.Provider)
	}
}

func TestLoadRequiresTokenOrMock(t *testing.T) {
	path := writeConfig(t, `
app:
  name: stockwatcher
`)
	if _, err := Load(path); err == nil {
		t.Fatal("缺少 pricefeed token 且未开启 mock 应报错")
	}
}

func TestValidateInterval(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  interval: 0s
pricefeed:
  allow_mock: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("非正巡检周期应报错")
	}
}

func TestValidateTelegram(t *testing.T) {
	path := writeConfig(t, `
pricefeed:
  allow_mock: true
alerting:
  telegram:
    enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("开启 Telegram 但缺少 bot_token 应报错")
	}
}

func TestValidateUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
pricefeed:
  allow_mock: true
enrichment:
  enabled: true
  provider: skynet
`)
	if _, err := Load(path); err == nil {
		t.Fatal("未知 provider 应报错")
	}
}

func TestNormalizeProvider(t *testing.T) {
	cases := map[string]string{
		"OpenAI":   "openai",
		"google":   "gemini",
		" Gemini ": "gemini",
		"deepseek": "deepseek",
	}
	for in, want := range cases {
		if got := NormalizeProvider(in); got != want {
			t.Fatalf("NormalizeProvider(%q) = %q, 期望 %q", in, got, want)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 1000}}
	if got := cfg.ResolveMaxPoints(0); got != 1000 {
		t.Fatalf("无覆盖时应取配置默认, 实际 %d", got)
	}
	if got := cfg.ResolveMaxPoints(50); got != 50 {
		t.Fatalf("CLI 覆盖应优先, 实际 %d", got)
	}
}
