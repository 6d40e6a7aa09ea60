package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drivesign/drivesign/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	c := config.DefaultConfig()
	if c.SignInTimeout == 0 {
		t.Fatal("expected a default sign-in timeout")
	}
	if c.Workers != 1 {
		t.Fatalf("expected sequential default, got %d workers", c.Workers)
	}
	if c.NotificationLevel != "all" {
		t.Fatalf("unexpected default notification level %q", c.NotificationLevel)
	}
	if c.Interval != 0 {
		t.Fatalf("expected run-once default, got interval %v", c.Interval)
	}
}

func TestChannelsCaseInsensitive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushChannels = "Telegram, PUSHPLUS ,mail"
	got := cfg.Channels()
	want := []string{"telegram", "pushplus", "mail"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if !cfg.ChannelSelected(config.ChannelTelegram) {
		t.Fatal("telegram should be selected")
	}
	if cfg.ChannelSelected(config.ChannelDingTalk) {
		t.Fatal("dingtalk should not be selected")
	}
}

func TestChannelsEmpty(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := cfg.Channels(); len(got) != 0 {
		t.Fatalf("expected no channels, got %v", got)
	}
}

func TestValidateWarnings(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*config.Config)
	}{
		{"dingtalk missing secret", func(c *config.Config) {
			c.PushChannels = "dingtalk"
			c.DingTalkAppKey = "ak"
		}},
		{"serverchan missing key", func(c *config.Config) {
			c.PushChannels = "serverchan"
		}},
		{"telegram missing chat id", func(c *config.Config) {
			c.PushChannels = "telegram"
			c.TelegramBotToken = "tok"
		}},
		{"mail missing receiver", func(c *config.Config) {
			c.PushChannels = "mail"
			c.SMTPHost = "mail.test"
			c.SMTPPort = 25
			c.SMTPSender = "s@x"
		}},
		{"mail missing credentials", func(c *config.Config) {
			c.PushChannels = "mail"
			c.SMTPHost = "mail.test"
			c.SMTPPort = 25
			c.SMTPSender = "s@x"
			c.SMTPReceiver = "r@x"
		}},
		{"unknown channel", func(c *config.Config) {
			c.PushChannels = "pigeon"
		}},
		{"bad notification level", func(c *config.Config) {
			c.NotificationLevel = "sometimes"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.tweak(cfg)
			if len(cfg.Validate()) == 0 {
				t.Fatal("expected warnings, got none")
			}
		})
	}
}

func TestValidateCleanConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushChannels = "pushplus"
	cfg.PushPlusToken = "tok"
	if w := cfg.Validate(); len(w) != 0 {
		t.Fatalf("unexpected warnings: %v", w)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
refresh_tokens: "tokA,tokB"
push_channels: "telegram,mail"
telegram_bot_token: "tok"
telegram_chat_id: "123"
signin_timeout: 5s
workers: 3
smtp_host: "mail.test"
smtp_port: 465
smtp_tls: true
smtp_sender: "s@x"
smtp_receiver: "r@x"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RefreshTokens != "tokA,tokB" {
		t.Errorf("unexpected tokens %q", cfg.RefreshTokens)
	}
	if cfg.SignInTimeout != 5*time.Second {
		t.Errorf("unexpected timeout %v", cfg.SignInTimeout)
	}
	if cfg.Workers != 3 {
		t.Errorf("unexpected workers %d", cfg.Workers)
	}
	if !cfg.SMTPTLS || cfg.SMTPPort != 465 {
		t.Errorf("smtp fields not loaded: %+v", cfg)
	}
	// defaults retained for fields not present in the file
	if cfg.NotificationLevel != "all" {
		t.Errorf("default lost: %q", cfg.NotificationLevel)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := config.LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
