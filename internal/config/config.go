// Package config holds the runtime configuration for drivesign.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel names accepted in push_channels. Selection is case-insensitive.
const (
	ChannelDingTalk   = "dingtalk"
	ChannelServerChan = "serverchan"
	ChannelTelegram   = "telegram"
	ChannelPushPlus   = "pushplus"
	ChannelMail       = "mail"
)

// Config holds runtime configuration for drivesign.
type Config struct {
	// RefreshTokens is the comma-delimited multi-account credential list.
	RefreshTokens string `json:"refresh_tokens" yaml:"refresh_tokens"`
	// PushChannels selects notification channels by name (comma-delimited,
	// case-insensitive). Empty means sign in without reporting.
	PushChannels string `json:"push_channels" yaml:"push_channels"`

	// SignInTimeout bounds each drive API round-trip.
	SignInTimeout time.Duration `json:"signin_timeout" yaml:"signin_timeout"`
	// Workers bounds how many accounts are signed in concurrently.
	// Default 1 (sequential); the drive API rate-limits per source IP.
	Workers int `json:"workers" yaml:"workers"`
	// NotificationLevel is "all", "failure" or "none".
	NotificationLevel string `json:"notification_level" yaml:"notification_level"`
	// DryRun signs accounts in but skips notification dispatch.
	DryRun bool `json:"dry_run" yaml:"dry_run"`
	// Interval switches the process into long-running mode, one pass per
	// tick. Zero means run once and exit (cron / Actions scheduling).
	Interval time.Duration `json:"interval" yaml:"interval"`

	// DingTalk work-notice channel
	DingTalkAppKey    string `json:"dingtalk_app_key" yaml:"dingtalk_app_key"`
	DingTalkAppSecret string `json:"dingtalk_app_secret" yaml:"dingtalk_app_secret"`
	DingTalkUserID    string `json:"dingtalk_user_id" yaml:"dingtalk_user_id"`

	// ServerChan keyed push channel
	ServerChanSendKey  string `json:"serverchan_send_key" yaml:"serverchan_send_key"`
	ServerChanEndpoint string `json:"serverchan_endpoint" yaml:"serverchan_endpoint"`

	// Telegram bot channel
	TelegramBotToken string `json:"telegram_bot_token" yaml:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id" yaml:"telegram_chat_id"`
	TelegramEndpoint string `json:"telegram_endpoint" yaml:"telegram_endpoint"`
	TelegramProxy    string `json:"telegram_proxy" yaml:"telegram_proxy"`

	// PushPlus token channel
	PushPlusToken string `json:"pushplus_token" yaml:"pushplus_token"`

	// Mail (SMTP) channel; exactly one receiver
	SMTPHost     string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `json:"smtp_port" yaml:"smtp_port"`
	SMTPTLS      bool   `json:"smtp_tls" yaml:"smtp_tls"`
	SMTPUser     string `json:"smtp_user" yaml:"smtp_user"`
	SMTPPass     string `json:"smtp_pass" yaml:"smtp_pass"`
	SMTPSender   string `json:"smtp_sender" yaml:"smtp_sender"`
	SMTPReceiver string `json:"smtp_receiver" yaml:"smtp_receiver"`

	// Metrics (opt-in, interval mode)
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPort    int  `json:"metrics_port" yaml:"metrics_port"`

	// InfluxDB (push)
	InfluxURL      string        `json:"influx_url" yaml:"influx_url"`
	InfluxToken    string        `json:"influx_token" yaml:"influx_token"`
	InfluxOrg      string        `json:"influx_org" yaml:"influx_org"`
	InfluxBucket   string        `json:"influx_bucket" yaml:"influx_bucket"`
	InfluxInterval time.Duration `json:"influx_interval" yaml:"influx_interval"`
}

// DefaultConfig returns a sane default configuration.
func DefaultConfig() *Config {
	return &Config{
		SignInTimeout:     10 * time.Second,
		Workers:           1,
		NotificationLevel: "all",

		MetricsEnabled: false,
		MetricsPort:    9090,

		InfluxInterval: 1 * time.Minute,
	}
}

// Channels returns the selected channel names, lowercased and trimmed, in
// selection order.
func (c *Config) Channels() []string {
	var names []string
	for _, part := range strings.Split(c.PushChannels, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ChannelSelected reports whether the named channel appears in PushChannels.
func (c *Config) ChannelSelected(name string) bool {
	for _, n := range c.Channels() {
		if n == name {
			return true
		}
	}
	return false
}

// Validate returns a list of non-fatal configuration warnings, such as
// channels that were selected but are missing required fields. A channel
// with incomplete configuration is skipped at dispatch time; the warning is
// the only trace of it.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{c.ChannelSelected(ChannelDingTalk) && (c.DingTalkAppKey == "" || c.DingTalkAppSecret == "" || c.DingTalkUserID == ""),
			"dingtalk selected but app key, secret or user id is missing"},
		{c.ChannelSelected(ChannelServerChan) && c.ServerChanSendKey == "",
			"serverchan selected but send key is missing"},
		{c.ChannelSelected(ChannelTelegram) && (c.TelegramBotToken == "" || c.TelegramChatID == ""),
			"telegram selected but bot token or chat id is missing"},
		{c.ChannelSelected(ChannelPushPlus) && c.PushPlusToken == "",
			"pushplus selected but token is missing"},
		{c.ChannelSelected(ChannelMail) && (c.SMTPHost == "" || c.SMTPPort == 0 || c.SMTPUser == "" || c.SMTPPass == "" || c.SMTPSender == "" || c.SMTPReceiver == ""),
			"mail selected but host, port, user, pass, sender or receiver is missing"},
		{c.Workers < 1, "workers below 1, treating as sequential"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	for _, name := range c.Channels() {
		if !knownChannel(name) {
			warnings = append(warnings, "unknown push channel: "+name)
		}
	}
	if lvl := c.NotificationLevel; lvl != "" && lvl != "all" && lvl != "failure" && lvl != "none" {
		warnings = append(warnings, "invalid notification_level: "+lvl+" (expected all, failure or none)")
	}
	return warnings
}

func knownChannel(name string) bool {
	switch name {
	case ChannelDingTalk, ChannelServerChan, ChannelTelegram, ChannelPushPlus, ChannelMail:
		return true
	}
	return false
}

// LoadConfigFromFile loads config from a YAML/JSON file on top of defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
