package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnvOverrides reads configuration values from DRIVESIGN_* environment
// variables and overrides fields in the provided Config. This is the path a
// GitHub Actions run uses: secrets arrive as env vars, not as a config file.
// Returns an error if parsing fails.
func ApplyEnvOverrides(cfg *Config) error {
	if err := applyCoreEnv(cfg); err != nil {
		return err
	}
	applyChannelCredentialEnv(cfg)
	if err := applySMTPEnv(cfg); err != nil {
		return err
	}
	if err := applyMetricsEnv(cfg); err != nil {
		return err
	}
	return applyInfluxEnv(cfg)
}

// setBoolEnv is a small helper to parse boolean environment variables.
func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}

func setDurationEnv(env string, setter func(time.Duration)) error {
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(d)
	}
	return nil
}

func applyCoreEnv(cfg *Config) error {
	if v := os.Getenv("DRIVESIGN_REFRESH_TOKENS"); v != "" {
		cfg.RefreshTokens = v
	}
	if v := os.Getenv("DRIVESIGN_PUSH_CHANNELS"); v != "" {
		cfg.PushChannels = v
	}
	if v := os.Getenv("DRIVESIGN_NOTIFICATION_LEVEL"); v != "" {
		cfg.NotificationLevel = v
	}
	if v := os.Getenv("DRIVESIGN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DRIVESIGN_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if err := setDurationEnv("DRIVESIGN_SIGNIN_TIMEOUT", func(d time.Duration) { cfg.SignInTimeout = d }); err != nil {
		return err
	}
	if err := setDurationEnv("DRIVESIGN_INTERVAL", func(d time.Duration) { cfg.Interval = d }); err != nil {
		return err
	}
	return setBoolEnv("DRIVESIGN_DRY_RUN", func(b bool) { cfg.DryRun = b })
}

// applyChannelCredentialEnv covers the plain string credentials of every
// push channel; none of them needs parsing.
func applyChannelCredentialEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"DRIVESIGN_DINGTALK_APP_KEY", &cfg.DingTalkAppKey},
		{"DRIVESIGN_DINGTALK_APP_SECRET", &cfg.DingTalkAppSecret},
		{"DRIVESIGN_DINGTALK_USER_ID", &cfg.DingTalkUserID},
		{"DRIVESIGN_SERVERCHAN_SEND_KEY", &cfg.ServerChanSendKey},
		{"DRIVESIGN_SERVERCHAN_ENDPOINT", &cfg.ServerChanEndpoint},
		{"DRIVESIGN_TELEGRAM_BOT_TOKEN", &cfg.TelegramBotToken},
		{"DRIVESIGN_TELEGRAM_CHAT_ID", &cfg.TelegramChatID},
		{"DRIVESIGN_TELEGRAM_ENDPOINT", &cfg.TelegramEndpoint},
		{"DRIVESIGN_TELEGRAM_PROXY", &cfg.TelegramProxy},
		{"DRIVESIGN_PUSHPLUS_TOKEN", &cfg.PushPlusToken},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func applySMTPEnv(cfg *Config) error {
	if v := os.Getenv("DRIVESIGN_SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("DRIVESIGN_SMTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DRIVESIGN_SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = p
	}
	if err := setBoolEnv("DRIVESIGN_SMTP_TLS", func(b bool) { cfg.SMTPTLS = b }); err != nil {
		return err
	}
	if v := os.Getenv("DRIVESIGN_SMTP_USER"); v != "" {
		cfg.SMTPUser = v
	}
	if v := os.Getenv("DRIVESIGN_SMTP_PASS"); v != "" {
		cfg.SMTPPass = v
	}
	if v := os.Getenv("DRIVESIGN_SMTP_SENDER"); v != "" {
		cfg.SMTPSender = v
	}
	if v := os.Getenv("DRIVESIGN_SMTP_RECEIVER"); v != "" {
		cfg.SMTPReceiver = v
	}
	return nil
}

func applyMetricsEnv(cfg *Config) error {
	if err := setBoolEnv("DRIVESIGN_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	if v := os.Getenv("DRIVESIGN_METRICS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DRIVESIGN_METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = p
	}
	return nil
}

func applyInfluxEnv(cfg *Config) error {
	if v := os.Getenv("DRIVESIGN_INFLUX_URL"); v != "" {
		cfg.InfluxURL = v
	}
	if v := os.Getenv("DRIVESIGN_INFLUX_TOKEN"); v != "" {
		cfg.InfluxToken = v
	}
	if v := os.Getenv("DRIVESIGN_INFLUX_ORG"); v != "" {
		cfg.InfluxOrg = v
	}
	if v := os.Getenv("DRIVESIGN_INFLUX_BUCKET"); v != "" {
		cfg.InfluxBucket = v
	}
	return setDurationEnv("DRIVESIGN_INFLUX_INTERVAL", func(d time.Duration) { cfg.InfluxInterval = d })
}
