package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var telegramAPIBase = "https://api.telegram.org"

// Telegram posts the report to a chat through the bot API. When Proxy is set
// the request is routed through it; http://, https:// and socks5:// proxies
// are supported by the transport.
type Telegram struct {
	BotToken string
	ChatID   string
	// Endpoint overrides the default API base, for bot-API mirrors.
	Endpoint string
	// Proxy is an optional outbound proxy URL.
	Proxy string
}

func (t *Telegram) Name() string { return "Telegram" }

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	client, err := t.client()
	if err != nil {
		return err
	}
	base := t.Endpoint
	if base == "" {
		base = telegramAPIBase
	}
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(base, "/"), t.BotToken)
	payload := map[string]string{
		"chat_id":    t.ChatID,
		"text":       fmt.Sprintf("<b>%s</b>\n\n%s", msg.Title, msg.HTML()),
		"parse_mode": "HTML",
	}
	return postJSON(ctx, client, apiURL, payload)
}

func (t *Telegram) client() (*http.Client, error) {
	if t.Proxy == "" {
		return nil, nil // dispatcher default
	}
	u, err := url.Parse(t.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram proxy: %w", err)
	}
	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
	}, nil
}
