package notify

import (
	"context"
	"fmt"
	"strings"
)

// --- ServerChan (key-authenticated push) ---
var serverChanAPIBase = "https://sctapi.ftqq.com"

type ServerChan struct {
	SendKey string
	// Endpoint overrides the default API base, for self-hosted relays.
	Endpoint string
}

func (s *ServerChan) Name() string { return "ServerChan" }
func (s *ServerChan) Send(ctx context.Context, msg Message) error {
	base := s.Endpoint
	if base == "" {
		base = serverChanAPIBase
	}
	url := fmt.Sprintf("%s/%s.send", strings.TrimRight(base, "/"), s.SendKey)
	payload := map[string]string{"title": msg.Title, "desp": msg.Body}
	return postJSON(ctx, nil, url, payload)
}

// --- PushPlus (token-authenticated push) ---
var pushPlusAPIURL = "http://www.pushplus.plus/send"

type PushPlus struct {
	Token string
}

func (p *PushPlus) Name() string { return "PushPlus" }
func (p *PushPlus) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{"token": p.Token, "title": msg.Title, "content": msg.Body}
	return postJSON(ctx, nil, pushPlusAPIURL, payload)
}
