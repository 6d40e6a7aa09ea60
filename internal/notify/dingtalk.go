package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var dingTalkAPIBase = "https://oapi.dingtalk.com"

// DingTalk sends the report as a work notice to a single user. The token
// endpoint requires a timestamped HMAC-SHA256 signature over the app key.
type DingTalk struct {
	AppKey    string
	AppSecret string
	UserID    string
}

func (d *DingTalk) Name() string { return "DingTalk" }

func (d *DingTalk) Send(ctx context.Context, msg Message) error {
	token, err := d.fetchAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("dingtalk token: %w", err)
	}
	payload := map[string]string{
		"userid":  d.UserID,
		"title":   msg.Title,
		"content": msg.Body,
	}
	return postJSON(ctx, nil, fmt.Sprintf("%s/message/send?access_token=%s", dingTalkAPIBase, token), payload)
}

// sign computes hex(HMAC-SHA256(secret, appKey + "\n" + timestamp)).
func (d *DingTalk) sign(timestamp string) string {
	h := hmac.New(sha256.New, []byte(d.AppSecret))
	h.Write([]byte(d.AppKey + "\n" + timestamp))
	return hex.EncodeToString(h.Sum(nil))
}

func (d *DingTalk) fetchAccessToken(ctx context.Context) (string, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	u := fmt.Sprintf("%s/gettoken?appkey=%s&timestamp=%s&signature=%s",
		dingTalkAPIBase, d.AppKey, timestamp, d.sign(timestamp))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := defaultHTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	var tok struct {
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", err
	}
	if tok.ErrCode != 0 {
		return "", fmt.Errorf("errcode %d: %s", tok.ErrCode, tok.ErrMsg)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return tok.AccessToken, nil
}
