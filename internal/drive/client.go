// Package drive wraps the cloud-drive API calls behind the daily sign-in:
// the refresh-token exchange and the sign-in call itself.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drivesign/drivesign/internal/account"
	"github.com/drivesign/drivesign/internal/logging"
)

const (
	defaultAuthURL   = "https://auth.aliyundrive.com/v2/account/token"
	defaultSignInURL = "https://member.aliyundrive.com/v1/activity/sign_in_list"

	// DefaultTimeout bounds each API round-trip. The upstream API answers in
	// well under a second; 10s leaves room for slow runners without letting a
	// scheduled job hang.
	DefaultTimeout = 10 * time.Second
)

// Client performs the two-step sign-in: exchange the refresh token for an
// access token, then record today's sign-in. Zero value is not usable; use New.
type Client struct {
	httpClient *http.Client
	authURL    string
	signInURL  string
}

// Option adjusts a Client. Used by tests to point at a local server.
type Option func(*Client)

// WithBaseURLs overrides the auth and sign-in endpoints.
func WithBaseURLs(authURL, signInURL string) Option {
	return func(c *Client) {
		c.authURL = authURL
		c.signInURL = signInURL
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New builds a sign-in client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		authURL:    defaultAuthURL,
		signInURL:  defaultSignInURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tokenResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserName     string `json:"user_name"`
}

type signInReward struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type signInLog struct {
	Day      int           `json:"day"`
	Status   string        `json:"status"`
	IsReward bool          `json:"isReward"`
	Reward   *signInReward `json:"reward"`
}

type signInResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Result  struct {
		SignInCount int         `json:"signInCount"`
		SignInLogs  []signInLog `json:"signInLogs"`
	} `json:"result"`
}

// SignIn signs one account in. It never returns an error: network failures,
// rejected tokens, malformed bodies and business-level rejections all map to
// an Outcome variant so the caller can keep iterating the batch.
func (c *Client) SignIn(ctx context.Context, cred account.Credential) Outcome {
	tok, err := c.exchangeToken(ctx, cred.Token())
	if err != nil {
		logging.Get().Error().Err(err).Str("account", cred.Label()).Msg("token exchange failed")
		return failure(err.Error())
	}

	out, err := c.recordSignIn(ctx, tok.AccessToken)
	if err != nil {
		logging.Get().Error().Err(err).Str("account", tok.UserName).Msg("sign-in failed")
		o := failure(err.Error())
		o.UserName = tok.UserName
		o.NewRefreshToken = tok.RefreshToken
		return o
	}

	out.UserName = tok.UserName
	out.NewRefreshToken = tok.RefreshToken
	logging.Get().Info().
		Str("account", tok.UserName).
		Str("status", out.Status.String()).
		Int("count", out.SignInCount).
		Msg("sign-in completed")
	return out
}

// exchangeToken trades the long-lived refresh token for a session.
func (c *Client) exchangeToken(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	body, err := c.postJSON(ctx, c.authURL, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}, "")
	if err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	switch tok.Code {
	case "":
	case "RefreshTokenExpired", "InvalidParameter.RefreshToken":
		return nil, fmt.Errorf("refresh token rejected: %s", tok.Code)
	default:
		return nil, fmt.Errorf("token exchange error %s: %s", tok.Code, tok.Message)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tok, nil
}

// recordSignIn performs the sign-in call and interprets the business response.
func (c *Client) recordSignIn(ctx context.Context, accessToken string) (Outcome, error) {
	body, err := c.postJSON(ctx, c.signInURL, map[string]string{}, accessToken)
	if err != nil {
		return Outcome{}, err
	}

	var resp signInResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Outcome{}, fmt.Errorf("malformed sign-in response: %w", err)
	}
	if !resp.Success {
		if isAlreadySigned(resp.Code, resp.Message) {
			return Outcome{Status: StatusAlreadySigned, SignInCount: resp.Result.SignInCount}, nil
		}
		if resp.Code == "" && resp.Message == "" {
			return Outcome{}, fmt.Errorf("sign-in rejected with empty response")
		}
		return Outcome{}, fmt.Errorf("sign-in rejected %s: %s", resp.Code, resp.Message)
	}

	return Outcome{
		Status:      StatusSuccess,
		SignInCount: resp.Result.SignInCount,
		Reward:      todaysReward(resp.Result.SignInLogs),
	}, nil
}

// isAlreadySigned detects the duplicate-sign-in business response.
func isAlreadySigned(code, message string) bool {
	if code == "DuplicateSignIn" {
		return true
	}
	m := strings.ToLower(message)
	return strings.Contains(m, "already") && strings.Contains(m, "sign")
}

// todaysReward finds today's entry in the sign-in log: the last non-miss day
// before the first miss, mirroring how the activity API orders the month.
func todaysReward(logs []signInLog) string {
	var today *signInLog
	for i := range logs {
		if logs[i].Status == "miss" {
			if i > 0 {
				today = &logs[i-1]
			}
			break
		}
	}
	if today == nil && len(logs) > 0 {
		// no miss days: the month is fully signed, today's entry is the last
		today = &logs[len(logs)-1]
	}
	if today == nil || !today.IsReward || today.Reward == nil {
		return ""
	}
	return strings.TrimSpace(today.Reward.Name + " " + today.Reward.Description)
}

// postJSON POSTs a JSON payload and returns the raw response body. A non-2xx
// status is an error; the body is still read first so callers can log it.
func (c *Client) postJSON(ctx context.Context, url string, payload any, bearer string) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return body, nil
}
