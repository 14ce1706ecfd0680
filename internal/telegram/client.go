// Package telegram is a small Bot API client for replies and webhook setup.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/finbot/finbot/internal/httpclient"
	"github.com/finbot/finbot/internal/models"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// MaxMessageLength is the Bot API limit for one text message.
	MaxMessageLength = 4096
)

// APIError is a response with "ok": false.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %d %s", e.Code, e.Description)
}

type Options struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http    *retryablehttp.Client
	baseURL string
	token   string
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		http: httpclient.New(httpclient.Options{
			Component:    "telegram",
			Timeout:      opts.Timeout,
			MaxAttempts:  3,
			RetryWaitMin: 300 * time.Millisecond,
			RetryWaitMax: 3 * time.Second,
		}),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
	}
}

// call invokes a Bot API method and decodes "result" into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, b)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of the error.
		var uerr *neturl.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("telegram %s: %w", method, uerr.Err)
		}
		return fmt.Errorf("telegram %s: request failed", method)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", method, err)
	}

	r := gjson.ParseBytes(data)
	if !r.Get("ok").Bool() {
		apiErr := &APIError{Code: int(r.Get("error_code").Int()), Description: r.Get("description").String()}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if apiErr.Description == "" {
			apiErr.Description = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(r.Get("result").Raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

// SendMessage sends text to chatID, split into several messages when it is
// longer than the API allows.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, part := range Split(text, MaxMessageLength) {
		params := map[string]any{"chat_id": chatID, "text": part}
		if err := c.call(ctx, "sendMessage", params, nil); err != nil {
			return err
		}
	}
	log.Debug().Int64("chat_id", chatID).Int("chars", utf8.RuneCountInString(text)).Msg("telegram message sent")
	return nil
}

// SetWebhook points the bot at url. Telegram echoes secret back in the
// X-Telegram-Bot-Api-Secret-Token header of every update.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		params["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", params, nil)
}

// GetMe returns the bot's own user, which also verifies the token.
func (c *Client) GetMe(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.call(ctx, "getMe", map[string]any{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Split breaks text into chunks of at most limit runes, preferring line breaks.
func Split(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
