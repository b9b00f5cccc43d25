// Package telegram is a minimal Telegram Bot API client: long polling for
// updates and Markdown message delivery.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/planbridge/internal/infra/notify"
)

const ChannelName = "telegram"

var _ notify.Channel = (*Client)(nil)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the bot identified by token. apiURL defaults to
// https://api.telegram.org.
func New(apiURL, token string, pollTimeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Client{
		baseURL: fmt.Sprintf("%s/bot%s", strings.TrimRight(apiURL, "/"), token),
		// Long polls hold the connection for pollTimeout.
		httpClient: &http.Client{Timeout: pollTimeout + 15*time.Second},
	}
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// APIError is an error answer from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

func (c *Client) Name() string { return ChannelName }

// Send posts text to the chat identified by recipientID.
func (c *Client) Send(ctx context.Context, recipientID, text string) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return &notify.DeliveryError{Channel: ChannelName, RecipientID: recipientID, Permanent: true, Err: err}
	}
	err = c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}, nil)
	if err != nil {
		var apiErr *APIError
		permanent := errors.As(err, &apiErr) && (apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusBadRequest)
		return &notify.DeliveryError{Channel: ChannelName, RecipientID: recipientID, Permanent: permanent, Err: err}
	}
	return nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

// GetMe returns the bot's own user, used to verify the token at startup.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", map[string]any{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("parse %s response (http %d): %w", method, resp.StatusCode, err)
	}
	if !ar.OK {
		return &APIError{Code: ar.ErrorCode, Description: ar.Description}
	}
	if out != nil {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
