package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"raffle-backend/internal/common/logger"
)

const defaultAPIBase = "https://api.telegram.org"

// Client provides the minimal Bot API surface used to deliver raffle notifications.
type Client struct {
	httpClient *http.Client
	token      string
	apiBase    string
	log        zerolog.Logger
}

func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		token:      token,
		apiBase:    defaultAPIBase,
		log:        logger.Component("telegram"),
	}
}

// WithAPIBase points the client at another Bot API server.
func (c *Client) WithAPIBase(base string) *Client {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

type tgResponse[T any] struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	Result      T      `json:"result"`
}

type message struct {
	MessageID int64 `json:"message_id"`
}

// SendMessage posts an HTML-formatted text message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if c.token == "" {
		c.log.Debug().Int64("chat_id", chatID).Msg("Bot token not configured, message dropped")
		return nil
	}
	params := url.Values{
		"chat_id":                  {strconv.FormatInt(chatID, 10)},
		"text":                     {text},
		"parse_mode":               {"HTML"},
		"disable_web_page_preview": {"true"},
	}

	var result tgResponse[message]
	if err := c.postForm(ctx, c.endpoint("sendMessage"), params, &result); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	if !result.Ok {
		return fmt.Errorf("telegram API error: %s", result.Description)
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
}

func (c *Client) postForm(ctx context.Context, endpoint string, data url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
