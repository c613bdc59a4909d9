package gateway

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

	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/conversation"
)

// ErrMissingToken indicates that the client was configured without a bot token.
var ErrMissingToken = errors.New("telegram: bot token is required")

// Options configures the Bot API client.
type Options struct {
	Token          string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Telegram Bot API. It implements
// conversation.Sender.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ conversation.Sender = (*Client)(nil)

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        opts.Logger.With().Str("component", "telegram").Logger(),
	}, nil
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessagePayload struct {
	ChatID      string          `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup *inlineKeyboard `json:"reply_markup,omitempty"`
}

type editMessagePayload struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type answerCallbackPayload struct {
	CallbackQueryID string `json:"callback_query_id"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// Send posts a plain message and returns its id.
func (c *Client) Send(ctx context.Context, conversationID, text string) (string, error) {
	return c.sendMessage(ctx, sendMessagePayload{ChatID: conversationID, Text: text})
}

// SendChoices posts a message with a one-row inline keyboard.
func (c *Client) SendChoices(ctx context.Context, conversationID, text string, choices []conversation.Choice) (string, error) {
	row := make([]inlineButton, 0, len(choices))
	for _, ch := range choices {
		row = append(row, inlineButton{Text: ch.Label, CallbackData: ch.Data})
	}
	return c.sendMessage(ctx, sendMessagePayload{
		ChatID:      conversationID,
		Text:        text,
		ReplyMarkup: &inlineKeyboard{InlineKeyboard: [][]inlineButton{row}},
	})
}

// Edit replaces the text of a previously sent message.
func (c *Client) Edit(ctx context.Context, conversationID, messageID, text string) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", messageID, err)
	}
	return c.call(ctx, "editMessageText", editMessagePayload{ChatID: conversationID, MessageID: id, Text: text}, nil)
}

// Delete removes a previously sent message.
func (c *Client) Delete(ctx context.Context, conversationID, messageID string) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", messageID, err)
	}
	payload := struct {
		ChatID    string `json:"chat_id"`
		MessageID int64  `json:"message_id"`
	}{ChatID: conversationID, MessageID: id}
	return c.call(ctx, "deleteMessage", payload, nil)
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackPayload{CallbackQueryID: callbackID}, nil)
}

// SetWebhook registers the webhook URL with the Bot API.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := struct {
		URL         string `json:"url"`
		SecretToken string `json:"secret_token,omitempty"`
	}{URL: url, SecretToken: secret}
	return c.call(ctx, "setWebhook", payload, nil)
}

func (c *Client) sendMessage(ctx context.Context, payload sendMessagePayload) (string, error) {
	var sent sentMessage
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return "", err
	}
	return strconv.FormatInt(sent.MessageID, 10), nil
}

func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: encode %s: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("telegram: decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !decoded.OK {
		return fmt.Errorf("telegram: %s failed: %s (code %d)", method, decoded.Description, decoded.ErrorCode)
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	c.log.Debug().Str("method", method).Msg("api call ok")
	return nil
}
