// Package restapi consumes the collaborator REST surface that persists chat
// messages: POST /chat/send reconciles provisional sends and
// PUT /chat/messages/:id/read marks a message read out-of-band from the
// socket receipt flow.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/wire"
)

// Client calls the collaborator REST API.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   *zerolog.Logger
}

// New builds a client for the given base URL, authenticating with token.
func New(base, token string, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   logger,
	}
}

// SendMessage persists an outgoing message and returns the server copy,
// carrying the authoritative id and timestamp.
func (c *Client) SendMessage(ctx context.Context, receiverID, body, msgType string) (wire.Message, error) {
	payload := wire.SendMessageData{ReceiverID: receiverID, Message: body, Type: msgType}

	var out wire.Message
	if err := c.do(ctx, http.MethodPost, "/chat/send", payload, &out); err != nil {
		return wire.Message{}, err
	}
	return out, nil
}

// MarkMessageRead marks a single message read. Returns the server-recorded
// read-at timestamp.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) (time.Time, error) {
	var out struct {
		ReadAt time.Time `json:"readAt"`
	}
	path := "/chat/messages/" + messageID + "/read"
	if err := c.do(ctx, http.MethodPut, path, nil, &out); err != nil {
		return time.Time{}, err
	}
	return out.ReadAt, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
