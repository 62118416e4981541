package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"alertrelay.io/relay/internal/config"
)

// ChatClient posts messages to the chat bridge API. The bridge handles
// provider specifics; this client only speaks its JSON contract.
type ChatClient struct {
	apiURL   string
	apiToken string
	client   *http.Client
}

// NewChatClient creates a chat sender from the chat gateway configuration.
func NewChatClient(cfg config.ChatConfig) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChatClient{
		apiURL:   cfg.APIURL,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: timeout},
	}
}

var _ ChatSender = (*ChatClient)(nil)

type chatSendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (c *ChatClient) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(chatSendRequest{Phone: phone, Message: message})
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
