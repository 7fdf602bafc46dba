// Package assistant is the HTTP client for the upstream AI conversation
// service. The upstream owns chat completion; this client only relays
// messages and mirrors conversation lifecycle changes.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  http.DefaultClient,
	}
}

// NewClientWithHTTP is used by tests to point the client at a test server.
func NewClientWithHTTP(baseURL, apiKey string, httpClient *http.Client) *Client {
	c := NewClient(baseURL, apiKey)
	if httpClient != nil {
		c.client = httpClient
	}
	return c
}

// ChatResult is the upstream's synchronous answer to one chat turn.
type ChatResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Answer         string `json:"answer"`
}

type chatRequest struct {
	Query          string         `json:"query"`
	User           string         `json:"user"`
	ResponseMode   string         `json:"response_mode"`
	Inputs         map[string]any `json:"inputs"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// SendMessage relays one chat turn in blocking mode. Leave conversationID
// empty on the first turn; the upstream assigns one and returns it.
func (c *Client) SendMessage(ctx context.Context, query, userID, conversationID string) (ChatResult, error) {
	payload := chatRequest{
		Query:          query,
		User:           userID,
		ResponseMode:   "blocking",
		Inputs:         map[string]any{},
		ConversationID: conversationID,
	}

	var result ChatResult
	if err := c.do(ctx, http.MethodPost, "/chat-messages", payload, &result); err != nil {
		return ChatResult{}, err
	}
	if result.ConversationID == "" || result.Answer == "" {
		return ChatResult{}, fmt.Errorf("assistant: incomplete chat response")
	}
	return result, nil
}

// RenameConversation sets the upstream conversation name; an empty name
// asks the upstream to auto-generate one.
func (c *Client) RenameConversation(ctx context.Context, conversationID, userID, name string) error {
	if conversationID == "" {
		return nil
	}
	payload := map[string]any{"user": userID}
	if name != "" {
		payload["name"] = name
	} else {
		payload["auto_generate"] = true
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/name"
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" {
		return nil
	}
	payload := map[string]any{"user": userID}
	path := "/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodDelete, path, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("assistant: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("assistant: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("assistant: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("assistant: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("assistant: decode response: %w", err)
	}
	return nil
}
