package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/voice-assistant/internal/core"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	contentTypeJSON     = "application/json"
)

const maxErrorBodyBytes = 4096

// Error messages.
const (
	errFmtMarshalRequest  = "failed to marshal chat request: %w"
	errFmtCreateRequest   = "failed to create chat request: %w"
	errFmtSendRequest     = "failed to send chat request to %s: %w"
	errFmtDecodeResponse  = "failed to decode chat response: %w"
	errMsgNoChoices       = "chat response contained no choices"
	errMsgEmptyCredential = "API key cannot be empty"
)

// ErrNoChoices indicates that the provider answered without any completion.
var ErrNoChoices = errors.New(errMsgNoChoices)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the OpenAI-compatible body sent to every provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// ChatClient posts chat completion requests to OpenAI-compatible endpoints.
type ChatClient struct {
	httpClient *http.Client
}

// NewChatClient creates a client whose requests are bounded by timeout.
func NewChatClient(timeout time.Duration) *ChatClient {
	return &ChatClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Complete sends req to endpoint and returns the first completion. Non-2xx
// answers are returned as *core.StatusError so callers can normalize them.
func (c *ChatClient) Complete(ctx context.Context, endpoint, apiKey string, req ChatRequest) (string, error) {
	if apiKey == "" {
		return "", errors.New(errMsgEmptyCredential)
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf(errFmtMarshalRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf(errFmtCreateRequest, err)
	}

	httpReq.Header.Set(headerAuthorization, "Bearer "+apiKey)
	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf(errFmtSendRequest, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return "", core.NewStatusError(resp.StatusCode, string(bytes.TrimSpace(body)))
	}

	var decoded chatResponse

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return "", fmt.Errorf(errFmtDecodeResponse, err)
	}

	if len(decoded.Choices) == 0 {
		return "", ErrNoChoices
	}

	return decoded.Choices[0].Message.Content, nil
}
