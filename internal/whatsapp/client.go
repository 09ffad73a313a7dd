// Package whatsapp sends text messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for transport failures. A response with any HTTP status is
// not an error.
var (
	ErrUnreachable = errors.New("whatsapp api unreachable")
	ErrTimeout     = errors.New("whatsapp api timeout")
)

const maxResponseBytes = 1 << 20

// Credentials select the sending business number.
type Credentials struct {
	Token   string
	PhoneID string
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Token != "" && c.PhoneID != ""
}

// Response is the provider's answer as received. Data is the decoded JSON
// body, or {"text": raw} when the body is not JSON.
type Response struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

// Sender is the interface for delivering a text message.
type Sender interface {
	SendText(ctx context.Context, creds Credentials, to, body string) (Response, error)
}

// HTTPClient implements Sender against the Graph API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client rooted at baseURL, for example
// https://graph.facebook.com/v20.0. Every call is bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type textMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textContent `json:"text"`
}

type textContent struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

func (c *HTTPClient) SendText(ctx context.Context, creds Credentials, to, body string) (Response, error) {
	payload, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textContent{PreviewURL: false, Body: body},
	})
	if err != nil {
		return Response{}, fmt.Errorf("encoding message: %w", err)
	}

	u := fmt.Sprintf("%s/%s/messages", c.baseURL, url.PathEscape(creds.PhoneID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq, creds)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, classifyError(err)
	}

	return Response{Status: resp.StatusCode, Data: decodeBody(raw)}, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, creds Credentials) {
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Content-Type", "application/json")
}

func decodeBody(raw []byte) any {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]any{"text": string(raw)}
	}
	return data
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Sender.
var _ Sender = (*HTTPClient)(nil)
