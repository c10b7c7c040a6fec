// Package client is a Go client for the ServeOne invalidation stream and
// producer endpoints.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one decoded frame from the invalidation stream.
type Message struct {
	// Event is "connected", "invalidate", or "error".
	Event string

	// RestaurantID is set on "connected" frames.
	RestaurantID string

	// Entity and Timestamp are set on "invalidate" frames. Timestamp is
	// epoch milliseconds.
	Entity    string
	Timestamp int64

	// Err is set on "error" frames.
	Err string
}

// Client is an HTTP client for the ServeOne API
type Client struct {
	baseURL         string
	httpClient      *http.Client
	token           string
	headers         http.Header
	websocketDialer *websocket.Dialer
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithToken sets the bearer token used for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
		c.headers.Set("Authorization", "Bearer "+token)
	}
}

// WithTimeout sets the request timeout for non-streaming calls
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHeaders sets additional HTTP headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// New creates a new ServeOne API client
func New(baseURL string, options ...ClientOption) *Client {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	client := &Client{
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		headers:         headers,
		websocketDialer: websocket.DefaultDialer,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Subscribe opens a WebSocket subscription to a restaurant's invalidation
// stream.
func (c *Client) Subscribe(restaurantID string) (*Subscription, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else if u.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = fmt.Sprintf("/api/restaurants/%s/ws", restaurantID)

	headers := make(http.Header)
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.websocketDialer.Dial(u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	sub := &Subscription{
		Conn:     conn,
		Messages: make(chan Message, 100),
		Done:     make(chan struct{}),
	}
	go sub.receive()

	return sub, nil
}

// SubscribeSSE opens a Server-Sent Events subscription to a restaurant's
// invalidation stream. The returned channel closes when the server ends the
// stream or the context is cancelled.
func (c *Client) SubscribeSSE(ctx context.Context, restaurantID string) (*SSESubscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/restaurants/%s/events", c.baseURL, restaurantID), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// No client-side timeout; the stream is long-lived.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream request failed: %s", resp.Status)
	}

	sub := &SSESubscription{
		Messages: make(chan Message, 100),
		Done:     make(chan struct{}),
		cancel:   cancel,
	}
	go sub.receive(resp.Body)

	return sub, nil
}

// CreateOrder creates an order, which triggers an "orders" invalidation for
// every subscriber of the restaurant.
func (c *Client) CreateOrder(ctx context.Context, restaurantID string, tableNumber int, items []OrderItem) (string, error) {
	body := map[string]any{"table_number": tableNumber, "items": items}
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/restaurants/%s/orders", restaurantID), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.ID, nil
}

// SetOrderStatus updates an order's status.
func (c *Client) SetOrderStatus(ctx context.Context, restaurantID, orderID, status string) error {
	resp, err := c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/api/restaurants/%s/orders/%s/status", restaurantID, orderID),
		map[string]string{"status": status})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// OrderItem is one line of an order.
type OrderItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// do makes an HTTP request
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)

		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, resp.Status)
	}

	return resp, nil
}

// Subscription is a WebSocket subscription to the invalidation stream.
type Subscription struct {
	Conn     *websocket.Conn
	Messages chan Message
	Done     chan struct{}
}

func (s *Subscription) receive() {
	defer func() {
		close(s.Messages)
		close(s.Done)
		s.Conn.Close()
	}()

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			return
		}

		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		msg, ok := decodeMessage(frame.Event, frame.Data)
		if !ok {
			continue
		}

		select {
		case s.Messages <- msg:
		default:
			// Channel is full, drop the message. Invalidations are
			// hints, not state.
		}
	}
}

// Close closes the subscription
func (s *Subscription) Close() error {
	err := s.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case <-s.Done:
	case <-time.After(time.Second):
		s.Conn.Close()
	}

	return err
}

// SSESubscription is a Server-Sent Events subscription to the invalidation
// stream.
type SSESubscription struct {
	Messages chan Message
	Done     chan struct{}
	cancel   context.CancelFunc
}

func (s *SSESubscription) receive(body io.ReadCloser) {
	defer func() {
		close(s.Messages)
		close(s.Done)
		body.Close()
	}()

	var event string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			msg, ok := decodeMessage(event, []byte(strings.TrimPrefix(line, "data: ")))
			if !ok {
				continue
			}
			select {
			case s.Messages <- msg:
			default:
			}
		}
	}
}

// Close closes the SSE subscription
func (s *SSESubscription) Close() error {
	s.cancel()
	return nil
}

func decodeMessage(event string, data []byte) (Message, bool) {
	switch event {
	case "connected":
		var payload struct {
			RestaurantID string `json:"restaurantId"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return Message{}, false
		}
		return Message{Event: event, RestaurantID: payload.RestaurantID}, true
	case "invalidate":
		var payload struct {
			Entity    string `json:"entity"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return Message{}, false
		}
		return Message{Event: event, Entity: payload.Entity, Timestamp: payload.Timestamp}, true
	case "error":
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return Message{}, false
		}
		return Message{Event: event, Err: payload.Error}, true
	default:
		return Message{}, false
	}
}
