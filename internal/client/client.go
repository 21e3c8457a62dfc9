// Package client is a scripted caller for the relay: it opens a push channel,
// reads the callback address and posts invocations to it.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/codex-k8s/tool-relay/internal/constants"
	"github.com/codex-k8s/tool-relay/internal/protocol"
)

// ErrStreamClosed is returned when the push channel ends before a pushed result arrives.
var ErrStreamClosed = errors.New("stream closed before result")

// StatusError is a non-2xx relay response.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// Message is the error field of the response body.
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Code, e.Message)
}

// Client talks to one relay.
type Client struct {
	baseURL    *url.URL
	ssePath    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. It must not carry a global timeout
// because the push channel stays open for the whole session.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithSSEPath overrides the push-channel route.
func WithSSEPath(path string) Option {
	return func(cl *Client) {
		if path != "" {
			cl.ssePath = path
		}
	}
}

// New creates a client for the relay at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	c := &Client{baseURL: u, ssePath: "/sse", httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Tools fetches the capability listing.
func (c *Client) Tools(ctx context.Context) ([]protocol.ToolInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve("/tools"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var out struct {
		Tools []protocol.ToolInfo `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tools: %w", err)
	}
	return out.Tools, nil
}

// Connect opens a push channel and waits for its endpoint event.
// The channel stays open until ctx is done or Close is called.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.resolve(c.ssePath), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	event, data, err := readSSEEvent(reader)
	if err != nil {
		cancel()
		_ = resp.Body.Close()
		return nil, fmt.Errorf("read endpoint event: %w", err)
	}
	if event != constants.EventEndpoint {
		cancel()
		_ = resp.Body.Close()
		return nil, fmt.Errorf("expected %s event, got %q", constants.EventEndpoint, event)
	}
	var endpoint protocol.Endpoint
	if err := json.Unmarshal(data, &endpoint); err != nil {
		cancel()
		_ = resp.Body.Close()
		return nil, fmt.Errorf("decode endpoint event: %w", err)
	}
	messagesURL, err := url.Parse(endpoint.MessagesURL)
	if err != nil {
		cancel()
		_ = resp.Body.Close()
		return nil, fmt.Errorf("parse messages url: %w", err)
	}

	s := &Session{
		ID:          messagesURL.Query().Get(constants.SessionIDArgument),
		MessagesURL: c.baseURL.ResolveReference(messagesURL).String(),
		client:      c,
		body:        resp.Body,
		cancel:      cancel,
		done:        make(chan struct{}),
		pending:     make(map[string]protocol.Delivery),
		waiters:     make(map[string]chan protocol.Delivery),
	}
	if s.ID == "" {
		_ = s.Close()
		return nil, fmt.Errorf("endpoint event carries no session_id: %s", endpoint.MessagesURL)
	}
	go s.readLoop(reader)
	return s, nil
}

func (c *Client) resolve(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

// Session is an open push channel and its callback address.
type Session struct {
	// ID is the session id issued by the relay.
	ID string
	// MessagesURL is the absolute callback address.
	MessagesURL string

	client    *Client
	body      io.ReadCloser
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]protocol.Delivery
	waiters map[string]chan protocol.Delivery
}

// Call posts one invocation. A capability failure is returned in ToolResult.Error
// with a nil error; protocol rejections are returned as *StatusError.
// When the relay acknowledges with 202, Call waits for the pushed result.
func (s *Session) Call(ctx context.Context, tool string, args map[string]any) (protocol.ToolResult, error) {
	body, err := json.Marshal(protocol.InvocationRequest{SessionID: s.ID, ToolName: tool, Arguments: args})
	if err != nil {
		return protocol.ToolResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.MessagesURL, bytes.NewReader(body))
	if err != nil {
		return protocol.ToolResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return protocol.ToolResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		res := protocol.ToolResult{ToolName: tool}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return protocol.ToolResult{}, fmt.Errorf("decode result: %w", err)
		}
		return res, nil
	case http.StatusAccepted:
		var ack protocol.Accepted
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return protocol.ToolResult{}, fmt.Errorf("decode acknowledgement: %w", err)
		}
		d, err := s.wait(ctx, ack.RequestID)
		if err != nil {
			return protocol.ToolResult{}, err
		}
		return protocol.ToolResult{ToolName: d.ToolName, Result: d.Result, Error: d.Error}, nil
	default:
		return protocol.ToolResult{}, statusError(resp)
	}
}

// Close ends the push channel; the relay then releases the session.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *Session) readLoop(reader *bufio.Reader) {
	defer close(s.done)
	for {
		event, data, err := readSSEEvent(reader)
		if err != nil {
			return
		}
		if event != constants.EventResult {
			continue
		}
		var d protocol.Delivery
		if err := json.Unmarshal(data, &d); err != nil {
			continue
		}
		s.mu.Lock()
		if ch, ok := s.waiters[d.RequestID]; ok {
			delete(s.waiters, d.RequestID)
			ch <- d
		} else {
			s.pending[d.RequestID] = d
		}
		s.mu.Unlock()
	}
}

func (s *Session) wait(ctx context.Context, requestID string) (protocol.Delivery, error) {
	s.mu.Lock()
	if d, ok := s.pending[requestID]; ok {
		delete(s.pending, requestID)
		s.mu.Unlock()
		return d, nil
	}
	ch := make(chan protocol.Delivery, 1)
	s.waiters[requestID] = ch
	s.mu.Unlock()

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		s.forget(requestID)
		return protocol.Delivery{}, ctx.Err()
	case <-s.done:
		s.forget(requestID)
		select {
		case d := <-ch:
			return d, nil
		default:
			return protocol.Delivery{}, ErrStreamClosed
		}
	}
}

func (s *Session) forget(requestID string) {
	s.mu.Lock()
	delete(s.waiters, requestID)
	s.mu.Unlock()
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body protocol.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}
