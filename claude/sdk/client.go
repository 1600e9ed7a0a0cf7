package sdk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

// ClientOptions configures a Client
type ClientOptions struct {
	Transport transport.Options

	InitializeTimeout time.Duration
}

// Client is the high-level client for a long-lived, interactive CLI session.
// Messages are written as stream-json on stdin; interrupts and mode switches
// go through the control protocol.
type Client struct {
	options   ClientOptions
	transport transport.Transport
	query     *Query

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a client. Nothing is started until Connect.
func NewClient(options ClientOptions) *Client {
	return &Client{options: options}
}

// NewClientWithTransport creates a client over a custom transport (tests)
func NewClientWithTransport(options ClientOptions, t transport.Transport) *Client {
	return &Client{options: options, transport: t}
}

// Connect starts the CLI and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.query != nil {
		return ErrAlreadyConnected
	}
	if c.closed {
		return ErrConnectionClosed
	}

	t := c.transport
	if t == nil {
		sub, err := transport.New(c.options.Transport)
		if err != nil {
			return fmt.Errorf("failed to create transport: %w", err)
		}
		t = sub
	}

	if err := t.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}
	c.transport = t

	q := NewQuery(t)
	q.Start(ctx)

	if err := q.Initialize(ctx, c.options.InitializeTimeout); err != nil {
		_ = q.Close()
		return err
	}

	c.query = q
	return nil
}

func (c *Client) activeQuery() (*Query, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.query == nil {
		return nil, ErrNotConnected
	}
	return c.query, nil
}

// SendMessage sends a user message to Claude
func (c *Client) SendMessage(content string) error {
	q, err := c.activeQuery()
	if err != nil {
		return err
	}
	return q.SendUserMessage(content)
}

// Messages returns the typed message stream, or nil before Connect.
func (c *Client) Messages() <-chan Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.query == nil {
		return nil
	}
	return c.query.Messages()
}

// Interrupt stops the current turn without ending the session
func (c *Client) Interrupt(ctx context.Context) error {
	q, err := c.activeQuery()
	if err != nil {
		return err
	}
	return q.Interrupt(ctx)
}

// SetPermissionMode changes the permission mode during the conversation
func (c *Client) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	q, err := c.activeQuery()
	if err != nil {
		return err
	}
	return q.SetPermissionMode(ctx, mode)
}

// SessionID returns the id the CLI reported in its init message
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.query == nil {
		return ""
	}
	return c.query.SessionID()
}

// Err reports why the message stream ended; see transport.Transport.Err.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport == nil {
		return nil
	}
	return c.transport.Err()
}

// Done is closed once the CLI process has been reaped
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport == nil {
		return nil
	}
	return c.transport.Done()
}

// Signal delivers sig to the CLI process
func (c *Client) Signal(sig os.Signal) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport == nil {
		return ErrNotConnected
	}
	return c.transport.Signal(sig)
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query != nil && !c.closed && c.transport.IsConnected()
}

// SignalShutdown marks the client as shutting down so the coming process
// exit is not reported as an error.
func (c *Client) SignalShutdown() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport != nil {
		c.transport.SignalShutdown()
	}
}

// Close ends the session. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	q := c.query
	t := c.transport
	c.mu.Unlock()

	if q != nil {
		return q.Close()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}

// --- One-shot Query ---

// QueryOnce runs the CLI in --print mode for a single prompt and returns the
// final result. onMessage, when non-nil, sees every parsed message in order.
func QueryOnce(ctx context.Context, prompt string, opts transport.Options, onMessage func(Message)) (*ResultMessage, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	opts.Prompt = prompt

	t, err := transport.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	if err := t.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect transport: %w", err)
	}
	defer t.Close()

	// --print reads nothing from stdin
	_ = t.EndInput()

	var result *ResultMessage
	for data := range t.ReadMessages() {
		msg, err := ParseMessage(data)
		if err != nil {
			log.Debug().Err(err).Msg("skipping non-protocol output")
			continue
		}
		if onMessage != nil {
			onMessage(msg)
		}
		if rm, ok := msg.(ResultMessage); ok {
			result = &rm
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if result != nil {
		return result, nil
	}
	if err := t.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoResult
}
