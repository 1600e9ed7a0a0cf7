package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

const (
	// DefaultControlTimeout bounds interrupt and mode switches
	DefaultControlTimeout = 10 * time.Second

	// DefaultInitializeTimeout bounds the initialize handshake
	DefaultInitializeTimeout = 30 * time.Second

	messageBuffer = 100
)

// Query handles the bidirectional control protocol on top of a Transport.
// It routes control responses to waiting callers, answers control requests
// from the CLI and forwards every other message as a typed Message.
type Query struct {
	transport transport.Transport

	pending   map[string]chan ControlResponse
	pendingMu sync.Mutex

	messages       chan Message
	requestCounter atomic.Int64
	sessionID      atomic.Value // string, learned from the init message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewQuery wraps an already connected transport. Call Start to begin reading.
func NewQuery(t transport.Transport) *Query {
	q := &Query{
		transport: t,
		pending:   make(map[string]chan ControlResponse),
		messages:  make(chan Message, messageBuffer),
	}
	q.sessionID.Store("")
	return q
}

// Start begins reading messages from the transport
func (q *Query) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)

	q.wg.Add(1)
	go q.readMessages()
}

// readMessages reads from the transport until it closes and routes each record
func (q *Query) readMessages() {
	defer q.wg.Done()
	defer close(q.messages)
	defer q.failPending(ErrConnectionClosed)

	for data := range q.transport.ReadMessages() {
		msg, err := ParseMessage(data)
		if err != nil {
			log.Debug().Err(err).Str("line", string(data)).Msg("skipping non-protocol output")
			continue
		}

		switch msg.GetType() {
		case MessageTypeControlResponse:
			q.handleControlResponse(msg.Raw())
			continue
		case MessageTypeControlRequest:
			go q.handleControlRequest(msg.Raw())
			continue
		case MessageTypeSystem:
			if sm, ok := msg.(SystemMessage); ok && sm.IsInit() && sm.SessionID != "" {
				q.sessionID.Store(sm.SessionID)
			}
		}

		select {
		case q.messages <- msg:
		case <-q.ctx.Done():
			// keep draining so the transport never blocks on a full channel
		}
	}
}

// handleControlResponse routes control responses to waiting callers
func (q *Query) handleControlResponse(data []byte) {
	var resp ControlResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		log.Debug().Err(err).Msg("failed to parse control response")
		return
	}

	requestID := resp.Response.RequestID

	q.pendingMu.Lock()
	ch, ok := q.pending[requestID]
	delete(q.pending, requestID)
	q.pendingMu.Unlock()

	if !ok {
		log.Debug().Str("requestId", requestID).Msg("received response for unknown request")
		return
	}
	ch <- resp
}

// handleControlRequest answers requests initiated by the CLI. Tool permission
// prompts are not routed through the control channel, so every request gets
// an error reply instead of leaving the CLI waiting.
func (q *Query) handleControlRequest(data []byte) {
	var req ControlRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Debug().Err(err).Msg("failed to parse control request")
		return
	}
	subtype, _ := req.Request["subtype"].(string)

	log.Debug().
		Str("requestId", req.RequestID).
		Str("subtype", subtype).
		Msg("rejecting control request")

	response := ControlResponse{Type: string(MessageTypeControlResponse)}
	response.Response.RequestID = req.RequestID
	response.Response.Subtype = "error"
	response.Response.Error = fmt.Sprintf("unsupported control request subtype: %s", subtype)

	respJSON, err := json.Marshal(response)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal control response")
		return
	}
	if err := q.transport.Write(string(respJSON) + "\n"); err != nil {
		log.Warn().Err(err).Msg("failed to send control response")
	}
}

func (q *Query) failPending(cause error) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	for id, ch := range q.pending {
		var resp ControlResponse
		resp.Response.RequestID = id
		resp.Response.Subtype = "error"
		resp.Response.Error = cause.Error()
		ch <- resp
		delete(q.pending, id)
	}
}

// sendControlRequest writes a control request and waits for its response
func (q *Query) sendControlRequest(ctx context.Context, request map[string]any, timeout time.Duration) (map[string]any, error) {
	subtype, _ := request["subtype"].(string)
	requestID := q.generateRequestID()

	ch := make(chan ControlResponse, 1)
	q.pendingMu.Lock()
	q.pending[requestID] = ch
	q.pendingMu.Unlock()

	forget := func() {
		q.pendingMu.Lock()
		delete(q.pending, requestID)
		q.pendingMu.Unlock()
	}

	reqJSON, err := json.Marshal(map[string]any{
		"type":       string(MessageTypeControlRequest),
		"request_id": requestID,
		"request":    request,
	})
	if err != nil {
		forget()
		return nil, fmt.Errorf("failed to marshal control request: %w", err)
	}

	log.Debug().Str("json", string(reqJSON)).Msg("sending control request")

	if err := q.transport.Write(string(reqJSON) + "\n"); err != nil {
		forget()
		return nil, &ControlRequestError{RequestID: requestID, Subtype: subtype, Message: "failed to send", Cause: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Response.Subtype == "error" {
			return nil, &ControlRequestError{
				RequestID: requestID,
				Subtype:   subtype,
				Message:   resp.Response.Error,
			}
		}
		return resp.Response.Response, nil

	case <-timer.C:
		forget()
		return nil, &ControlRequestError{
			RequestID: requestID,
			Subtype:   subtype,
			Message:   "timeout waiting for response",
			Cause:     ErrTimeout,
		}

	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// generateRequestID creates a unique request ID
func (q *Query) generateRequestID() string {
	counter := q.requestCounter.Add(1)
	return fmt.Sprintf("req_%d_%s", counter, uuid.NewString()[:8])
}

// Initialize performs the control protocol handshake
func (q *Query) Initialize(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultInitializeTimeout
	}
	if _, err := q.sendControlRequest(ctx, map[string]any{"subtype": "initialize"}, timeout); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	return nil
}

// Interrupt asks the CLI to stop the current turn
func (q *Query) Interrupt(ctx context.Context) error {
	_, err := q.sendControlRequest(ctx, map[string]any{
		"subtype": string(ControlSubtypeInterrupt),
	}, DefaultControlTimeout)
	return err
}

// SetPermissionMode changes the permission mode mid-session
func (q *Query) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	_, err := q.sendControlRequest(ctx, map[string]any{
		"subtype": string(ControlSubtypeSetPermissionMode),
		"mode":    string(mode),
	}, DefaultControlTimeout)
	return err
}

// SendUserMessage writes a user turn on stdin, tagged with the session id
// learned from the init message.
func (q *Query) SendUserMessage(content string) error {
	line, err := EncodeUserMessage(content, q.SessionID())
	if err != nil {
		return fmt.Errorf("failed to marshal user message: %w", err)
	}
	return q.transport.Write(line)
}

// SessionID returns the id reported by the CLI, or "" before init.
func (q *Query) SessionID() string {
	return q.sessionID.Load().(string)
}

// Messages returns the typed message stream. It is closed when the transport
// stops producing output.
func (q *Query) Messages() <-chan Message {
	return q.messages
}

// Close stops routing and closes the transport
func (q *Query) Close() error {
	var err error
	q.closeOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
		}
		err = q.transport.Close()

		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			log.Warn().Msg("query reader did not finish in time")
		}
	})
	return err
}
