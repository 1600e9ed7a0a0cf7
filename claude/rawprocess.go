package claude

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

// rawProcess drives the CLI directly over stdout lines. Partial messages are
// requested and their text deltas become chunks, as do lines that are not
// JSON at all.
type rawProcess struct {
	t         *transport.Subprocess
	out       chan item
	stop      chan struct{}
	stopOnce  sync.Once
	sessionID atomic.Value // string
}

var _ Handle = (*rawProcess)(nil)

func startRawProcess(ctx context.Context, req SpawnRequest) (*rawProcess, error) {
	logger := log.Process(req.ProcessID, req.SessionID)

	t, err := transport.New(transport.Options{
		CliPath:                req.CliPath,
		Cwd:                    req.ProjectPath,
		Env:                    req.Env,
		PermissionMode:         req.PermissionMode,
		SessionID:              req.SessionID,
		Resume:                 req.Resume,
		ForkSession:            req.ForkSession,
		ContinueConversation:   req.ContinueLast,
		IncludePartialMessages: true,
		CloseTimeout:           req.GracePeriod,
		Stderr: func(line string) {
			logger.Debug().Str("stderr", line).Msg("cli stderr")
		},
	})
	if err != nil {
		return nil, err
	}
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}

	p := &rawProcess{
		t:    t,
		out:  make(chan item, 16),
		stop: make(chan struct{}),
	}
	p.sessionID.Store(req.SessionID)
	go p.pump()
	return p, nil
}

func (p *rawProcess) pump() {
	defer close(p.out)
	for rec := range p.t.ReadMessages() {
		it, ok := p.translate(rec)
		if !ok {
			continue
		}
		select {
		case p.out <- it:
		case <-p.stop:
			return
		}
	}
}

// translate turns one stdout record into an item
func (p *rawProcess) translate(rec []byte) (item, bool) {
	msg, err := sdk.ParseMessage(rec)
	if err != nil {
		// Plain output (banners, warnings) is shown as it came
		return item{text: string(rec) + "\n"}, true
	}

	switch m := msg.(type) {
	case sdk.StreamEvent:
		if text, ok := sdk.TextDelta(m); ok && text != "" {
			return item{text: text}, true
		}
		return item{}, false
	case sdk.SystemMessage:
		if m.IsInit() && m.SessionID != "" {
			p.sessionID.Store(m.SessionID)
		}
	case sdk.RawMessage:
		return item{}, false
	}
	return item{msg: msg}, true
}

func (p *rawProcess) Write(message string) error {
	line, err := sdk.EncodeUserMessage(message, p.sessionID.Load().(string))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.t.Write(line)
}

// Interrupt sends SIGINT. This transport has no in-band way to abort a turn
// and the CLI exits on SIGINT, so the exit is marked as requested: the
// session ends with a complete event instead of a transport error.
func (p *rawProcess) Interrupt() error {
	p.t.SignalShutdown()
	return p.t.Signal(os.Interrupt)
}

// SetPermissionMode needs the control protocol, which this transport lacks
func (p *rawProcess) SetPermissionMode(string) error {
	return fmt.Errorf("set permission mode: %w", ErrNotSupported)
}

func (p *rawProcess) Kill(sig os.Signal) error {
	return p.t.Signal(sig)
}

func (p *rawProcess) transportName() string   { return TransportRaw }
func (p *rawProcess) items() <-chan item      { return p.out }
func (p *rawProcess) err() error              { return p.t.Err() }
func (p *rawProcess) exited() <-chan struct{} { return p.t.Done() }

func (p *rawProcess) close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return p.t.Close()
}
