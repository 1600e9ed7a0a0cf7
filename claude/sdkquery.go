package claude

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

// controlTimeout bounds a control round trip such as an interrupt
const controlTimeout = 3 * time.Second

// sdkQuery drives the CLI through the control protocol. Output arrives as
// typed messages only; interrupts are control requests and shutdown is
// cooperative.
type sdkQuery struct {
	client   *sdk.Client
	out      chan item
	stop     chan struct{}
	stopOnce sync.Once
}

var _ Handle = (*sdkQuery)(nil)

func startSDKQuery(ctx context.Context, req SpawnRequest) (*sdkQuery, error) {
	logger := log.Process(req.ProcessID, req.SessionID)

	client := sdk.NewClient(sdk.ClientOptions{
		Transport: transport.Options{
			CliPath:              req.CliPath,
			Cwd:                  req.ProjectPath,
			Env:                  req.Env,
			PermissionMode:       req.PermissionMode,
			SessionID:            req.SessionID,
			Resume:               req.Resume,
			ForkSession:          req.ForkSession,
			ContinueConversation: req.ContinueLast,
			CloseTimeout:         req.GracePeriod,
			Stderr: func(line string) {
				logger.Debug().Str("stderr", line).Msg("cli stderr")
			},
		},
	})
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	q := &sdkQuery{
		client: client,
		out:    make(chan item, 16),
		stop:   make(chan struct{}),
	}
	go q.pump()
	return q, nil
}

func (q *sdkQuery) pump() {
	defer close(q.out)
	for msg := range q.client.Messages() {
		if _, ok := msg.(sdk.RawMessage); ok {
			continue
		}
		select {
		case q.out <- item{msg: msg}:
		case <-q.stop:
			return
		}
	}
}

func (q *sdkQuery) Write(message string) error {
	return q.client.SendMessage(message)
}

func (q *sdkQuery) Interrupt() error {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	return q.client.Interrupt(ctx)
}

func (q *sdkQuery) SetPermissionMode(mode string) error {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	return q.client.SetPermissionMode(ctx, sdk.PermissionMode(mode))
}

func (q *sdkQuery) Kill(sig os.Signal) error {
	return q.client.Signal(sig)
}

func (q *sdkQuery) transportName() string   { return TransportSDK }
func (q *sdkQuery) items() <-chan item      { return q.out }
func (q *sdkQuery) err() error              { return q.client.Err() }
func (q *sdkQuery) exited() <-chan struct{} { return q.client.Done() }

func (q *sdkQuery) close() error {
	q.stopOnce.Do(func() { close(q.stop) })
	q.client.SignalShutdown()
	return q.client.Close()
}
