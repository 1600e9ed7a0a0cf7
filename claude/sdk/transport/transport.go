// Package transport runs the Claude CLI as a child process speaking
// newline-delimited JSON over stdin and stdout.
package transport

import (
	"context"
	"os"
)

// Transport is the interface for communication with Claude CLI.
type Transport interface {
	// Connect starts the CLI
	Connect(ctx context.Context) error

	// Write sends data to Claude CLI's stdin
	Write(data string) error

	// ReadMessages yields one stdout record at a time: a JSON object, or a
	// plain text line when the CLI prints something that is not JSON. The
	// channel is closed after the process exits.
	ReadMessages() <-chan []byte

	// Err reports why the stream ended. It is only meaningful once
	// ReadMessages is closed; nil means a clean exit or a requested shutdown.
	Err() error

	// Done is closed when the child process has exited
	Done() <-chan struct{}

	// Signal delivers sig to the child process
	Signal(sig os.Signal) error

	// EndInput closes the stdin stream (signals EOF to Claude)
	EndInput() error

	// Close terminates the connection and cleans up resources
	Close() error

	// IsConnected returns whether the transport is currently connected
	IsConnected() bool

	// SignalShutdown marks the transport as shutting down so the coming
	// process exit is not reported as an error.
	SignalShutdown()
}
