package claude

import (
	"errors"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

const benignExitWarning = "claude exited with code 1 after delivering a result; treating the session as finished"

// streamState is what the drain loop remembers across items
type streamState struct {
	receivedResult bool
	lastSuccess    bool
	costUSD        *float64
}

// drain forwards one entry's output to subscribers until the CLI finishes or
// the entry is stopped. It is the only publisher for the entry, which keeps
// events in CLI order.
func (o *Orchestrator) drain(entry *ProcessEntry) {
	defer close(entry.done)

	h := entry.Handle()
	items := h.items()
	var st streamState

	for {
		select {
		case <-entry.ctx.Done():
			// Stop owns the rest of the teardown
			return
		case it, ok := <-items:
			if !ok {
				o.finish(entry, st)
				return
			}
			if !entry.IsActive() {
				return
			}
			o.forward(entry, it, &st)
		}
	}
}

func (o *Orchestrator) forward(entry *ProcessEntry, it item, st *streamState) {
	if it.msg == nil {
		if it.text != "" {
			entry.publish(o.events, ChunkEvent(entry.ID, entry.SessionID(), it.text))
		}
		return
	}

	switch m := it.msg.(type) {
	case sdk.SystemMessage:
		if m.IsInit() && m.SessionID != "" && m.SessionID != entry.SessionID() {
			entry.setSessionID(m.SessionID)
			logger := log.Process(entry.ID, m.SessionID)
			logger.Debug().Str("model", m.Model).Msg("session initialized")
		}
	case sdk.ResultMessage:
		st.receivedResult = true
		st.lastSuccess = m.Succeeded()
		if m.TotalCostUSD != nil {
			st.costUSD = m.TotalCostUSD
		}
	}

	ev, ok := eventFromMessage(entry.ID, entry.SessionID(), it.msg)
	if !ok {
		return
	}
	entry.publish(o.events, ev)
}

// finish publishes the one terminal event and retires the entry
func (o *Orchestrator) finish(entry *ProcessEntry, st streamState) {
	sessionID := entry.SessionID()
	logger := log.Process(entry.ID, sessionID)
	h := entry.Handle()

	// The item channel closes before the process is reaped.
	select {
	case <-h.exited():
	case <-entry.ctx.Done():
		return
	}
	streamErr := h.err()

	end := RunEnd{CostUSD: st.costUSD}
	var final Event
	switch {
	case streamErr == nil:
		code := 0
		if !st.lastSuccess {
			code = 1
		}
		final = CompleteEvent(entry.ID, sessionID, code, "")
		end.Status = RunCompleted
		end.ExitCode = &code
		logger.Info().Int("code", code).Msg("session finished")

	case isBenignExitAfterResult(streamErr, st.receivedResult):
		code := 1
		final = CompleteEvent(entry.ID, sessionID, code, benignExitWarning)
		end.Status = RunCompleted
		end.ExitCode = &code
		logger.Warn().Err(streamErr).Msg("ignoring exit code 1 after result")

	default:
		final = ErrorEvent(entry.ID, sessionID, ErrorCodeTransport, streamErr.Error())
		end.Status = RunFailed
		end.Error = streamErr.Error()
		var exitErr *sdk.ProcessExitError
		if errors.As(streamErr, &exitErr) {
			code := exitErr.Code
			end.ExitCode = &code
		}
		logger.Error().Err(streamErr).Msg("session failed")
	}

	if !entry.publishFinal(o.events, final) {
		// Stopped between the last item and now
		return
	}
	o.registry.Remove(entry.ID)
	if err := h.close(); err != nil {
		logger.Debug().Err(err).Msg("close handle")
	}
	o.recordEnd(entry, end)
}
