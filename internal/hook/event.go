package hook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultReadTimeout bounds how long ReadEvent waits for the host to send the payload.
const DefaultReadTimeout = 3 * time.Second

// DefaultMaxInputBytes caps the payload read from the host.
const DefaultMaxInputBytes = 1 << 20

var (
	// ErrEmptyInput is returned when the host sent no payload.
	ErrEmptyInput = errors.New("empty hook input")

	// ErrReadTimeout is returned when the payload did not arrive in time.
	ErrReadTimeout = errors.New("timed out reading hook input")
)

// Event is the PreToolUse payload sent by the host on stdin.
type Event struct {
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name,omitempty"`
	Cwd           string          `json:"cwd,omitempty"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
}

// Command normalizes tool_input into a single command string.
// tool_input may be a raw JSON string or an object carrying a "command" field;
// any other shape yields "".
func (e *Event) Command() string {
	raw := bytes.TrimSpace(e.ToolInput)
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Command
	}
	return ""
}

type readResult struct {
	data []byte
	err  error
}

// ReadEvent reads and decodes one event from r. The read races a timer so a
// host that never closes stdin cannot hang the gate.
func ReadEvent(r io.Reader, timeout time.Duration, maxBytes int64) (*Event, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInputBytes
	}

	ch := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(r, maxBytes))
		ch <- readResult{data: data, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res readResult
	select {
	case res = <-ch:
	case <-timer.C:
		return nil, ErrReadTimeout
	}

	if res.err != nil {
		return nil, fmt.Errorf("read hook input: %w", res.err)
	}
	if len(bytes.TrimSpace(res.data)) == 0 {
		return nil, ErrEmptyInput
	}

	var ev Event
	if err := json.Unmarshal(res.data, &ev); err != nil {
		return nil, fmt.Errorf("decode hook input: %w", err)
	}
	return &ev, nil
}
