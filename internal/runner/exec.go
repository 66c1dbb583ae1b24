package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/orquestra-ai/orquestra/internal/logging"
	"github.com/orquestra-ai/orquestra/internal/protocol"
)

// Exec bridges to an agent harness subprocess speaking JSON lines:
// requests on stdin, protocol events on stdout. Malformed output lines are
// logged and dropped, never fatal.
type Exec struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan protocol.Event
	log    zerolog.Logger
}

// execRequest is one stdin line to the harness.
type execRequest struct {
	Op            string           `json:"op"` // "start" | "abort" | "respond"
	CorrelationID string           `json:"correlationId,omitempty"`
	ApprovalID    string           `json:"approvalId,omitempty"`
	Prompt        string           `json:"prompt,omitempty"`
	ResumeID      string           `json:"resumeId,omitempty"`
	WorkspaceDirs []string         `json:"workspaceDirs,omitempty"`
	Effort        string           `json:"effort,omitempty"`
	Attachments   []execAttachment `json:"attachments,omitempty"`
	Response      *ApprovalResponse `json:"response,omitempty"`
}

type execAttachment struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// NewExec launches the harness command and starts decoding its event feed.
func NewExec(ctx context.Context, command string, args ...string) (*Exec, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start harness: %w", err)
	}

	e := &Exec{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan protocol.Event, 64),
		log:    logging.Component("runner"),
	}
	go e.readLoop(stdout)
	return e, nil
}

func (e *Exec) readLoop(r io.Reader) {
	defer close(e.events)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := protocol.Unmarshal(line)
		if err != nil {
			e.log.Debug().Err(err).Msg("dropping malformed harness event")
			continue
		}
		e.events <- ev
	}
	if err := scanner.Err(); err != nil {
		e.log.Warn().Err(err).Msg("harness event feed closed")
	}
}

func (e *Exec) send(req execRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.stdin.Write(append(data, '\n'))
	return err
}

// Start opens a new stream on the harness.
func (e *Exec) Start(ctx context.Context, opts StartOptions) (string, error) {
	cid := ulid.Make().String()

	req := execRequest{
		Op:            "start",
		CorrelationID: cid,
		Prompt:        opts.Prompt,
		ResumeID:      opts.ResumeID,
		WorkspaceDirs: opts.WorkspaceDirs,
		Effort:        string(opts.Effort),
	}
	for _, a := range opts.Attachments {
		req.Attachments = append(req.Attachments, execAttachment(a))
	}

	if err := e.send(req); err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}
	return cid, nil
}

// Abort requests cancellation of a stream.
func (e *Exec) Abort(ctx context.Context, correlationID string) error {
	return e.send(execRequest{Op: "abort", CorrelationID: correlationID})
}

// Respond resolves an approval or question.
func (e *Exec) Respond(ctx context.Context, approvalID string, resp ApprovalResponse) error {
	return e.send(execRequest{Op: "respond", ApprovalID: approvalID, Response: &resp})
}

// Events returns the harness event feed.
func (e *Exec) Events() <-chan protocol.Event {
	return e.events
}

// Close shuts the harness down and waits for it to exit.
func (e *Exec) Close() error {
	e.mu.Lock()
	e.stdin.Close()
	e.mu.Unlock()
	return e.cmd.Wait()
}
