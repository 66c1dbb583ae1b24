// Package protocol defines the typed event stream emitted by a running
// agent session and its JSON wire form.
//
// Every event carries the correlation id of the stream that produced it.
// The event source guarantees causal order within one correlation id and
// exactly one terminal event (done, aborted or error) per stream; duplicate
// or out-of-order tool events are possible and handled by upsert semantics
// downstream.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/orquestra-ai/orquestra/pkg/types"
)

// Event kind tags as they appear on the wire.
const (
	KindStatus          = "status"
	KindToolUse         = "tool_use"
	KindToolResult      = "tool_result"
	KindApprovalRequest = "approval_request"
	KindAskUser         = "ask_user"
	KindDelta           = "delta"
	KindDone            = "done"
	KindAborted         = "aborted"
	KindError           = "error"
	KindSubagentStart   = "subagent_start"
	KindSubagentDone    = "subagent_done"
)

// Event is one observation from a session's stream.
type Event interface {
	Kind() string
	CorrelationID() string
}

// Base carries the correlation id shared by all events.
type Base struct {
	Correlation string `json:"correlationId"`
}

// CorrelationID returns the id of the stream that produced the event.
func (b Base) CorrelationID() string { return b.Correlation }

// Status is informational and always safe to apply; it never changes the
// session status.
type Status struct {
	Base
	PermissionMode types.PermissionMode `json:"permissionMode,omitempty"`
	ContextUsage   *types.ContextUsage  `json:"contextUsage,omitempty"`
}

func (Status) Kind() string { return KindStatus }

// ToolUse reports a tool invocation starting. Upserted into the timeline as
// pending, keyed by tool-use id.
type ToolUse struct {
	Base
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func (ToolUse) Kind() string { return KindToolUse }

// ToolResult finishes the matching timeline entry. If no pending entry
// exists a synthetic completed one is inserted.
type ToolResult struct {
	Base
	ToolUseID string `json:"toolUseId"`
	IsError   bool   `json:"isError,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (ToolResult) Kind() string { return KindToolResult }

// ApprovalRequest suspends the session pending a tool-permission decision,
// unless a persisted rule auto-resolves it first.
type ApprovalRequest struct {
	Base
	ApprovalID string         `json:"approvalId"`
	ToolName   string         `json:"toolName"`
	Input      map[string]any `json:"input,omitempty"`

	// MemberName is set when the request was relayed from a team member
	// through the leader session.
	MemberName string `json:"memberName,omitempty"`
}

func (ApprovalRequest) Kind() string { return KindApprovalRequest }

// AskUser suspends the session pending answers to a structured form.
type AskUser struct {
	Base
	ApprovalID string           `json:"approvalId"`
	Questions  []types.Question `json:"questions"`
}

func (AskUser) Kind() string { return KindAskUser }

// Delta replaces the content of the trailing assistant message.
type Delta struct {
	Base
	Content string `json:"content"`
}

func (Delta) Kind() string { return KindDelta }

// Done is terminal: it finalizes the assistant message, carries the
// accumulated cost of the turn and the external id used to resume later.
type Done struct {
	Base
	Content   string  `json:"content"`
	SessionID string  `json:"sessionId,omitempty"`
	CostUSD   float64 `json:"costUsd,omitempty"`
}

func (Done) Kind() string { return KindDone }

// Aborted is terminal: the session returns to idle, not error.
type Aborted struct {
	Base
}

func (Aborted) Kind() string { return KindAborted }

// Error is terminal: the session moves to error and the trailing assistant
// message is annotated with the normalized message.
type Error struct {
	Base
	Message string `json:"message"`
	Subtype string `json:"subtype,omitempty"`
}

func (Error) Kind() string { return KindError }

// SubagentStart upserts a running subagent record keyed by task id.
type SubagentStart struct {
	Base
	TaskID      string `json:"taskId"`
	Description string `json:"description,omitempty"`
	Background  bool   `json:"background,omitempty"`
}

func (SubagentStart) Kind() string { return KindSubagentStart }

// SubagentDone settles a subagent record.
type SubagentDone struct {
	Base
	TaskID  string               `json:"taskId"`
	Status  types.SubagentStatus `json:"status"`
	Summary string               `json:"summary,omitempty"`
}

func (SubagentDone) Kind() string { return KindSubagentDone }

// Terminal reports whether the event ends its stream. The event source
// delivers exactly one terminal event per correlation id.
func Terminal(e Event) bool {
	switch e.Kind() {
	case KindDone, KindAborted, KindError:
		return true
	}
	return false
}

// envelope is the wire form: the kind tag plus the event payload inline.
type envelope struct {
	Type string `json:"type"`
}

// Unmarshal decodes one wire event by its kind tag.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case KindStatus:
		ev, err = decode[Status](data)
	case KindToolUse:
		ev, err = decode[ToolUse](data)
	case KindToolResult:
		ev, err = decode[ToolResult](data)
	case KindApprovalRequest:
		ev, err = decode[ApprovalRequest](data)
	case KindAskUser:
		ev, err = decode[AskUser](data)
	case KindDelta:
		ev, err = decode[Delta](data)
	case KindDone:
		ev, err = decode[Done](data)
	case KindAborted:
		ev, err = decode[Aborted](data)
	case KindError:
		ev, err = decode[Error](data)
	case KindSubagentStart:
		ev, err = decode[SubagentStart](data)
	case KindSubagentDone:
		ev, err = decode[SubagentDone](data)
	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
	return ev, err
}

// Marshal encodes an event with its kind tag.
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	// Splice the type tag into the payload object.
	if len(payload) < 2 || payload[0] != '{' {
		return nil, fmt.Errorf("event must encode to an object")
	}
	tag := fmt.Sprintf(`{"type":%q`, e.Kind())
	if string(payload) == "{}" {
		return []byte(tag + "}"), nil
	}
	return append([]byte(tag+","), payload[1:]...), nil
}

func decode[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("malformed %s event: %w", v.Kind(), err)
	}
	return v, nil
}
