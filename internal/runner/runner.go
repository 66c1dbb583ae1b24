// Package runner abstracts the external agent-execution collaborator: the
// process that actually runs the agent and emits stream events. The
// orchestration core consumes it only through this interface.
package runner

import (
	"context"

	"github.com/orquestra-ai/orquestra/internal/protocol"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

// StartOptions describes a stream to open.
type StartOptions struct {
	Prompt        string
	Attachments   []types.Attachment
	WorkspaceDirs []string
	Effort        types.Effort

	// ResumeID continues a previous run when non-empty.
	ResumeID string
}

// Behavior is the decision carried by an approval response.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// ApprovalResponse resolves a pending approval or question. For question
// forms, UpdatedInput carries the answer map.
type ApprovalResponse struct {
	Behavior     Behavior       `json:"behavior"`
	UpdatedInput map[string]any `json:"updatedInput,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// Runner is the push-based event source for agent runs. Events for one
// correlation id arrive in causal order with exactly one terminal event;
// no ordering holds across correlation ids.
type Runner interface {
	// Start opens a new stream and returns its correlation id.
	Start(ctx context.Context, opts StartOptions) (string, error)

	// Abort requests cooperative cancellation of a stream. The
	// authoritative state change arrives later as an aborted event.
	Abort(ctx context.Context, correlationID string) error

	// Respond resolves a pending approval or question.
	Respond(ctx context.Context, approvalID string, resp ApprovalResponse) error

	// Events returns the shared event feed for all streams.
	Events() <-chan protocol.Event
}
