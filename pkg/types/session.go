// Package types provides the core data types for the orchestration engine.
package types

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionIdle             SessionStatus = "idle"
	SessionRunning          SessionStatus = "running"
	SessionAwaitingApproval SessionStatus = "awaiting_approval"
	SessionDone             SessionStatus = "done"
	SessionError            SessionStatus = "error"
)

// AtRest reports whether a new stream may be started on a session in this
// status. Resting states are idle, done and error.
func (s SessionStatus) AtRest() bool {
	return s == SessionIdle || s == SessionDone || s == SessionError
}

// Active reports whether the session owns a live stream.
func (s SessionStatus) Active() bool {
	return s == SessionRunning || s == SessionAwaitingApproval
}

// Effort is the reasoning-effort hint passed through to the agent runner.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// PermissionMode mirrors the agent's current tool-permission mode as
// reported by status events.
type PermissionMode string

const (
	PermissionDefault     PermissionMode = "default"
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionPlan        PermissionMode = "plan"
	PermissionBypass      PermissionMode = "bypassPermissions"
)

// Session is one execution run of the agent within a thread. A session is
// mutated only by the streaming controller and the approval mediator; the
// active correlation id is non-empty iff the status is running or
// awaiting_approval.
type Session struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadID"`
	Title    string `json:"title"`

	Status SessionStatus `json:"status"`

	// CorrelationID links the session to its in-flight event stream.
	// Cleared when a terminal event is routed.
	CorrelationID string `json:"correlationID,omitempty"`

	// AgentSessionID is the external resumable identifier reported by the
	// last done event. Used to continue the run later.
	AgentSessionID string `json:"agentSessionID,omitempty"`

	// Aborting is set optimistically when an abort is requested; the
	// authoritative status change only happens when the aborted event is
	// routed back.
	Aborting bool `json:"aborting,omitempty"`

	Messages  []Message          `json:"messages"`
	Timeline  []ToolTimelineItem `json:"timeline,omitempty"`
	Subagents []SubagentInfo     `json:"subagents,omitempty"`
	TeamNames []string           `json:"teamNames,omitempty"`

	// Mediation is the single open approval or question, nil when the
	// session is not suspended.
	Mediation Mediation `json:"-"`

	// Queued is the at-most-one follow-up message waiting for the
	// in-flight stream to finish.
	Queued *QueuedMessage `json:"queued,omitempty"`

	PermissionMode PermissionMode `json:"permissionMode,omitempty"`
	Cost           CostInfo       `json:"cost"`
	ContextUsage   *ContextUsage  `json:"contextUsage,omitempty"`

	Time SessionTime `json:"time"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// CostInfo tracks accumulated and last-turn cost in USD.
type CostInfo struct {
	TotalUSD    float64 `json:"totalUSD"`
	LastTurnUSD float64 `json:"lastTurnUSD"`
}

// ContextUsage is the context-window snapshot for the current turn.
type ContextUsage struct {
	InputTokens int `json:"inputTokens"`
	MaxTokens   int `json:"maxTokens"`
}

// Percent returns context usage as a 0-100 percentage.
func (c ContextUsage) Percent() float64 {
	if c.MaxTokens <= 0 {
		return 0
	}
	return float64(c.InputTokens) / float64(c.MaxTokens) * 100
}

// Message is one entry in a session's ordered message list.
type Message struct {
	ID          string       `json:"id"`
	Role        string       `json:"role"` // "user" | "assistant"
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Interrupted bool         `json:"interrupted,omitempty"`
	Created     int64        `json:"created"`
}

// Attachment is a file or image referenced by a message.
type Attachment struct {
	Type      string `json:"type"` // "file" | "image"
	Path      string `json:"path,omitempty"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// QueuedMessage is a follow-up submitted while a stream was in flight.
// At most one is held per session; a newer submission replaces it.
type QueuedMessage struct {
	Prompt      string       `json:"prompt"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Effort      Effort       `json:"effort,omitempty"`
	Queued      int64        `json:"queued"`
}

// ToolStatus is the state of one tool invocation on the timeline.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ToolTimelineItem is one tool invocation, upserted by tool-use id.
// Ordering within a session's timeline is append-only.
type ToolTimelineItem struct {
	ToolUseID string     `json:"toolUseID"`
	Name      string     `json:"name"`
	Input     string     `json:"input,omitempty"`
	Result    string     `json:"result,omitempty"`
	Status    ToolStatus `json:"status"`
	Started   int64      `json:"started,omitempty"`
	Finished  int64      `json:"finished,omitempty"`
}

// SubagentStatus is the state of a delegated unit of work.
type SubagentStatus string

const (
	SubagentRunning   SubagentStatus = "running"
	SubagentCompleted SubagentStatus = "completed"
	SubagentFailed    SubagentStatus = "failed"
	SubagentStopped   SubagentStatus = "stopped"

	// SubagentBackground marks a fire-and-forget team member. It is a
	// permanent terminal state: the session never polls it for completion.
	SubagentBackground SubagentStatus = "background"
)

// Terminal reports whether the subagent record will receive no further
// updates.
func (s SubagentStatus) Terminal() bool {
	return s != SubagentRunning
}

// SubagentInfo is a delegated unit of work spawned by the running agent.
type SubagentInfo struct {
	TaskID      string         `json:"taskID"`
	Description string         `json:"description"`
	Status      SubagentStatus `json:"status"`
	Summary     string         `json:"summary,omitempty"`
}
