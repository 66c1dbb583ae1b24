package types

// TeamSnapshot is the externally persisted state of a named multi-agent
// team. The team runtime owns it; this system only reads snapshots and
// reacts. Applying a snapshot replaces any previously applied state for the
// same team wholesale, so re-applying an identical snapshot is a no-op.
type TeamSnapshot struct {
	Name    string         `json:"name"`
	Members []TeamMember   `json:"members"`
	Tasks   []TeamTask     `json:"tasks"`
	Inboxes []MemberInbox  `json:"inboxes,omitempty"`
}

// TeamMember is one roster entry.
type TeamMember struct {
	Name  string `json:"name"`
	Role  string `json:"role"` // "lead" | "worker"
	Model string `json:"model,omitempty"`

	// Idle is reported by the runtime when the member has no active turn.
	Idle bool `json:"idle,omitempty"`

	// Background members are fire-and-forget and never block team
	// settlement.
	Background bool `json:"background,omitempty"`
}

// TeamTaskStatus is the state of a task-board entry.
type TeamTaskStatus string

const (
	TeamTaskPending    TeamTaskStatus = "pending"
	TeamTaskInProgress TeamTaskStatus = "in_progress"
	TeamTaskCompleted  TeamTaskStatus = "completed"
	TeamTaskFailed     TeamTaskStatus = "failed"
)

// Terminal reports whether the task will receive no further updates.
func (s TeamTaskStatus) Terminal() bool {
	return s == TeamTaskCompleted || s == TeamTaskFailed
}

// TeamTask is one task-board entry.
type TeamTask struct {
	ID      string         `json:"id"`
	Subject string         `json:"subject"`
	Status  TeamTaskStatus `json:"status"`
	Owner   string         `json:"owner,omitempty"`
	Blocks  []string       `json:"blocks,omitempty"` // task ids blocked by this one
}

// MemberInbox is the ordered message list for one member.
type MemberInbox struct {
	Member   string         `json:"member"`
	Messages []InboxMessage `json:"messages"`
}

// InboxMessage is one entry in a member inbox.
type InboxMessage struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Lead returns the roster entry with the lead role, or nil.
func (t *TeamSnapshot) Lead() *TeamMember {
	for i := range t.Members {
		if t.Members[i].Role == "lead" {
			return &t.Members[i]
		}
	}
	return nil
}

// TasksFor returns the task-board entries owned by the given member.
func (t *TeamSnapshot) TasksFor(member string) []TeamTask {
	var out []TeamTask
	for _, task := range t.Tasks {
		if task.Owner == member {
			out = append(out, task)
		}
	}
	return out
}
