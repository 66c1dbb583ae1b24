package event

import "github.com/orquestra-ai/orquestra/pkg/types"

// ThreadData is the payload for thread.* events.
type ThreadData struct {
	Thread *types.Thread `json:"thread"`
}

// SessionData is the payload for session.updated events.
type SessionData struct {
	ThreadID string         `json:"threadID"`
	Session  *types.Session `json:"session"`
}

// SessionDeletedData is the payload for session.deleted events.
type SessionDeletedData struct {
	ThreadID  string `json:"threadID"`
	SessionID string `json:"sessionID"`
}

// MediationData is the payload for mediation.required events.
type MediationData struct {
	ThreadID  string          `json:"threadID"`
	SessionID string          `json:"sessionID"`
	Mediation types.Mediation `json:"mediation"`
}

// MediationResolvedData is the payload for mediation.resolved events.
type MediationResolvedData struct {
	SessionID  string `json:"sessionID"`
	ApprovalID string `json:"approvalID"`
	Behavior   string `json:"behavior"` // "allow" | "deny"
}

// TeamData is the payload for team.updated events.
type TeamData struct {
	Snapshot *types.TeamSnapshot `json:"snapshot"`
}

// TeamResumedData is the payload for team.resumed events.
type TeamResumedData struct {
	Team      string `json:"team"`
	SessionID string `json:"sessionID"`
}

// StatusMessageData is the payload for status.message events, used for
// non-fatal conditions surfaced to the user (e.g. a failed mediation
// response).
type StatusMessageData struct {
	SessionID string `json:"sessionID,omitempty"`
	Message   string `json:"message"`
}
