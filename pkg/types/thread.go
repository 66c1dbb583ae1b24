package types

import "encoding/json"

// ThreadStatus is the derived status of a thread. It is a pure function of
// the thread's sessions and is never stored authoritatively.
type ThreadStatus string

const (
	ThreadIdle           ThreadStatus = "idle"
	ThreadRunning        ThreadStatus = "running"
	ThreadNeedsAttention ThreadStatus = "needs_attention"
	ThreadDone           ThreadStatus = "done"
)

// Thread is a named unit of work scoped to one or more workspace
// directories. Sessions are kept in insertion order.
type Thread struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	WorkspaceDirs []string   `json:"workspaceDirs"`
	Sessions      []*Session `json:"sessions"`
	Created       int64      `json:"created"`
	Updated       int64      `json:"updated"`
}

// Status derives the thread status from its sessions: needs_attention wins
// over running, running over done, done over idle.
func (t *Thread) Status() ThreadStatus {
	anyRunning := false
	anyFinished := false
	for _, s := range t.Sessions {
		switch s.Status {
		case SessionAwaitingApproval:
			return ThreadNeedsAttention
		case SessionRunning:
			anyRunning = true
		case SessionDone, SessionError:
			anyFinished = true
		}
	}
	if anyRunning {
		return ThreadRunning
	}
	if anyFinished {
		return ThreadDone
	}
	return ThreadIdle
}

// TotalCostUSD is the cumulative cost of all completed streams across the
// thread's sessions.
func (t *Thread) TotalCostUSD() float64 {
	var total float64
	for _, s := range t.Sessions {
		total += s.Cost.TotalUSD
	}
	return total
}

// Session returns the session with the given id, or nil.
func (t *Thread) Session(id string) *Session {
	for _, s := range t.Sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

type threadAlias Thread

type threadJSON struct {
	*threadAlias
	Status       ThreadStatus `json:"status"`
	TotalCostUSD float64      `json:"totalCostUSD"`
}

// MarshalJSON adds the derived status and cumulative cost so
// presentation-layer consumers never have to recompute them.
func (t *Thread) MarshalJSON() ([]byte, error) {
	return json.Marshal(threadJSON{
		threadAlias:  (*threadAlias)(t),
		Status:       t.Status(),
		TotalCostUSD: t.TotalCostUSD(),
	})
}

// UnmarshalJSON discards any persisted status field; Status() is always
// recomputed from sessions.
func (t *Thread) UnmarshalJSON(data []byte) error {
	in := threadJSON{threadAlias: (*threadAlias)(t)}
	return json.Unmarshal(data, &in)
}
