package types

import (
	"encoding/json"
	"fmt"
)

// Mediation is the single open suspension point of a session: either a tool
// approval or a structured user question, never both. The tagged union makes
// the mutual exclusivity a type-level invariant instead of a pair of fields
// that consumers have to nil-check.
type Mediation interface {
	MediationKind() string
	ApprovalID() string
}

// ToolApproval is a pending tool-permission request.
type ToolApproval struct {
	ID       string         `json:"id"`
	ToolName string         `json:"toolName"`
	Input    map[string]any `json:"input,omitempty"`

	// Summary is a human-readable rendering of the input, e.g. the bash
	// command line or a unified diff for file edits.
	Summary string `json:"summary,omitempty"`

	// MemberName is set when the request was raised for a team member and
	// relayed through the leader session.
	MemberName string `json:"memberName,omitempty"`

	Requested int64 `json:"requested"`
}

func (*ToolApproval) MediationKind() string { return "tool_approval" }

func (a *ToolApproval) ApprovalID() string { return a.ID }

// UserQuestion is a pending structured multi-question form.
type UserQuestion struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
	Requested int64      `json:"requested"`
}

func (*UserQuestion) MediationKind() string { return "user_question" }

func (q *UserQuestion) ApprovalID() string { return q.ID }

// Question is one entry in a user-question form.
type Question struct {
	Key         string           `json:"key"`
	Prompt      string           `json:"prompt"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`
}

// QuestionOption is one selectable answer for a question.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// mediationEnvelope carries the kind tag next to the payload on the wire.
type mediationEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalMediation encodes a mediation with its kind tag. A nil mediation
// encodes as JSON null.
func MarshalMediation(m Mediation) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(mediationEnvelope{Kind: m.MediationKind(), Payload: payload})
}

// UnmarshalMediation decodes a tagged mediation envelope.
func UnmarshalMediation(data []byte) (Mediation, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env mediationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case "tool_approval":
		var a ToolApproval
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, err
		}
		return &a, nil
	case "user_question":
		var q UserQuestion
		if err := json.Unmarshal(env.Payload, &q); err != nil {
			return nil, err
		}
		return &q, nil
	default:
		return nil, fmt.Errorf("unknown mediation kind: %q", env.Kind)
	}
}

// sessionAlias breaks the MarshalJSON recursion.
type sessionAlias Session

type sessionJSON struct {
	*sessionAlias
	MediationJSON json.RawMessage `json:"mediation,omitempty"`
}

// MarshalJSON includes the tagged mediation envelope.
func (s *Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{sessionAlias: (*sessionAlias)(s)}
	if s.Mediation != nil {
		raw, err := MarshalMediation(s.Mediation)
		if err != nil {
			return nil, err
		}
		out.MediationJSON = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged mediation envelope back into the
// interface field.
func (s *Session) UnmarshalJSON(data []byte) error {
	in := sessionJSON{sessionAlias: (*sessionAlias)(s)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.MediationJSON) > 0 {
		m, err := UnmarshalMediation(in.MediationJSON)
		if err != nil {
			return err
		}
		s.Mediation = m
	}
	return nil
}
