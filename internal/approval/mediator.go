// Package approval mediates tool-permission and user-question suspension
// points. Requests are first evaluated against a persisted, ordered rule
// set; a match auto-resolves without the session ever becoming observably
// suspended. Everything else surfaces to the human and is resolved through
// the same runner channel.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/orquestra-ai/orquestra/internal/logging"
	"github.com/orquestra-ai/orquestra/internal/runner"
	"github.com/orquestra-ai/orquestra/internal/storage"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

// DenyReason is the fixed message sent with every denial. Denial does not
// abort the run; the agent is expected to react to it.
const DenyReason = "The user declined this tool use."

var rulesKey = []string{"approval", "rules"}

// Mediator resolves approvals and questions against rules, the runner and
// persisted state.
type Mediator struct {
	mu    sync.RWMutex
	rules []Rule

	store  *storage.Storage
	runner runner.Runner
	log    zerolog.Logger
}

// NewMediator creates a Mediator and loads the persisted rule set.
func NewMediator(ctx context.Context, store *storage.Storage, rn runner.Runner) (*Mediator, error) {
	m := &Mediator{
		store:  store,
		runner: rn,
		log:    logging.Component("approval"),
	}

	var rules []Rule
	if err := store.Get(ctx, rulesKey, &rules); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load approval rules: %w", err)
	}
	m.rules = rules
	return m, nil
}

// AutoResolve checks the rule set for the request and, on a match, sends
// the allow response immediately. Returns true when the request was
// resolved and must not suspend the session.
func (m *Mediator) AutoResolve(ctx context.Context, approvalID, toolName string, input map[string]any) (bool, error) {
	m.mu.RLock()
	matched := matchRules(m.rules, toolName, input)
	m.mu.RUnlock()

	if !matched {
		return false, nil
	}

	m.log.Debug().Str("tool", toolName).Str("approvalID", approvalID).Msg("rule matched, auto-allowing")
	if err := m.respondAllow(ctx, approvalID, input); err != nil {
		return false, err
	}
	return true, nil
}

// Allow resolves a pending approval with the original input.
func (m *Mediator) Allow(ctx context.Context, approvalID string, input map[string]any) error {
	return m.respondAllow(ctx, approvalID, input)
}

// AllowAlways persists rules derived from the request, then allows it.
// Identical future requests auto-resolve in any session.
func (m *Mediator) AllowAlways(ctx context.Context, approvalID, toolName string, input map[string]any) error {
	derived := DeriveRules(toolName, input)
	if len(derived) > 0 {
		m.mu.Lock()
		m.rules = append(m.rules, derived...)
		err := m.saveRulesLocked(ctx)
		m.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return m.respondAllow(ctx, approvalID, input)
}

// Deny resolves a pending approval with the fixed deny reason.
func (m *Mediator) Deny(ctx context.Context, approvalID string) error {
	return m.runner.Respond(ctx, approvalID, runner.ApprovalResponse{
		Behavior: runner.BehaviorDeny,
		Message:  DenyReason,
	})
}

// Answer resolves a pending question form with the answer map as the
// allow payload.
func (m *Mediator) Answer(ctx context.Context, approvalID string, answers map[string]string) error {
	payload := make(map[string]any, len(answers))
	for k, v := range answers {
		payload[k] = v
	}
	return m.runner.Respond(ctx, approvalID, runner.ApprovalResponse{
		Behavior:     runner.BehaviorAllow,
		UpdatedInput: payload,
	})
}

func (m *Mediator) respondAllow(ctx context.Context, approvalID string, input map[string]any) error {
	return m.runner.Respond(ctx, approvalID, runner.ApprovalResponse{
		Behavior:     runner.BehaviorAllow,
		UpdatedInput: input,
	})
}

// Rules returns a copy of the current rule set in evaluation order.
func (m *Mediator) Rules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// AddRule appends and persists a manually administered rule.
func (m *Mediator) AddRule(ctx context.Context, toolName, pattern string) (Rule, error) {
	r := Rule{
		ID:       ulid.Make().String(),
		ToolName: toolName,
		Pattern:  pattern,
		Created:  time.Now().UnixMilli(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
	if err := m.saveRulesLocked(ctx); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// RemoveRule deletes a rule by id.
func (m *Mediator) RemoveRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return m.saveRulesLocked(ctx)
		}
	}
	return storage.ErrNotFound
}

func (m *Mediator) saveRulesLocked(ctx context.Context) error {
	if err := m.store.Put(ctx, rulesKey, m.rules); err != nil {
		return fmt.Errorf("persist approval rules: %w", err)
	}
	return nil
}

// ValidateAnswers enforces the submission precondition on a question form:
// every question must have a non-empty answer.
func ValidateAnswers(q *types.UserQuestion, answers map[string]string) error {
	for _, question := range q.Questions {
		if answers[question.Key] == "" {
			return fmt.Errorf("question %q not answered", question.Key)
		}
	}
	return nil
}
