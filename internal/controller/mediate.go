package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/orquestra-ai/orquestra/internal/approval"
	"github.com/orquestra-ai/orquestra/internal/event"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

// Approve resolves the session's pending tool approval with the original
// input and resumes the stream.
func (c *Controller) Approve(ctx context.Context, sessionID string) error {
	return c.resolveMediation(ctx, sessionID, func(m types.Mediation) (string, error) {
		appr, ok := m.(*types.ToolApproval)
		if !ok {
			return "", fmt.Errorf("%w: pending mediation is a question form", ErrNoMediation)
		}
		return "allow", c.mediator.Allow(ctx, appr.ID, appr.Input)
	})
}

// ApproveAlways resolves the pending tool approval and persists rules so
// identical future requests never suspend any session.
func (c *Controller) ApproveAlways(ctx context.Context, sessionID string) error {
	return c.resolveMediation(ctx, sessionID, func(m types.Mediation) (string, error) {
		appr, ok := m.(*types.ToolApproval)
		if !ok {
			return "", fmt.Errorf("%w: pending mediation is a question form", ErrNoMediation)
		}
		return "allow", c.mediator.AllowAlways(ctx, appr.ID, appr.ToolName, appr.Input)
	})
}

// Deny resolves the pending tool approval with the fixed deny reason. The
// stream resumes; denial is feedback to the agent, not an abort.
func (c *Controller) Deny(ctx context.Context, sessionID string) error {
	return c.resolveMediation(ctx, sessionID, func(m types.Mediation) (string, error) {
		appr, ok := m.(*types.ToolApproval)
		if !ok {
			return "", fmt.Errorf("%w: pending mediation is a question form", ErrNoMediation)
		}
		return "deny", c.mediator.Deny(ctx, appr.ID)
	})
}

// Answer resolves the session's pending question form. Every question must
// carry a non-empty answer or the form stays open.
func (c *Controller) Answer(ctx context.Context, sessionID string, answers map[string]string) error {
	return c.resolveMediation(ctx, sessionID, func(m types.Mediation) (string, error) {
		q, ok := m.(*types.UserQuestion)
		if !ok {
			return "", fmt.Errorf("%w: pending mediation is a tool approval", ErrNoMediation)
		}
		if err := approval.ValidateAnswers(q, answers); err != nil {
			return "", err
		}
		return "allow", c.mediator.Answer(ctx, q.ID, answers)
	})
}

// resolveMediation runs one resolution attempt under the lock. On success
// the session returns to running; on failure it stays suspended and the
// failure is surfaced as a status message.
func (c *Controller) resolveMediation(ctx context.Context, sessionID string, fn func(types.Mediation) (string, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, sess := c.findSessionLocked(sessionID)
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.Mediation == nil || sess.Status != types.SessionAwaitingApproval {
		return ErrNoMediation
	}

	behavior, err := fn(sess.Mediation)
	if err != nil {
		c.bus.Publish(event.Event{Type: event.StatusMessage, Data: event.StatusMessageData{
			SessionID: sess.ID,
			Message:   err.Error(),
		}})
		return err
	}

	approvalID := sess.Mediation.ApprovalID()
	sess.Mediation = nil
	sess.Status = types.SessionRunning
	sess.Time.Updated = time.Now().UnixMilli()
	c.persistLocked(ctx)
	c.bus.Publish(event.Event{Type: event.MediationResolved, Data: event.MediationResolvedData{
		SessionID:  sess.ID,
		ApprovalID: approvalID,
		Behavior:   behavior,
	}})
	c.publishSessionLocked(th, sess)
	return nil
}
