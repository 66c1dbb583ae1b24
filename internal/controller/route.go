package controller

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/orquestra-ai/orquestra/internal/approval"
	"github.com/orquestra-ai/orquestra/internal/event"
	"github.com/orquestra-ai/orquestra/internal/protocol"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

// Route applies one stream event to the owning session. Events whose
// correlation id is unknown are dropped silently: late completions and
// aborts from already-terminated streams are expected, not errors.
func (c *Controller) Route(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.streams[ev.CorrelationID()]
	if !ok {
		c.log.Debug().Str("correlationID", ev.CorrelationID()).Str("kind", ev.Kind()).Msg("dropping unroutable event")
		return
	}
	th := c.threads[ref.threadID]
	sess := th.Session(ref.sessionID)
	if sess == nil {
		c.log.Debug().Str("sessionID", ref.sessionID).Msg("stream entry for deleted session")
		delete(c.streams, ev.CorrelationID())
		return
	}

	ctx := context.Background()
	now := time.Now().UnixMilli()
	sess.Time.Updated = now

	switch e := ev.(type) {
	case protocol.Status:
		if e.PermissionMode != "" {
			sess.PermissionMode = e.PermissionMode
		}
		if e.ContextUsage != nil {
			sess.ContextUsage = e.ContextUsage
		}
		c.publishSessionLocked(th, sess)

	case protocol.ToolUse:
		c.upsertToolUseLocked(th, sess, e)
		c.publishSessionLocked(th, sess)

	case protocol.ToolResult:
		c.upsertToolResultLocked(sess, e)
		c.publishSessionLocked(th, sess)

	case protocol.ApprovalRequest:
		c.handleApprovalLocked(ctx, th, sess, e)

	case protocol.AskUser:
		sess.Mediation = &types.UserQuestion{
			ID:        e.ApprovalID,
			Questions: e.Questions,
			Requested: now,
		}
		sess.Status = types.SessionAwaitingApproval
		c.persistLocked(ctx)
		c.bus.Publish(event.Event{Type: event.MediationRequired, Data: event.MediationData{
			ThreadID: th.ID, SessionID: sess.ID, Mediation: sess.Mediation,
		}})
		c.publishSessionLocked(th, sess)

	case protocol.Delta:
		msg := c.trailingAssistantLocked(sess)
		msg.Content = e.Content
		c.publishSessionLocked(th, sess)

	case protocol.Done:
		if e.Content != "" {
			c.trailingAssistantLocked(sess).Content = e.Content
		}
		sess.Cost.LastTurnUSD = e.CostUSD
		sess.Cost.TotalUSD += e.CostUSD
		if e.SessionID != "" {
			sess.AgentSessionID = e.SessionID
		}
		c.finishStreamLocked(sess, ev.CorrelationID(), types.SessionDone)
		c.dispatchQueuedLocked(ctx, th, sess)
		c.persistLocked(ctx)
		c.publishSessionLocked(th, sess)

	case protocol.Aborted:
		if n := len(sess.Messages); n > 0 && sess.Messages[n-1].Role == "assistant" {
			sess.Messages[n-1].Interrupted = true
		}
		c.finishStreamLocked(sess, ev.CorrelationID(), types.SessionIdle)
		c.dispatchQueuedLocked(ctx, th, sess)
		c.persistLocked(ctx)
		c.publishSessionLocked(th, sess)

	case protocol.Error:
		msg := c.trailingAssistantLocked(sess)
		msg.Content = protocol.NormalizeError(e.Subtype, e.Message)
		c.finishStreamLocked(sess, ev.CorrelationID(), types.SessionError)
		c.dispatchQueuedLocked(ctx, th, sess)
		c.persistLocked(ctx)
		c.publishSessionLocked(th, sess)

	case protocol.SubagentStart:
		status := types.SubagentRunning
		if e.Background {
			status = types.SubagentBackground
		}
		c.upsertSubagentLocked(sess, e.TaskID, status, e.Description, "")
		c.publishSessionLocked(th, sess)

	case protocol.SubagentDone:
		c.upsertSubagentLocked(sess, e.TaskID, e.Status, "", e.Summary)
		c.publishSessionLocked(th, sess)
	}
}

// finishStreamLocked applies a terminal event: the stream table entry is
// removed here and only here (or never, for streams that die silently).
func (c *Controller) finishStreamLocked(sess *types.Session, correlationID string, status types.SessionStatus) {
	delete(c.streams, correlationID)
	sess.CorrelationID = ""
	sess.Mediation = nil
	sess.Aborting = false
	sess.Status = status
}

// dispatchQueuedLocked starts the queued follow-up, if any, now that the
// previous stream is terminal.
func (c *Controller) dispatchQueuedLocked(ctx context.Context, th *types.Thread, sess *types.Session) {
	q := sess.Queued
	if q == nil {
		return
	}
	sess.Queued = nil
	if err := c.startStreamLocked(ctx, th, sess, q.Prompt, q.Attachments, q.Effort); err != nil {
		c.log.Error().Err(err).Str("sessionID", sess.ID).Msg("queued message dispatch failed")
	}
}

func (c *Controller) handleApprovalLocked(ctx context.Context, th *types.Thread, sess *types.Session, e protocol.ApprovalRequest) {
	resolved, err := c.mediator.AutoResolve(ctx, e.ApprovalID, e.ToolName, e.Input)
	if err != nil {
		c.log.Error().Err(err).Str("approvalID", e.ApprovalID).Msg("rule auto-resolve failed, surfacing to user")
	}
	if resolved {
		// The session was never observably suspended.
		return
	}

	sess.Mediation = &types.ToolApproval{
		ID:         e.ApprovalID,
		ToolName:   e.ToolName,
		Input:      e.Input,
		Summary:    approval.Summarize(e.ToolName, e.Input),
		MemberName: e.MemberName,
		Requested:  time.Now().UnixMilli(),
	}
	sess.Status = types.SessionAwaitingApproval
	c.persistLocked(ctx)
	c.bus.Publish(event.Event{Type: event.MediationRequired, Data: event.MediationData{
		ThreadID: th.ID, SessionID: sess.ID, Mediation: sess.Mediation,
	}})
	c.publishSessionLocked(th, sess)
}

// upsertToolUseLocked inserts a pending timeline entry, keyed by tool-use
// id. A duplicate re-arrival never creates a second entry and never
// regresses a settled one.
func (c *Controller) upsertToolUseLocked(th *types.Thread, sess *types.Session, e protocol.ToolUse) {
	if e.Name == teamCreateTool {
		c.recordTeamLocked(th, sess, e)
	}

	for i := range sess.Timeline {
		if sess.Timeline[i].ToolUseID == e.ToolUseID {
			return
		}
	}
	sess.Timeline = append(sess.Timeline, types.ToolTimelineItem{
		ToolUseID: e.ToolUseID,
		Name:      e.Name,
		Input:     approval.Summarize(e.Name, e.Input),
		Status:    types.ToolPending,
		Started:   e.Timestamp,
	})
}

// upsertToolResultLocked settles the matching entry, inserting a synthetic
// one when the tool_use event was lost.
func (c *Controller) upsertToolResultLocked(sess *types.Session, e protocol.ToolResult) {
	status := types.ToolCompleted
	if e.IsError {
		status = types.ToolError
	}

	for i := range sess.Timeline {
		if sess.Timeline[i].ToolUseID == e.ToolUseID {
			sess.Timeline[i].Status = status
			sess.Timeline[i].Result = e.Content
			sess.Timeline[i].Finished = e.Timestamp
			return
		}
	}
	sess.Timeline = append(sess.Timeline, types.ToolTimelineItem{
		ToolUseID: e.ToolUseID,
		Status:    status,
		Result:    e.Content,
		Finished:  e.Timestamp,
	})
}

func (c *Controller) upsertSubagentLocked(sess *types.Session, taskID string, status types.SubagentStatus, description, summary string) {
	for i := range sess.Subagents {
		if sess.Subagents[i].TaskID != taskID {
			continue
		}
		// Background is permanent: the record never leaves it.
		if sess.Subagents[i].Status == types.SubagentBackground {
			return
		}
		sess.Subagents[i].Status = status
		if summary != "" {
			sess.Subagents[i].Summary = summary
		}
		return
	}
	sess.Subagents = append(sess.Subagents, types.SubagentInfo{
		TaskID:      taskID,
		Description: description,
		Status:      status,
		Summary:     summary,
	})
}

func (c *Controller) recordTeamLocked(th *types.Thread, sess *types.Session, e protocol.ToolUse) {
	name, _ := e.Input["name"].(string)
	if name == "" {
		return
	}
	for _, existing := range sess.TeamNames {
		if existing == name {
			return
		}
	}
	sess.TeamNames = append(sess.TeamNames, name)
	if c.tracker != nil {
		c.tracker.Track(name, th.ID, sess.ID)
	}
}

// trailingAssistantLocked returns the trailing assistant message, creating
// it when the last message is from the user.
func (c *Controller) trailingAssistantLocked(sess *types.Session) *types.Message {
	if n := len(sess.Messages); n > 0 && sess.Messages[n-1].Role == "assistant" {
		return &sess.Messages[n-1]
	}
	sess.Messages = append(sess.Messages, types.Message{
		ID:      ulid.Make().String(),
		Role:    "assistant",
		Created: time.Now().UnixMilli(),
	})
	return &sess.Messages[len(sess.Messages)-1]
}
