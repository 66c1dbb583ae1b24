// Package team tracks externally coordinated multi-agent teams and decides
// when to hand control back to the session that spawned them. Team state is
// owned by an external runtime and observed as immutable snapshots; the
// engine never mutates session state directly, it only calls the same
// submit entry point a human would.
package team

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orquestra-ai/orquestra/internal/controller"
	"github.com/orquestra-ai/orquestra/internal/event"
	"github.com/orquestra-ai/orquestra/internal/logging"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

// resumeHeader opens the synthesized prompt sent when a team settles.
const resumeHeader = "All team members have finished. Task board:"

// Orchestrator is the slice of the streaming controller the engine drives.
type Orchestrator interface {
	Submit(ctx context.Context, threadID string, opts controller.SubmitOptions) (string, error)
}

// tracked is the engine-side record for one team.
type tracked struct {
	threadID  string
	sessionID string

	snapshot *types.TeamSnapshot
	settled  bool
	resumed  bool
}

// Engine is the team coordination engine. It implements
// controller.TeamTracker.
type Engine struct {
	mu  sync.Mutex
	log zerolog.Logger

	orch Orchestrator
	bus  *event.Bus

	teams map[string]*tracked
}

// NewEngine creates an Engine.
func NewEngine(orch Orchestrator, bus *event.Bus) *Engine {
	return &Engine{
		log:   logging.Component("team"),
		orch:  orch,
		bus:   bus,
		teams: make(map[string]*tracked),
	}
}

// Track registers a team as owned by a session. Snapshots for untracked
// teams are rejected, so tracking must happen before the first poll.
func (e *Engine) Track(team, threadID, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.teams[team]; ok {
		return
	}
	e.teams[team] = &tracked{threadID: threadID, sessionID: sessionID}
	e.log.Info().Str("team", team).Str("sessionID", sessionID).Msg("tracking team")
}

// Untrack forgets a team. Subsequent snapshots for it are rejected.
func (e *Engine) Untrack(team string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.teams, team)
}

// Tracked returns the tracked team names.
func (e *Engine) Tracked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.teams))
	for name := range e.teams {
		out = append(out, name)
	}
	return out
}

// Rehydrate re-subscribes to every team referenced by persisted sessions.
// After a process restart the tracked set is empty while persisted threads
// still name their teams; without this step legitimate snapshots would be
// rejected as untracked.
func (e *Engine) Rehydrate(bindings []controller.TeamBinding) {
	for _, b := range bindings {
		e.Track(b.Team, b.ThreadID, b.SessionID)
	}
}

// Snapshot returns the last applied snapshot for a team, or nil.
func (e *Engine) Snapshot(team string) *types.TeamSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.teams[team]; ok {
		return t.snapshot
	}
	return nil
}

// HandleSnapshot applies one snapshot refresh. Application replaces the
// team's stored state wholesale, so re-applying an identical snapshot is a
// no-op. Returns false when the team is untracked; that is a deliberate
// skip, not an error.
func (e *Engine) HandleSnapshot(ctx context.Context, snap *types.TeamSnapshot) bool {
	e.mu.Lock()

	t, ok := e.teams[snap.Name]
	if !ok {
		e.mu.Unlock()
		e.log.Debug().Str("team", snap.Name).Msg("snapshot for untracked team rejected")
		return false
	}

	if reflect.DeepEqual(t.snapshot, snap) {
		e.mu.Unlock()
		return true
	}
	t.snapshot = snap

	wasSettled := t.settled
	t.settled = settled(snap)
	if !t.settled {
		// The team picked work back up; a later settlement may resume
		// again.
		t.resumed = false
	}

	fire := t.settled && !wasSettled && !t.resumed
	if fire {
		t.resumed = true
	}
	threadID, sessionID := t.threadID, t.sessionID
	e.mu.Unlock()

	e.bus.Publish(event.Event{Type: event.TeamUpdated, Data: event.TeamData{Snapshot: snap}})

	if fire {
		e.autoResume(ctx, snap, threadID, sessionID)
	}
	return true
}

// settled reports whether the team has handed control back: the lead is
// idle and every other member is either background or out of live tasks.
func settled(snap *types.TeamSnapshot) bool {
	lead := snap.Lead()
	if lead == nil || !lead.Idle {
		return false
	}
	for _, m := range snap.Members {
		if m.Role == "lead" || m.Background {
			continue
		}
		for _, task := range snap.TasksFor(m.Name) {
			if !task.Status.Terminal() {
				return false
			}
		}
	}
	return true
}

// autoResume submits the synthesized completion prompt to the owning
// session. Failure leaves the session at rest for a manual resume; the
// engine does not retry.
func (e *Engine) autoResume(ctx context.Context, snap *types.TeamSnapshot, threadID, sessionID string) {
	prompt := resumePrompt(snap)
	_, err := e.orch.Submit(ctx, threadID, controller.SubmitOptions{
		SessionID: sessionID,
		Prompt:    prompt,
	})
	if err != nil {
		e.log.Error().Err(err).Str("team", snap.Name).Str("sessionID", sessionID).Msg("team auto-resume failed")
		return
	}

	e.log.Info().Str("team", snap.Name).Str("sessionID", sessionID).Msg("team settled, session resumed")
	e.bus.Publish(event.Event{Type: event.TeamResumed, Data: event.TeamResumedData{
		Team:      snap.Name,
		SessionID: sessionID,
	}})
}

// resumePrompt renders the task board, one line per entry, under the fixed
// header.
func resumePrompt(snap *types.TeamSnapshot) string {
	var b strings.Builder
	b.WriteString(resumeHeader)
	for _, task := range snap.Tasks {
		b.WriteString("\n- ")
		b.WriteString(task.Subject)
		b.WriteString(": ")
		b.WriteString(string(task.Status))
		if task.Owner != "" {
			fmt.Fprintf(&b, " (%s)", task.Owner)
		}
	}
	return b.String()
}
