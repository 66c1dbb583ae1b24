// Package controller owns the thread/session table and drives the session
// state machine from two inputs: explicit user actions and the runner's
// event feed. All mutation flows through a single lock, so transitions are
// serialized; concurrency exists only between streams, never inside the
// orchestration state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/orquestra-ai/orquestra/internal/approval"
	"github.com/orquestra-ai/orquestra/internal/event"
	"github.com/orquestra-ai/orquestra/internal/logging"
	"github.com/orquestra-ai/orquestra/internal/runner"
	"github.com/orquestra-ai/orquestra/internal/storage"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

// teamCreateTool is the tool the agent calls to spawn a team. The team
// name is recorded on the owning session and handed to the tracker.
const teamCreateTool = "team_create"

// snapshotVersion is bumped when the persisted state shape changes.
const snapshotVersion = 1

var stateKey = []string{"state", "threads"}

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionActive   = errors.New("session has an active stream")
	ErrNoMediation     = errors.New("session has no pending mediation")
)

// TeamTracker is notified when a session spawns a team. Implemented by the
// team coordination engine.
type TeamTracker interface {
	Track(team, threadID, sessionID string)
}

// Snapshot is the versioned persisted form of the thread table.
type Snapshot struct {
	Version int             `json:"version"`
	Threads []*types.Thread `json:"threads"`
}

// SubmitOptions carries one submission.
type SubmitOptions struct {
	Prompt      string
	Attachments []types.Attachment
	Effort      types.Effort

	// SessionID resumes an existing session when non-empty; otherwise a
	// new session is created in the thread.
	SessionID string
}

// streamRef locates the session owning an in-flight correlation id.
// Entries are removed exactly when a terminal event is routed.
type streamRef struct {
	threadID  string
	sessionID string
}

// Controller is the streaming session controller.
type Controller struct {
	mu  sync.Mutex
	log zerolog.Logger

	runner   runner.Runner
	mediator *approval.Mediator
	bus      *event.Bus
	store    *storage.Storage

	threads map[string]*types.Thread
	order   []string
	streams map[string]streamRef

	tracker TeamTracker
}

// New creates a Controller. Call Load before use and Run to start
// consuming the runner feed.
func New(store *storage.Storage, rn runner.Runner, mediator *approval.Mediator, bus *event.Bus) *Controller {
	return &Controller{
		log:      logging.Component("controller"),
		runner:   rn,
		mediator: mediator,
		bus:      bus,
		store:    store,
		threads:  make(map[string]*types.Thread),
		streams:  make(map[string]streamRef),
	}
}

// SetTeamTracker registers the team engine hook. Must be called before Run.
func (c *Controller) SetTeamTracker(t TeamTracker) {
	c.tracker = t
}

// Load restores the persisted thread snapshot. Sessions that were
// mid-stream when the process died are normalized to idle: their streams
// no longer exist, so correlation ids, mediations and queued messages are
// cleared.
func (c *Controller) Load(ctx context.Context) error {
	var snap Snapshot
	err := c.store.Get(ctx, stateKey, &snap)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load thread snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, th := range snap.Threads {
		for _, sess := range th.Sessions {
			if sess.Status.Active() {
				sess.Status = types.SessionIdle
			}
			sess.CorrelationID = ""
			sess.Mediation = nil
			sess.Queued = nil
			sess.Aborting = false
		}
		c.threads[th.ID] = th
		c.order = append(c.order, th.ID)
	}
	return nil
}

// Run consumes the runner event feed until ctx is cancelled or the feed
// closes.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.runner.Events():
			if !ok {
				return
			}
			c.Route(ev)
		}
	}
}

// Threads returns the thread list in creation order.
func (c *Controller) Threads() []*types.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*types.Thread, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.threads[id])
	}
	return out
}

// Thread returns one thread by id.
func (c *Controller) Thread(id string) (*types.Thread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, ok := c.threads[id]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return th, nil
}

// CreateThread creates an empty thread scoped to workspace directories.
func (c *Controller) CreateThread(ctx context.Context, name string, workspaceDirs []string) (*types.Thread, error) {
	now := time.Now().UnixMilli()
	th := &types.Thread{
		ID:            ulid.Make().String(),
		Name:          name,
		WorkspaceDirs: workspaceDirs,
		Created:       now,
		Updated:       now,
	}

	c.mu.Lock()
	c.threads[th.ID] = th
	c.order = append(c.order, th.ID)
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.bus.Publish(event.Event{Type: event.ThreadCreated, Data: event.ThreadData{Thread: th}})
	return th, nil
}

// RenameThread sets a thread's name.
func (c *Controller) RenameThread(ctx context.Context, threadID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, ok := c.threads[threadID]
	if !ok {
		return ErrThreadNotFound
	}
	th.Name = name
	th.Updated = time.Now().UnixMilli()
	c.persistLocked(ctx)
	c.publishThreadLocked(th)
	return nil
}

// DeleteThread removes a thread. Every session must be at rest.
func (c *Controller) DeleteThread(ctx context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, ok := c.threads[threadID]
	if !ok {
		return ErrThreadNotFound
	}
	for _, sess := range th.Sessions {
		if sess.Status.Active() {
			return fmt.Errorf("%w: %s", ErrSessionActive, sess.ID)
		}
	}

	delete(c.threads, threadID)
	for i, id := range c.order {
		if id == threadID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.persistLocked(ctx)
	c.bus.Publish(event.Event{Type: event.ThreadDeleted, Data: event.ThreadData{Thread: th}})
	return nil
}

// RenameSession sets a session's title.
func (c *Controller) RenameSession(ctx context.Context, sessionID, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, sess := c.findSessionLocked(sessionID)
	if sess == nil {
		return ErrSessionNotFound
	}
	sess.Title = title
	sess.Time.Updated = time.Now().UnixMilli()
	c.persistLocked(ctx)
	c.publishSessionLocked(th, sess)
	return nil
}

// DeleteSession removes a session. Mid-stream sessions must be aborted
// first.
func (c *Controller) DeleteSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, sess := c.findSessionLocked(sessionID)
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.Status.Active() {
		return ErrSessionActive
	}

	for i, s := range th.Sessions {
		if s.ID == sessionID {
			th.Sessions = append(th.Sessions[:i], th.Sessions[i+1:]...)
			break
		}
	}
	th.Updated = time.Now().UnixMilli()
	c.persistLocked(ctx)
	c.bus.Publish(event.Event{Type: event.SessionDeleted, Data: event.SessionDeletedData{ThreadID: th.ID, SessionID: sessionID}})
	c.publishThreadLocked(th)
	return nil
}

// Submit sends a prompt into a thread. Submitting to a session with an
// active stream never opens a second one: the message is queued (replacing
// any previous queued message) and dispatched when the stream reaches its
// terminal event. Submitting to a resting session opens a new stream.
func (c *Controller) Submit(ctx context.Context, threadID string, opts SubmitOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, ok := c.threads[threadID]
	if !ok {
		return "", ErrThreadNotFound
	}

	var sess *types.Session
	if opts.SessionID != "" {
		sess = th.Session(opts.SessionID)
		if sess == nil {
			return "", ErrSessionNotFound
		}
	} else {
		now := time.Now().UnixMilli()
		sess = &types.Session{
			ID:       ulid.Make().String(),
			ThreadID: th.ID,
			Title:    deriveTitle(opts.Prompt),
			Status:   types.SessionIdle,
			Time:     types.SessionTime{Created: now, Updated: now},
		}
		th.Sessions = append(th.Sessions, sess)
	}

	if sess.Status.Active() {
		sess.Queued = &types.QueuedMessage{
			Prompt:      opts.Prompt,
			Attachments: opts.Attachments,
			Effort:      opts.Effort,
			Queued:      time.Now().UnixMilli(),
		}
		sess.Time.Updated = time.Now().UnixMilli()
		c.persistLocked(ctx)
		c.publishSessionLocked(th, sess)
		return sess.ID, nil
	}

	if err := c.startStreamLocked(ctx, th, sess, opts.Prompt, opts.Attachments, opts.Effort); err != nil {
		return "", err
	}
	c.persistLocked(ctx)
	c.publishSessionLocked(th, sess)
	return sess.ID, nil
}

// startStreamLocked opens a new stream on a resting session. The caller
// holds the lock.
func (c *Controller) startStreamLocked(ctx context.Context, th *types.Thread, sess *types.Session, prompt string, attachments []types.Attachment, effort types.Effort) error {
	cid, err := c.runner.Start(ctx, runner.StartOptions{
		Prompt:        prompt,
		Attachments:   attachments,
		WorkspaceDirs: th.WorkspaceDirs,
		Effort:        effort,
		ResumeID:      sess.AgentSessionID,
	})
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	now := time.Now().UnixMilli()
	sess.Messages = append(sess.Messages, types.Message{
		ID:          ulid.Make().String(),
		Role:        "user",
		Content:     prompt,
		Attachments: attachments,
		Created:     now,
	})

	// A fresh stream invalidates the previous turn's accounting and
	// tool timeline.
	sess.Status = types.SessionRunning
	sess.CorrelationID = cid
	sess.Aborting = false
	sess.Timeline = nil
	sess.Subagents = nil
	sess.Cost.LastTurnUSD = 0
	sess.ContextUsage = nil
	sess.Time.Updated = now

	c.streams[cid] = streamRef{threadID: th.ID, sessionID: sess.ID}
	c.log.Info().Str("sessionID", sess.ID).Str("correlationID", cid).Msg("stream started")
	return nil
}

// Abort requests cancellation of the session's active stream. Idempotent
// no-op when the session is at rest. The status only changes when the
// aborted event is routed back.
func (c *Controller) Abort(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	th, sess := c.findSessionLocked(sessionID)
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.CorrelationID == "" {
		return nil
	}

	if err := c.runner.Abort(ctx, sess.CorrelationID); err != nil {
		return fmt.Errorf("abort stream: %w", err)
	}
	sess.Aborting = true
	c.publishSessionLocked(th, sess)
	return nil
}

// TeamBinding links a team name to its owning session.
type TeamBinding struct {
	Team      string
	ThreadID  string
	SessionID string
}

// TeamBindings lists every team name referenced by persisted sessions.
// Used by the team engine to re-subscribe on startup.
func (c *Controller) TeamBindings() []TeamBinding {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []TeamBinding
	for _, id := range c.order {
		th := c.threads[id]
		for _, sess := range th.Sessions {
			for _, team := range sess.TeamNames {
				out = append(out, TeamBinding{Team: team, ThreadID: th.ID, SessionID: sess.ID})
			}
		}
	}
	return out
}

// SessionAtRest reports whether a session can accept a new stream right
// now. Unknown sessions report false.
func (c *Controller) SessionAtRest(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, sess := c.findSessionLocked(sessionID)
	return sess != nil && sess.Status.AtRest()
}

func (c *Controller) findSessionLocked(sessionID string) (*types.Thread, *types.Session) {
	for _, id := range c.order {
		th := c.threads[id]
		if sess := th.Session(sessionID); sess != nil {
			return th, sess
		}
	}
	return nil, nil
}

func (c *Controller) persistLocked(ctx context.Context) {
	snap := Snapshot{Version: snapshotVersion, Threads: make([]*types.Thread, 0, len(c.order))}
	for _, id := range c.order {
		snap.Threads = append(snap.Threads, c.threads[id])
	}
	if err := c.store.Put(ctx, stateKey, snap); err != nil {
		// Persistence failure degrades durability, not correctness;
		// the in-memory state remains the source of truth.
		c.log.Error().Err(err).Msg("persist thread snapshot failed")
	}
}

func (c *Controller) publishThreadLocked(th *types.Thread) {
	c.bus.Publish(event.Event{Type: event.ThreadUpdated, Data: event.ThreadData{Thread: th}})
}

func (c *Controller) publishSessionLocked(th *types.Thread, sess *types.Session) {
	c.bus.Publish(event.Event{Type: event.SessionUpdated, Data: event.SessionData{ThreadID: th.ID, Session: sess}})
	c.publishThreadLocked(th)
}

func deriveTitle(prompt string) string {
	const max = 60
	runes := []rune(prompt)
	for i, r := range runes {
		if r == '\n' {
			runes = runes[:i]
			break
		}
	}
	if len(runes) > max {
		runes = runes[:max]
	}
	if len(runes) == 0 {
		return "New session"
	}
	return string(runes)
}
