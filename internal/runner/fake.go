package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/orquestra-ai/orquestra/internal/protocol"
)

// Fake is an in-memory Runner for tests. Correlation ids are deterministic
// ("corr-1", "corr-2", ...) and every call is recorded.
type Fake struct {
	mu     sync.Mutex
	next   int
	events chan protocol.Event

	Started  []StartOptions
	Aborted  []string
	Responds []RespondCall

	// StartErr, when set, fails the next Start call.
	StartErr error
	// RespondErr, when set, fails Respond calls.
	RespondErr error
}

// RespondCall records one Respond invocation.
type RespondCall struct {
	ApprovalID string
	Response   ApprovalResponse
}

// NewFake creates a Fake with a buffered event feed.
func NewFake() *Fake {
	return &Fake{events: make(chan protocol.Event, 128)}
}

// Start records the options and hands out the next correlation id.
func (f *Fake) Start(ctx context.Context, opts StartOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StartErr != nil {
		err := f.StartErr
		f.StartErr = nil
		return "", err
	}
	f.next++
	f.Started = append(f.Started, opts)
	return fmt.Sprintf("corr-%d", f.next), nil
}

// Abort records the request; the caller is expected to emit the aborted
// event itself, mirroring the cooperative cancellation contract.
func (f *Fake) Abort(ctx context.Context, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Aborted = append(f.Aborted, correlationID)
	return nil
}

// Respond records the resolution.
func (f *Fake) Respond(ctx context.Context, approvalID string, resp ApprovalResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RespondErr != nil {
		return f.RespondErr
	}
	f.Responds = append(f.Responds, RespondCall{ApprovalID: approvalID, Response: resp})
	return nil
}

// Events returns the fake feed.
func (f *Fake) Events() <-chan protocol.Event {
	return f.events
}

// Emit pushes an event onto the feed.
func (f *Fake) Emit(ev protocol.Event) {
	f.events <- ev
}

// LastStart returns the most recent StartOptions.
func (f *Fake) LastStart() StartOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Started) == 0 {
		return StartOptions{}
	}
	return f.Started[len(f.Started)-1]
}

// StartCount returns how many streams were opened.
func (f *Fake) StartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Started)
}
