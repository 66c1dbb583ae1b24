package team

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/orquestra-ai/orquestra/internal/logging"
	"github.com/orquestra-ai/orquestra/pkg/types"
)

// DefaultPollInterval is the fixed snapshot refresh interval.
const DefaultPollInterval = 2 * time.Second

// Poller refreshes snapshots for every tracked team on a fixed interval.
// When the runtime directory is known, filesystem changes nudge an
// immediate refresh between ticks; the ticker remains the correctness
// mechanism, the watch is only latency.
type Poller struct {
	engine   *Engine
	client   RuntimeClient
	interval time.Duration
	watchDir string
	log      zerolog.Logger
}

// NewPoller creates a Poller. watchDir may be empty to disable the
// filesystem nudge.
func NewPoller(engine *Engine, client RuntimeClient, interval time.Duration, watchDir string) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		engine:   engine,
		client:   client,
		interval: interval,
		watchDir: watchDir,
		log:      logging.Component("team-poller"),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	nudge := p.watch(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-nudge:
			// Coalesce a burst of filesystem events into one refresh.
			drain(nudge)
		}
		p.refresh(ctx)
	}
}

// refresh pulls one snapshot per tracked team. Read failures are retried
// briefly with jittered backoff; a team that stays unreadable is skipped
// until the next tick.
func (p *Poller) refresh(ctx context.Context) {
	for _, name := range p.engine.Tracked() {
		snap, err := backoff.RetryWithData(
			func() (*types.TeamSnapshot, error) { return p.fetch(ctx, name) },
			backoff.WithContext(newRetryPolicy(), ctx),
		)
		if err != nil {
			p.log.Warn().Err(err).Str("team", name).Msg("snapshot refresh failed")
			continue
		}
		p.engine.HandleSnapshot(ctx, snap)
	}
}

func (p *Poller) fetch(ctx context.Context, name string) (*types.TeamSnapshot, error) {
	snap, err := p.client.Snapshot(ctx, name)
	if errors.Is(err, ErrTeamNotFound) {
		// Not retryable: the runtime has not materialized the team yet.
		return nil, backoff.Permanent(err)
	}
	return snap, err
}

func newRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second
	return policy
}

// watch starts the fsnotify nudge channel, or returns a nil channel when
// watching is disabled or unavailable.
func (p *Poller) watch(ctx context.Context) <-chan struct{} {
	if p.watchDir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.log.Debug().Err(err).Msg("fsnotify unavailable, polling only")
		return nil
	}
	if err := watcher.Add(p.watchDir); err != nil {
		p.log.Debug().Err(err).Str("dir", p.watchDir).Msg("watch failed, polling only")
		watcher.Close()
		return nil
	}

	nudge := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case nudge <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.log.Debug().Err(err).Msg("watch error")
			}
		}
	}()
	return nudge
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
