// Package follower watches what a Spotify account is playing and queues the
// link songs of every head song that starts.
package follower

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"linkedsongs/mapping"
	"linkedsongs/sentryhelper"
)

const DefaultInterval = 2 * time.Second

// Provider is the part of the streaming API a follower needs.
type Provider interface {
	// CurrentlyPlaying returns the URI of the current track. ok is false
	// when nothing is playing.
	CurrentlyPlaying(ctx context.Context) (uri string, ok bool, err error)
	Queue(ctx context.Context, uri string) error
}

// Follower polls the provider at a fixed interval and dispatches on every
// track change. Polls and dispatches run strictly one after another.
type Follower struct {
	provider   Provider
	interval   time.Duration
	observer   Observer
	dispatcher *Dispatcher
	logger     *log.Entry
}

func New(provider Provider, snapshot *mapping.Snapshot, interval time.Duration, logger *log.Entry) *Follower {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.WithField("module", "follower")
	}
	return &Follower{
		provider:   provider,
		interval:   interval,
		dispatcher: NewDispatcher(provider, snapshot, logger),
		logger:     logger,
	}
}

// Run polls until ctx is cancelled. The first poll happens one interval in,
// giving freshly started playback time to register.
func (f *Follower) Run(ctx context.Context) {
	f.logger.Infof("following playback every %s", f.interval)

	timer := time.NewTimer(f.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("stopped following playback")
			return
		case <-timer.C:
		}

		f.poll(ctx)
		timer.Reset(f.interval)
	}
}

// poll does one read of the current track and dispatches if it changed.
// It reports whether a change was seen.
func (f *Follower) poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	uri, ok, err := f.provider.CurrentlyPlaying(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// a flaky read is retried on the next tick
		f.logger.Warnf("failed to read currently playing track: %v", err)
		sentryhelper.CaptureException(ctx, err)
		return false
	}
	if !ok {
		f.logger.Trace("nothing playing")
		return false
	}

	if !f.observer.Observe(uri) {
		return false
	}

	f.logger.Debugf("track changed: %s", uri)
	f.dispatcher.Dispatch(ctx, uri)
	return true
}
