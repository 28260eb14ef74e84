package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"linkedsongs/follower"
	"linkedsongs/mapping"
	"linkedsongs/sentryhelper"
)

var (
	ErrPlaybackStart = errors.New("failed to start playback")
	ErrShutdown      = errors.New("controller is shut down")
)

// Provider is the streaming API surface a follower session needs: the
// follower loop itself plus the calls that get playback going.
type Provider interface {
	follower.Provider
	// PlaybackActive reports whether something is playing right now.
	PlaybackActive(ctx context.Context) (bool, error)
	// StartPlayback turns shuffle on and plays contextURI on deviceID.
	StartPlayback(ctx context.Context, deviceID string, contextURI string) error
}

// PlaybackTarget is where playback is started when nothing is playing yet.
type PlaybackTarget struct {
	DeviceID   string
	ContextURI string
}

// Handle is one running follower. SessionID is the web session that
// started it.
type Handle struct {
	ID        uuid.UUID
	UserID    string
	SessionID string
	StartedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Done is closed once the follower goroutine has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

type followerSession struct {
	mutex  sync.Mutex
	handle *Handle
}

type Controller struct {
	// This is a map of Spotify user ID to the follower slot for that user.
	// A user signed in from several browsers still gets one follower.
	sessions map[string]*followerSession
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	mutex    sync.Mutex
	logger   *log.Entry
}

func NewController(interval time.Duration) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sessions: make(map[string]*followerSession),
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		logger: log.WithFields(log.Fields{
			"module": "controller",
		}),
	}
}

func (c *Controller) getSession(userID string) *followerSession {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if s, ok := c.sessions[userID]; ok {
		return s
	}
	s := &followerSession{}
	c.sessions[userID] = s
	return s
}

func (c *Controller) lookupSession(userID string) *followerSession {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.sessions[userID]
}

// lockSession returns the user's slot locked. A slot released by a
// concurrent Stop is no longer in the map, so the lookup is retried.
func (c *Controller) lockSession(userID string) *followerSession {
	for {
		s := c.getSession(userID)
		s.mutex.Lock()
		if c.lookupSession(userID) == s {
			return s
		}
		s.mutex.Unlock()
	}
}

// release drops an idle slot from the map. s.mutex must be held.
func (c *Controller) release(userID string, s *followerSession) {
	if s.handle != nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.sessions[userID] == s {
		delete(c.sessions, userID)
	}
}

// Start makes sure the provider is playing and spawns a follower for the
// user running against snapshot. If the user already has a live follower,
// started from this or any other web session, nothing happens and that
// follower's handle is returned. A failure to start playback is returned
// wrapped in ErrPlaybackStart and no follower is spawned.
func (c *Controller) Start(ctx context.Context, userID string, sessionID string, provider Provider, snapshot *mapping.Snapshot, target PlaybackTarget) (*Handle, error) {
	logger := c.logger.WithFields(log.Fields{
		"method":    "Start",
		"userID":    userID,
		"sessionID": sessionID,
	})

	if c.ctx.Err() != nil {
		return nil, ErrShutdown
	}

	s := c.lockSession(userID)
	defer s.mutex.Unlock()

	if s.handle != nil && s.handle.Alive() {
		logger.Debugf("follower %s already running", s.handle.ID)
		return s.handle, nil
	}
	s.handle = nil

	if err := c.ensurePlayback(ctx, provider, target); err != nil {
		logger.Warnf("not starting follower: %v", err)
		c.release(userID, s)
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(sentryhelper.WithSessionHub(c.ctx, sessionID, userID))
	handle := &Handle{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	f := follower.New(provider, snapshot, c.interval, log.WithFields(log.Fields{
		"module":    "follower",
		"userID":    userID,
		"sessionID": sessionID,
		"follower":  handle.ID.String(),
	}))

	go func() {
		defer close(handle.done)
		defer cancel()
		f.Run(workerCtx)
	}()

	s.handle = handle
	logger.Infof("started follower %s with %d head songs", handle.ID, snapshot.Len())
	return handle, nil
}

func (c *Controller) ensurePlayback(ctx context.Context, provider Provider, target PlaybackTarget) error {
	active, err := provider.PlaybackActive(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackStart, err)
	}
	if active {
		return nil
	}
	if err := provider.StartPlayback(ctx, target.DeviceID, target.ContextURI); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackStart, err)
	}
	return nil
}

// Stop cancels the user's follower and waits for it to return. It reports
// whether a follower was running.
func (c *Controller) Stop(userID string) bool {
	s := c.lookupSession(userID)
	if s == nil {
		return false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	handle := s.handle
	s.handle = nil
	c.release(userID, s)
	if handle == nil {
		return false
	}

	wasAlive := handle.Alive()
	handle.cancel()
	<-handle.done

	c.logger.WithFields(log.Fields{
		"method": "Stop",
		"userID": userID,
	}).Infof("stopped follower %s after %s", handle.ID, time.Since(handle.StartedAt).Round(time.Second))
	return wasAlive
}

func (c *Controller) IsRunning(userID string) bool {
	return c.Handle(userID) != nil
}

// Handle returns the user's live follower, or nil.
func (c *Controller) Handle(userID string) *Handle {
	s := c.lookupSession(userID)
	if s == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.handle == nil || !s.handle.Alive() {
		return nil
	}
	return s.handle
}

// Running returns the number of live followers across all sessions.
func (c *Controller) Running() int {
	c.mutex.Lock()
	sessions := make([]*followerSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mutex.Unlock()

	n := 0
	for _, s := range sessions {
		s.mutex.Lock()
		if s.handle != nil && s.handle.Alive() {
			n++
		}
		s.mutex.Unlock()
	}
	return n
}

// Shutdown stops every follower and refuses further starts. It returns once
// all followers have exited or ctx is done.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.cancel()

	c.mutex.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range ids {
			c.Stop(id)
		}
	}()

	select {
	case <-done:
		c.logger.Infof("stopped followers of %d users", len(ids))
		return nil
	case <-ctx.Done():
		c.logger.Warn("Timeout waiting for followers to stop")
		return ctx.Err()
	}
}
