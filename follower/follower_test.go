package follower

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"linkedsongs/mapping"
	"linkedsongs/models"
)

type pollResult struct {
	uri string
	ok  bool
	err error
}

// fakeProvider replays a script of currently-playing reads and records
// every queue call together with the poll it happened after.
type fakeProvider struct {
	mutex     sync.Mutex
	script    []pollResult
	polls     int
	queued    []string
	queuedAt  map[int][]string
	failQueue map[string]error
}

func newFakeProvider(script ...pollResult) *fakeProvider {
	return &fakeProvider{
		script:    script,
		queuedAt:  make(map[int][]string),
		failQueue: make(map[string]error),
	}
}

func (p *fakeProvider) CurrentlyPlaying(ctx context.Context) (string, bool, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.polls++
	if p.polls > len(p.script) {
		return "", false, nil
	}
	r := p.script[p.polls-1]
	return r.uri, r.ok, r.err
}

func (p *fakeProvider) Queue(ctx context.Context, uri string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err, ok := p.failQueue[uri]; ok {
		return err
	}
	p.queued = append(p.queued, uri)
	p.queuedAt[p.polls] = append(p.queuedAt[p.polls], uri)
	return nil
}

func (p *fakeProvider) pollCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.polls
}

func (p *fakeProvider) queuedURIs() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string(nil), p.queued...)
}

func playing(uri string) pollResult { return pollResult{uri: uri, ok: true} }

func nothing() pollResult { return pollResult{} }

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

func snapshotAXY() *mapping.Snapshot {
	return mapping.Build(
		[]models.HeadSong{{HeadNumber: 1, URI: "A"}},
		[]models.LinkSong{{URI: "X", HeadNumber: 1}, {URI: "Y", HeadNumber: 1}},
	)
}

func TestObserverFirstReadIsChange(t *testing.T) {
	var o Observer
	if _, known := o.Last(); known {
		t.Fatal("fresh observer should not know a track")
	}
	if !o.Observe("A") {
		t.Error("first non-empty read must count as a change")
	}
	if o.Observe("A") {
		t.Error("same URI twice must not count as a change")
	}
	if o.Observe("") {
		t.Error("nothing playing must not count as a change")
	}
	if last, _ := o.Last(); last != "A" {
		t.Errorf("nothing playing must not reset state, last = %q", last)
	}
	if !o.Observe("B") || !o.Observe("A") {
		t.Error("A -> B -> A is two changes")
	}
}

func TestPollScenario(t *testing.T) {
	provider := newFakeProvider(playing("A"), playing("A"), playing("B"), playing("A"))
	f := New(provider, snapshotAXY(), time.Millisecond, testLogger())
	ctx := context.Background()

	wantChanged := []bool{true, false, true, true}
	for i, want := range wantChanged {
		if got := f.poll(ctx); got != want {
			t.Errorf("poll %d changed = %v, want %v", i+1, got, want)
		}
	}

	want := map[int][]string{
		1: {"X", "Y"},
		4: {"X", "Y"},
	}
	if !reflect.DeepEqual(provider.queuedAt, want) {
		t.Errorf("queued per poll = %v, want %v", provider.queuedAt, want)
	}
}

func TestPollNothingPlaying(t *testing.T) {
	provider := newFakeProvider(nothing(), nothing(), playing("A"), nothing(), playing("A"))
	f := New(provider, snapshotAXY(), time.Millisecond, testLogger())
	ctx := context.Background()

	changes := 0
	for i := 0; i < 5; i++ {
		if f.poll(ctx) {
			changes++
		}
	}
	if changes != 1 {
		t.Errorf("changes = %d, want 1", changes)
	}
	if got := provider.queuedURIs(); !reflect.DeepEqual(got, []string{"X", "Y"}) {
		t.Errorf("queued = %v, want [X Y]", got)
	}
}

func TestPollProviderErrorKeepsState(t *testing.T) {
	provider := newFakeProvider(
		playing("A"),
		pollResult{err: errors.New("502 bad gateway")},
		playing("A"),
	)
	f := New(provider, snapshotAXY(), time.Millisecond, testLogger())
	ctx := context.Background()

	f.poll(ctx)
	if f.poll(ctx) {
		t.Error("failed read must not count as a change")
	}
	if f.poll(ctx) {
		t.Error("A after a failed read is not a change")
	}
	if got := provider.queuedURIs(); len(got) != 2 {
		t.Errorf("queued = %v, want one dispatch", got)
	}
}

func TestDispatchContinuesAfterQueueFailure(t *testing.T) {
	snapshot := mapping.Build(
		[]models.HeadSong{{HeadNumber: 1, URI: "A"}},
		[]models.LinkSong{{URI: "X", HeadNumber: 1}, {URI: "Y", HeadNumber: 1}, {URI: "Z", HeadNumber: 1}},
	)
	provider := newFakeProvider()
	provider.failQueue["Y"] = errors.New("no active device")

	d := NewDispatcher(provider, snapshot, testLogger())
	if got := d.Dispatch(context.Background(), "A"); got != 2 {
		t.Errorf("Dispatch queued %d, want 2", got)
	}
	if got := provider.queuedURIs(); !reflect.DeepEqual(got, []string{"X", "Z"}) {
		t.Errorf("queued = %v, want [X Z]", got)
	}
}

func TestDispatchUnknownHead(t *testing.T) {
	provider := newFakeProvider()
	d := NewDispatcher(provider, snapshotAXY(), testLogger())
	if got := d.Dispatch(context.Background(), "B"); got != 0 {
		t.Errorf("Dispatch queued %d for an unknown head, want 0", got)
	}
	if len(provider.queuedURIs()) != 0 {
		t.Error("nothing should be queued")
	}
}

func TestDispatchCancelled(t *testing.T) {
	provider := newFakeProvider()
	d := NewDispatcher(provider, snapshotAXY(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := d.Dispatch(ctx, "A"); got != 0 {
		t.Errorf("Dispatch queued %d after cancel, want 0", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	provider := newFakeProvider(playing("A"), playing("A"), playing("B"), playing("A"))
	f := New(provider, snapshotAXY(), time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for provider.pollCount() < 6 {
		select {
		case <-deadline:
			t.Fatal("follower did not poll")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := provider.queuedURIs(); !reflect.DeepEqual(got, []string{"X", "Y", "X", "Y"}) {
		t.Errorf("queued = %v, want [X Y X Y]", got)
	}

	polls := provider.pollCount()
	time.Sleep(10 * time.Millisecond)
	if provider.pollCount() != polls {
		t.Error("follower kept polling after Run returned")
	}
}

func TestRunCancelledBeforeFirstPoll(t *testing.T) {
	provider := newFakeProvider(playing("A"))
	f := New(provider, snapshotAXY(), time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Run(ctx)

	if provider.pollCount() != 0 {
		t.Errorf("polls = %d, want 0", provider.pollCount())
	}
}
