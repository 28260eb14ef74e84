package follower

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"linkedsongs/mapping"
	"linkedsongs/sentryhelper"
)

// Dispatcher queues the link songs of a head song, one provider call per
// link, in snapshot order.
type Dispatcher struct {
	provider Provider
	snapshot *mapping.Snapshot
	logger   *log.Entry
}

func NewDispatcher(provider Provider, snapshot *mapping.Snapshot, logger *log.Entry) *Dispatcher {
	return &Dispatcher{
		provider: provider,
		snapshot: snapshot,
		logger:   logger,
	}
}

// Dispatch queues the links of head and returns how many were accepted by
// the provider. A failed call is logged and reported, and the remaining
// links are still queued.
func (d *Dispatcher) Dispatch(ctx context.Context, head string) int {
	links, ok := d.snapshot.Links(head)
	if !ok {
		d.logger.Tracef("%s is not a head song, nothing to queue", head)
		return 0
	}

	queued := 0
	for _, uri := range links {
		if ctx.Err() != nil {
			d.logger.Debugf("stop requested, skipping remaining links of %s", head)
			break
		}
		if err := d.provider.Queue(ctx, uri); err != nil {
			if ctx.Err() != nil {
				break
			}
			d.logger.Warnf("failed to queue %s after %s: %v", uri, head, err)
			sentryhelper.CaptureException(ctx, fmt.Errorf("queue %s after head %s: %w", uri, head, err))
			continue
		}
		queued++
	}

	if queued > 0 {
		sentryhelper.AddBreadcrumb(ctx, "follower", fmt.Sprintf("queued %d link songs for %s", queued, head))
	}
	d.logger.Debugf("queued %d/%d link songs for %s", queued, len(links), head)
	return queued
}
