// Package cache holds the clinic document-list cache and the invalidation
// signal emitted after every document mutation.
package cache

import (
	"context"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
)

// InvalidationChannel is the Redis pub/sub channel carrying Invalidation
// events as JSON.
const InvalidationChannel = "dentalhub:invalidations"

// ListCache caches the unfiltered document list of a clinic.
type ListCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, clinicID string) (docs []*document.Document, ok bool, err error)
	// Generation returns the clinic's invalidation counter. Read it before
	// fetching the list that is later passed to Set.
	Generation(ctx context.Context, clinicID string) (uint64, error)
	// Set stores docs only if the clinic's generation still equals gen, so a
	// list fetched before an invalidation is never cached after it.
	Set(ctx context.Context, clinicID string, gen uint64, docs []*document.Document) error
	// Invalidate bumps the clinic's generation, drops its cached list and
	// announces inv to subscribers.
	Invalidate(ctx context.Context, inv document.Invalidation) error
	// Subscribe delivers invalidations until ctx is cancelled.
	Subscribe(ctx context.Context, fn func(document.Invalidation)) error
}

func cloneAll(docs []*document.Document) []*document.Document {
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Clone())
	}
	return out
}

// Watch keeps a subscription to lc open until ctx is done. A failed or
// dropped subscription is retried after backoff, doubling up to maxBackoff;
// a subscription that stayed up longer than maxBackoff resets the delay.
func Watch(ctx context.Context, lc ListCache, fn func(document.Invalidation), backoff, maxBackoff time.Duration) {
	delay := backoff
	for {
		started := time.Now()
		err := lc.Subscribe(ctx, fn)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > maxBackoff {
			delay = backoff
		}
		if err != nil {
			logger.Warnf("invalidation subscription failed, retrying in %s: %v", delay, err)
		} else {
			logger.Warnf("invalidation subscription closed, retrying in %s", delay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxBackoff {
			delay = maxBackoff
		}
	}
}
