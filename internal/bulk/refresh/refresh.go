// Package refresh implements the RefreshLoop (spec §4.8, C9): the
// IDLE/REFRESHING/SLEEPING state machine that drives one site's Crawler and
// ImageModel on an age-based schedule, behind a process-wide single-flight
// gate, grounded on the original's background_fetch loop
// (bulk/background_fetch.py).
package refresh

import (
	"context"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bulkfeed/internal/bulk/crawl"
	"github.com/ternarybob/bulkfeed/internal/bulk/fetch"
	"github.com/ternarybob/bulkfeed/internal/bulk/image"
	"github.com/ternarybob/bulkfeed/internal/bulk/site"
	"github.com/ternarybob/bulkfeed/internal/bulk/writer"
	"github.com/ternarybob/bulkfeed/internal/common"
)

// Gate is the process-wide single-flight primitive spec §4.8/§5 describes: a
// counting gate of capacity 1. Every configured site's Loop shares one Gate
// so that, as in the original, only one refresh runs across the whole
// process at a time — the documented retry-storm quirk (spec §9) is kept:
// sites that lose the race simply sleep retry_period and try again.
type Gate struct {
	ch chan struct{}
}

// NewGate returns an unheld Gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{}, 1)}
}

// TryAcquire attempts to take the gate without blocking.
func (g *Gate) TryAcquire() bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the gate. Release on an unheld gate is a no-op.
func (g *Gate) Release() {
	select {
	case <-g.ch:
	default:
	}
}

// Loop drives one site's refresh cycle forever, per spec §4.8.
type Loop struct {
	Site        site.Model
	FetchJSON   fetch.JSONFunc
	Image       *image.Model
	Preview     fetch.PreviewFunc
	Gate        *Gate
	DataFile    string
	ImagesFile  string
	CachePeriod time.Duration
	RetryPeriod time.Duration
	Logger      arbor.ILogger
}

// Run executes the IDLE/REFRESHING/SLEEPING state machine until ctx is
// cancelled. Per spec §4.8/§5, the RefreshLoop normally has no external
// cancellation path and terminates only when the host process exits; ctx is
// honored here only to make the sleep interruptible for orderly shutdown.
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		age := fileAge(l.DataFile)
		if age > l.CachePeriod {
			l.refresh(ctx, age)
			continue
		}
		if !sleep(ctx, l.CachePeriod-age) {
			return
		}
	}
}

// refresh implements state REFRESHING. On gate contention it behaves like a
// SLEEPING(retry_period) transition; otherwise it runs the crawl and image
// steps with independent failure isolation (spec §4.8's failure semantics)
// before releasing the gate and sleeping.
func (l *Loop) refresh(ctx context.Context, age time.Duration) {
	cycleID := common.NewCycleID()
	logger := l.Logger.WithCorrelationId(cycleID)

	if !l.Gate.TryAcquire() {
		logger.Debug().Msg("refresh gate already held, sleeping")
		sleep(ctx, l.RetryPeriod)
		return
	}
	defer l.Gate.Release()

	logger.Info().Dur("age", age).Msg("starting refresh cycle")

	bulk := crawl.Crawl(ctx, l.Site, l.FetchJSON, logger)
	if err := writer.WriteAtomic(l.DataFile, bulk); err != nil {
		logger.Error().Err(err).Msg("failed to write data artifact, keeping previous artifact")
	} else {
		logger.Info().Int("pages", len(bulk)).Msg("wrote data artifact")
	}

	// An image-preview failure must not invalidate the data artifact just
	// written, per spec §4.8's failure semantics.
	if l.Image != nil && l.Preview != nil {
		previews := l.Image.ImagePreviews(ctx, bulk, l.Preview)
		if err := writer.WriteAtomic(l.ImagesFile, previews); err != nil {
			logger.Error().Err(err).Msg("failed to write images artifact, keeping previous artifact")
		} else {
			logger.Info().Int("images", len(previews)).Msg("wrote images artifact")
		}
	}

	remaining := l.CachePeriod - fileAge(l.DataFile)
	delay := l.RetryPeriod
	if remaining > delay {
		delay = remaining
	}
	sleep(ctx, delay)
}

// fileAge returns time since path's mtime, or an effectively infinite
// duration if the file does not exist, per spec §4.8's "age := now − mtime;
// infinite if missing".
func fileAge(path string) time.Duration {
	info, err := os.Stat(path)
	if err != nil {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(info.ModTime())
}

// sleep waits for d or until ctx is cancelled, reporting whether it slept to
// completion.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
