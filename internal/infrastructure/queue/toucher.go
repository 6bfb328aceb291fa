package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/api/metrics"
	"github.com/stallpos/auth-service/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	touchTimeout   = 2 * time.Second
)

var _ ports.ActivityRecorder = (*ActivityToucher)(nil)

type touch struct {
	fingerprint string
	at          time.Time
}

// ActivityToucher persists session last-activity updates off the request path.
// Touches are sharded by token fingerprint so updates for one session stay
// ordered. Record never blocks: a full worker queue drops the touch.
type ActivityToucher struct {
	workers  []chan touch
	sessions ports.SessionRepository
	log      zerolog.Logger
}

// NewActivityToucher creates an ActivityToucher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewActivityToucher(numWorkers int, sessions ports.SessionRepository, log zerolog.Logger) *ActivityToucher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	a := &ActivityToucher{
		workers:  make([]chan touch, numWorkers),
		sessions: sessions,
		log:      log,
	}
	for i := range a.workers {
		a.workers[i] = make(chan touch, channelBuffer)
	}
	return a
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (a *ActivityToucher) Start(ctx context.Context) {
	for i, ch := range a.workers {
		go a.runWorker(ctx, i, ch)
	}
}

// Record queues a touch for the worker responsible for fingerprint.
func (a *ActivityToucher) Record(fingerprint string, at time.Time) {
	idx := a.shardIndex(fingerprint)
	select {
	case a.workers[idx] <- touch{fingerprint: fingerprint, at: at}:
		metrics.SessionTouchQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(a.workers[idx])))
	default:
		metrics.SessionTouchesDroppedTotal.Inc()
		a.log.Debug().Int("worker_id", idx).Msg("session touch dropped: queue full")
	}
}

// shardIndex maps a fingerprint deterministically to a worker index.
func (a *ActivityToucher) shardIndex(fingerprint string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return int(h.Sum32() % uint32(len(a.workers)))
}

func (a *ActivityToucher) runWorker(ctx context.Context, id int, ch <-chan touch) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			metrics.SessionTouchQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			a.apply(ctx, id, t)
		}
	}
}

func (a *ActivityToucher) apply(ctx context.Context, id int, t touch) {
	start := time.Now()
	touchCtx, cancel := context.WithTimeout(ctx, touchTimeout)
	defer cancel()

	if err := a.sessions.Touch(touchCtx, t.fingerprint, t.at); err != nil {
		a.log.Warn().Err(err).Int("worker_id", id).Msg("session touch failed")
	}
	metrics.SessionTouchDuration.Observe(time.Since(start).Seconds())
}
