// Package views records "content was viewed" events without issuing one write
// per page view.
//
// Track throttles repeated views of the same content by the same viewer and
// appends the rest to an in-memory queue. A background loop (Run) drains the
// queue on a fixed interval in bounded batches with a single bulk insert per
// batch. View counts are best-effort: a failed batch is logged and dropped.
package views

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// Defaults used when no option overrides them.
const (
	DefaultThrottle      = 60 * time.Minute
	DefaultFlushInterval = 2 * time.Minute
	DefaultBatchSize     = 50
	DefaultMaxQueue      = 10000
)

const anonymous = "anonymous"

var viewEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "content_view_events_total",
		Help: "View events by outcome (enqueued, throttled, flushed, dropped).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(viewEvents)
}

// Sink persists a batch of views.
type Sink interface {
	InsertViews(ctx context.Context, rows []domain.ContentView) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rows []domain.ContentView) error

// InsertViews implements Sink.
func (f SinkFunc) InsertViews(ctx context.Context, rows []domain.ContentView) error {
	return f(ctx, rows)
}

type event struct {
	key       string
	contentID string
	userID    string
	at        time.Time
}

// Tracker is the throttled write-behind queue of view events.
type Tracker struct {
	sink     Sink
	throttle time.Duration
	interval time.Duration
	batch    int
	maxQueue int
	now      func() time.Time
	logger   zerolog.Logger

	mu    sync.Mutex
	queue []event
	seen  map[string]time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithThrottle sets the window during which repeated views are ignored.
func WithThrottle(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.throttle = d
		}
	}
}

// WithFlushInterval sets how often Run drains the queue.
func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithBatchSize sets the maximum number of events written per flush.
func WithBatchSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.batch = n
		}
	}
}

// WithMaxQueue caps the number of pending events; views past the cap are dropped.
func WithMaxQueue(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxQueue = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger used for flush failures.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New returns a Tracker writing to sink.
func New(sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		sink:     sink,
		throttle: DefaultThrottle,
		interval: DefaultFlushInterval,
		batch:    DefaultBatchSize,
		maxQueue: DefaultMaxQueue,
		now:      time.Now,
		logger:   zerolog.Nop(),
		seen:     make(map[string]time.Time),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func viewKey(contentID, userID string) string {
	if userID == "" {
		userID = anonymous
	}
	return contentID + ":" + userID
}

// Track enqueues a view of contentID by userID ("" for anonymous) unless the
// same viewer was recorded for that content within the throttle window. It
// reports whether the event was enqueued.
func (t *Tracker) Track(contentID, userID string) bool {
	if contentID == "" {
		return false
	}
	key := viewKey(contentID, userID)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.seen[key]; ok && now.Sub(last) < t.throttle {
		viewEvents.WithLabelValues("throttled").Inc()
		return false
	}
	if len(t.queue) >= t.maxQueue {
		viewEvents.WithLabelValues("dropped").Inc()
		return false
	}
	t.seen[key] = now
	t.queue = append(t.queue, event{key: key, contentID: contentID, userID: userID, at: now})
	viewEvents.WithLabelValues("enqueued").Inc()
	return true
}

// Pending returns the number of queued events.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Flush drains up to one batch of events, de-duplicates them by key and
// writes them with a single insert. It returns the number of rows written.
// On a sink error the batch is dropped and the error returned.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	t.mu.Lock()
	n := min(len(t.queue), t.batch)
	batch := make([]event, n)
	copy(batch, t.queue[:n])
	t.queue = t.queue[n:]
	if len(t.queue) == 0 {
		t.queue = nil
	}
	t.pruneLocked(t.now())
	t.mu.Unlock()

	if n == 0 {
		return 0, nil
	}

	rows := make([]domain.ContentView, 0, n)
	inBatch := make(map[string]struct{}, n)
	for _, e := range batch {
		if _, dup := inBatch[e.key]; dup {
			continue
		}
		inBatch[e.key] = struct{}{}
		row := domain.ContentView{ID: uuid.NewString(), ContentID: e.contentID, ViewedAt: e.at.UTC()}
		if e.userID != "" {
			uid := e.userID
			row.UserID = &uid
		}
		rows = append(rows, row)
	}

	if err := t.sink.InsertViews(ctx, rows); err != nil {
		viewEvents.WithLabelValues("dropped").Add(float64(len(rows)))
		t.logger.Error().Err(err).Int("batch", len(rows)).Msg("view flush failed; batch dropped")
		return 0, err
	}
	viewEvents.WithLabelValues("flushed").Add(float64(len(rows)))
	return len(rows), nil
}

// pruneLocked forgets throttle entries older than the window. t.mu must be held.
func (t *Tracker) pruneLocked(now time.Time) {
	for k, last := range t.seen {
		if now.Sub(last) >= t.throttle {
			delete(t.seen, k)
		}
	}
}

// Run flushes on every tick until ctx is done, then drains what is left
// using a short detached context.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Flush(ctx)
		case <-ctx.Done():
			t.drain()
			return
		}
	}
}

func (t *Tracker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for t.Pending() > 0 {
		if _, err := t.Flush(ctx); err != nil || ctx.Err() != nil {
			return
		}
	}
}
