// Package notify implements the notification center: an ordered queue of
// ephemeral status messages narrating registry operations.
package notify

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/pubsub"
)

// ExpiryDelay is how long success and error notifications stay queued.
const ExpiryDelay = 5000 * time.Millisecond

// Center holds the notification queue. Insertion order is display order.
// Pending notifications never expire on their own; the caller dismisses them.
type Center struct {
	clock clock.Clock
	log   *slog.Logger

	mu     sync.Mutex
	seq    uint64
	items  []interfaces.Notification
	timers map[string]*clock.Timer

	pub pubsub.Publisher[[]interfaces.Notification]
}

// Option configures a Center.
type Option func(*Center)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(n *Center) { n.clock = c }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(n *Center) { n.log = log }
}

// NewCenter creates an empty notification center.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		clock:  clock.New(),
		log:    slog.Default(),
		timers: make(map[string]*clock.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShowPending appends a pending notification and returns its id.
func (c *Center) ShowPending(message string) string {
	return c.add(message, interfaces.NotificationPending)
}

// ShowSuccess appends a success notification that expires after ExpiryDelay.
func (c *Center) ShowSuccess(message string) string {
	return c.add(message, interfaces.NotificationSuccess)
}

// ShowError appends an error notification that expires after ExpiryDelay.
func (c *Center) ShowError(message string) string {
	return c.add(message, interfaces.NotificationError)
}

func (c *Center) add(message string, kind interfaces.NotificationKind) string {
	c.mu.Lock()
	c.seq++
	now := c.clock.Now()
	id := strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(c.seq, 10)
	c.items = append(c.items, interfaces.Notification{
		ID:        id,
		Message:   message,
		Kind:      kind,
		CreatedAt: now,
	})
	if kind != interfaces.NotificationPending {
		c.timers[id] = c.clock.AfterFunc(ExpiryDelay, func() {
			c.expire(id)
		})
	}
	c.pub.Enqueue(c.snapshotLocked())
	c.mu.Unlock()

	c.log.Debug("notification added",
		slog.String("id", id),
		slog.String("kind", string(kind)),
		slog.String("message", message))

	c.pub.Flush()
	return id
}

// Dismiss removes the notification with the given id. Unknown ids are ignored.
func (c *Center) Dismiss(id string) {
	c.remove(id, true)
}

func (c *Center) expire(id string) {
	c.remove(id, false)
}

func (c *Center) remove(id string, stopTimer bool) {
	c.mu.Lock()
	idx := -1
	for i, n := range c.items {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}

	items := make([]interfaces.Notification, 0, len(c.items)-1)
	items = append(items, c.items[:idx]...)
	c.items = append(items, c.items[idx+1:]...)

	if t, ok := c.timers[id]; ok {
		if stopTimer {
			t.Stop()
		}
		delete(c.timers, id)
	}
	c.pub.Enqueue(c.snapshotLocked())
	c.mu.Unlock()

	c.pub.Flush()
}

// Notifications returns the current queue in display order.
func (c *Center) Notifications() []interfaces.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive the full queue after every mutation.
func (c *Center) Subscribe(fn func([]interfaces.Notification)) (unsubscribe func()) {
	return c.pub.Subscribe(fn)
}

func (c *Center) snapshotLocked() []interfaces.Notification {
	out := make([]interfaces.Notification, len(c.items))
	copy(out, c.items)
	return out
}
