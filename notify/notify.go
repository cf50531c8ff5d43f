// Package notify is the process-wide signal the presentational layer
// listens to: a loading indicator and a queue of self-expiring toasts.
package notify

import (
	"sync"
	"time"

	"github.com/occasio/occasio/internal/uuid"
)

// Severity classifies a toast for rendering.
type Severity string

const (
	Success Severity = "success"
	Info    Severity = "info"
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

// DefaultToastTTL is how long a toast stays queued before it removes itself.
const DefaultToastTTL = 4 * time.Second

// Toast is one queued notification.
type Toast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// EventKind identifies what changed in the Broadcaster.
type EventKind int

const (
	LoadingChanged EventKind = iota
	ToastAdded
	ToastExpired
)

func (k EventKind) String() string {
	switch k {
	case LoadingChanged:
		return "loading_changed"
	case ToastAdded:
		return "toast_added"
	case ToastExpired:
		return "toast_expired"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on every state change.
type Event struct {
	Kind    EventKind
	Loading bool
	Toast   Toast
}

// Broadcaster holds the loading state and toast queue.
//
// Loading is reference counted: every ShowLoading must be paired with a
// HideLoading, and the indicator stays on until the last one. Unbalanced
// HideLoading calls are ignored rather than driving the count negative.
type Broadcaster struct {
	mu      sync.Mutex
	loading int
	toasts  []Toast
	timers  map[string]*time.Timer
	subs    map[int]func(Event)
	nextSub int
	ttl     time.Duration
	closed  bool
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithToastTTL overrides how long toasts stay queued.
func WithToastTTL(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.ttl = d
		}
	}
}

// New creates an idle Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		timers: make(map[string]*time.Timer),
		subs:   make(map[int]func(Event)),
		ttl:    DefaultToastTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ShowLoading raises the loading indicator.
func (b *Broadcaster) ShowLoading() {
	b.mu.Lock()
	b.loading++
	changed := b.loading == 1
	b.mu.Unlock()
	if changed {
		b.publish(Event{Kind: LoadingChanged, Loading: true})
	}
}

// HideLoading releases one ShowLoading.
func (b *Broadcaster) HideLoading() {
	b.mu.Lock()
	if b.loading == 0 {
		b.mu.Unlock()
		return
	}
	b.loading--
	changed := b.loading == 0
	b.mu.Unlock()
	if changed {
		b.publish(Event{Kind: LoadingChanged, Loading: false})
	}
}

// Loading reports whether any operation currently holds the indicator.
func (b *Broadcaster) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading > 0
}

// AddToast queues message and returns the toast ID. Identical messages are
// queued separately.
func (b *Broadcaster) AddToast(message string, severity Severity) string {
	if severity == "" {
		severity = Info
	}
	t := Toast{
		ID:        uuid.New(),
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return t.ID
	}
	b.toasts = append(b.toasts, t)
	b.timers[t.ID] = time.AfterFunc(b.ttl, func() { b.expire(t.ID) })
	b.mu.Unlock()

	b.publish(Event{Kind: ToastAdded, Toast: t})
	return t.ID
}

func (b *Broadcaster) expire(id string) {
	b.mu.Lock()
	delete(b.timers, id)
	var removed Toast
	found := false
	for i, t := range b.toasts {
		if t.ID == id {
			removed = t
			found = true
			b.toasts = append(b.toasts[:i], b.toasts[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	if found {
		b.publish(Event{Kind: ToastExpired, Toast: removed})
	}
}

// Toasts returns the queued toasts, oldest first.
func (b *Broadcaster) Toasts() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Toast, len(b.toasts))
	copy(out, b.toasts)
	return out
}

// Subscribe registers fn for every subsequent Event. fn runs on the
// goroutine that caused the change and must not block. The returned func
// removes the subscription.
func (b *Broadcaster) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close stops pending expiry timers. Toasts added after Close are not queued.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
}

func (b *Broadcaster) publish(e Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
