package dispatch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperate/hyperate-go/pkg/event"
)

// DefaultQueueSize is the default dispatch queue capacity.
const DefaultQueueSize = 256

// Handle identifies one handler registration.
type Handle string

// HandlerFunc processes one event. A non-nil error is reported through
// the dispatcher's error callback and does not affect other handlers.
type HandlerFunc func(evt event.Event) error

// registration is one handler entry. Order of the registration slice is
// dispatch order.
type registration struct {
	handle   Handle
	category event.Category
	filter   string // channel filter, "" matches every channel
	fn       HandlerFunc
}

// Dispatcher fans events out to registered handlers.
type Dispatcher struct {
	mu   sync.RWMutex
	regs []registration

	queue   chan event.Event
	onError func(event.Error)

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity
// (<= 0 means DefaultQueueSize). onError receives handler failures,
// panics and queue overflow reports; it may be nil.
func NewDispatcher(queueSize int, onError func(event.Error)) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		queue:   make(chan event.Event, queueSize),
		onError: onError,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register adds a handler for a category. filter restricts delivery to
// events of one channel; "" matches all. Handlers run in registration
// order.
func (d *Dispatcher) Register(category event.Category, filter string, fn HandlerFunc) Handle {
	handle := Handle(uuid.NewString())

	d.mu.Lock()
	d.regs = append(d.regs, registration{
		handle:   handle,
		category: category,
		filter:   filter,
		fn:       fn,
	})
	d.mu.Unlock()

	return handle
}

// Unregister removes a registration. Returns false if the handle is
// unknown (already removed).
func (d *Dispatcher) Unregister(handle Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, reg := range d.regs {
		if reg.handle == handle {
			d.regs = append(d.regs[:i], d.regs[i+1:]...)
			return true
		}
	}
	return false
}

// Start launches the delivery goroutine. Idempotent.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Stop halts delivery. Events already queued are delivered before Stop
// returns; events dispatched after Stop are dropped. Idempotent; blocks
// until the delivery goroutine exits.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.Start() // ensure run() exists so done closes
	<-d.done
}

// Dispatch enqueues an event for delivery. Never blocks: on overflow
// the oldest queued event is dropped to make room, and every dropped
// event, old or new, is reported.
func (d *Dispatcher) Dispatch(evt event.Event) {
	select {
	case <-d.stopCh:
		return
	default:
	}

	select {
	case d.queue <- evt:
		return
	default:
	}

	// Queue full: drop the oldest event and retry once.
	select {
	case old := <-d.queue:
		d.report(event.Error{
			Op: fmt.Sprintf("dispatch queue full, dropped %s event", old.Category()),
		}, false)
	default:
	}
	select {
	case d.queue <- evt:
	default:
		// A concurrent producer refilled the freed slot; the new
		// event is lost too and its loss must not pass silently.
		d.report(event.Error{
			Op: fmt.Sprintf("dispatch queue full, dropped %s event", evt.Category()),
		}, false)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stopCh:
			for {
				select {
				case evt := <-d.queue:
					d.deliver(evt)
				default:
					return
				}
			}
		case evt := <-d.queue:
			d.deliver(evt)
		}
	}
}

// deliver invokes every matching handler in registration order. A
// failing or panicking handler is reported and delivery continues.
func (d *Dispatcher) deliver(evt event.Event) {
	d.mu.RLock()
	regs := make([]registration, len(d.regs))
	copy(regs, d.regs)
	d.mu.RUnlock()

	for _, reg := range regs {
		if reg.category != evt.Category() {
			continue
		}
		if reg.filter != "" && reg.filter != evt.Channel() {
			continue
		}
		d.invoke(reg, evt)
	}
}

func (d *Dispatcher) invoke(reg registration, evt event.Event) {
	// Failures inside error-event handlers are reported but not turned
	// into further error events, so a persistently failing handler
	// cannot loop.
	redispatch := evt.Category() != event.CategoryError

	defer func() {
		if r := recover(); r != nil {
			d.report(event.Error{
				Op:  fmt.Sprintf("handler panic on %s event", evt.Category()),
				Err: fmt.Errorf("%v", r),
			}, redispatch)
		}
	}()

	if err := reg.fn(evt); err != nil {
		d.report(event.Error{
			Op:  fmt.Sprintf("handler error on %s event", evt.Category()),
			Err: err,
		}, redispatch)
	}
}

// report surfaces an internal error: always through the callback, and
// optionally as an error-category event so applications can observe
// handler failures with a normal registration.
func (d *Dispatcher) report(e event.Error, redispatch bool) {
	if d.onError != nil {
		d.onError(e)
	}
	if redispatch {
		d.Dispatch(e)
	}
}
