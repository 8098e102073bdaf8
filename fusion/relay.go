package fusion

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/metrics"
)

// feedBacklog is how many values a relay holds for slow feed subscribers.
const feedBacklog = 1024

// relay sends values to a feed from its own goroutine, so a subscriber that
// stops reading holds up the relay and not the executor.
// When the backlog is full the oldest value is dropped.
type relay[T any] struct {
	feed    *event.FeedOf[T]
	dropped metrics.Counter
	backlog chan T
	quit    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	cond    *sync.Cond
	pushed  int64
	handled int64
	exited  bool
}

func newRelay[T any](feed *event.FeedOf[T], dropped metrics.Counter) *relay[T] {
	r := &relay[T]{
		feed:    feed,
		dropped: dropped,
		backlog: make(chan T, feedBacklog),
		quit:    make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// push never blocks. Executor only.
func (r *relay[T]) push(v T) {
	r.mu.Lock()
	r.pushed++
	r.mu.Unlock()
	for {
		select {
		case r.backlog <- v:
			return
		default:
		}
		select {
		case <-r.backlog:
			r.dropped.Inc(1)
			r.markHandled()
		default:
		}
	}
}

func (r *relay[T]) markHandled() {
	r.mu.Lock()
	r.handled++
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *relay[T]) run() {
	defer func() {
		r.mu.Lock()
		r.exited = true
		r.cond.Broadcast()
		r.mu.Unlock()
	}()
	for {
		select {
		case v := <-r.backlog:
			r.feed.Send(v)
			r.markHandled()
		case <-r.quit:
			// Hand over what is already queued, then go.
			for {
				select {
				case v := <-r.backlog:
					r.feed.Send(v)
					r.markHandled()
				default:
					return
				}
			}
		}
	}
}

func (r *relay[T]) stop() {
	r.once.Do(func() {
		close(r.quit)
	})
}

// flush waits until everything pushed so far has been sent or dropped,
// or the relay has exited.
func (r *relay[T]) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.pushed
	for r.handled < target && !r.exited {
		r.cond.Wait()
	}
}
