package mqtt

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
)

// DefaultQueueSize is the number of messages AsyncPublisher holds before
// rejecting new ones.
const DefaultQueueSize = 64

// ErrQueueFull is returned when AsyncPublisher cannot take another message.
var ErrQueueFull = errors.New("publish queue full")

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// asyncJob is either a transition or a system event.
type asyncJob struct {
	transition *bms.Transition
	system     *SystemEvent
}

// AsyncPublisher hands messages to a background goroutine so that callers
// never wait on the broker. Publish and PublishSystem only enqueue; failures
// of the wrapped publisher are logged.
type AsyncPublisher struct {
	inner Publisher
	flush time.Duration

	mu     sync.Mutex
	queue  chan asyncJob
	closed bool
	done   chan struct{}
}

// NewAsyncPublisher starts the background goroutine. size <= 0 uses
// DefaultQueueSize.
func NewAsyncPublisher(inner Publisher, size int) *AsyncPublisher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	p := &AsyncPublisher{
		inner: inner,
		flush: 5 * time.Second,
		queue: make(chan asyncJob, size),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for job := range p.queue {
		if job.transition != nil {
			if err := p.inner.Publish(*job.transition); err != nil {
				log.Printf("mqtt: publish transition: %v", err)
			}
			continue
		}
		if err := p.inner.PublishSystem(*job.system); err != nil {
			log.Printf("mqtt: publish %s event: %v", job.system.Event, err)
		}
	}
}

func (p *AsyncPublisher) enqueue(job asyncJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish queues a state transition.
func (p *AsyncPublisher) Publish(tr bms.Transition) error {
	return p.enqueue(asyncJob{transition: &tr})
}

// PublishSystem queues a system event.
func (p *AsyncPublisher) PublishSystem(event SystemEvent) error {
	return p.enqueue(asyncJob{system: &event})
}

// Close sends what is still queued, waiting at most the flush timeout, then
// closes the wrapped publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(p.flush):
		log.Printf("mqtt: gave up flushing publish queue after %v", p.flush)
	}
	return p.inner.Close()
}
