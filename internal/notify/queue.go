package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const sendTimeout = 30 * time.Second

// Queue sends guardian emails on background workers. Each message gets one attempt.
type Queue struct {
	sender  Sender
	enabled bool
	from    string
	prefix  string
	loc     *time.Location
	workers int

	ch     chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue from the email settings. sender may be nil when
// notifications are disabled.
func NewQueue(cfg config.EmailConfig, sender Sender, loc *time.Location) *Queue {
	if loc == nil {
		loc = time.Local
	}
	size := max(cfg.QueueSize, 1)
	return &Queue{
		sender:  sender,
		enabled: cfg.Enabled && sender != nil,
		from:    cfg.Sender,
		prefix:  cfg.SubjectPrefix,
		loc:     loc,
		workers: max(cfg.Workers, 1),
		ch:      make(chan Message, size),
	}
}

// Start launches the workers.
func (q *Queue) Start() {
	for range q.workers {
		q.wg.Add(1)
		go q.work()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for msg := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := q.sender.Send(ctx, q.from, msg); err != nil {
			log.Printf("notify: failed to send %q to %s: %v", msg.Subject, msg.To, err)
		} else {
			log.Printf("notify: sent %q to %s", msg.Subject, msg.To)
		}
		cancel()
	}
}

// Stop stops accepting messages and waits for queued ones to be sent.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}

// Notify queues the guardian email for a recorded arrival or departure.
// It returns false when the email was skipped or the queue is full.
func (q *Queue) Notify(s database.Student, mode database.Mode, at time.Time) bool {
	if !q.enabled {
		return false
	}
	msg, ok := Compose(q.prefix, s, mode, at.In(q.loc))
	if !ok {
		log.Printf("notify: no guardian email for student %s, notification skipped", s.ID)
		return false
	}
	return q.Enqueue(msg)
}

// Enqueue adds msg to the queue without blocking.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed || !q.enabled {
		return false
	}
	select {
	case q.ch <- msg:
		return true
	default:
		log.Printf("notify: queue full, dropped %q to %s", msg.Subject, msg.To)
		return false
	}
}
