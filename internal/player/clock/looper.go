package clock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Message is a typed message consumed by a Looper's registered handler.
type Message struct {
	What int
	Arg1 int64
	Obj  any
}

type entry struct {
	seq   uint64
	dueAt time.Time
	run   func()
	msg   *Message
}

// Looper is a single-goroutine message loop: every posted runnable and
// typed message executes on the loop goroutine in deadline order, FIFO at
// equal deadlines. Posting after Quit drops the work silently.
type Looper struct {
	name   string
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	queue   []entry
	seq     uint64
	quitted bool
	handler func(Message)

	wakeCh chan struct{}
	quitCh chan struct{}
	doneCh chan struct{}
}

func newLooper(cw clockwork.Clock, name string, logger *slog.Logger) *Looper {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Looper{
		name:   name,
		clock:  cw,
		logger: logger,
		wakeCh: make(chan struct{}, 1),
		quitCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Looper) Name() string { return l.name }

// SetHandler registers the single consumer of typed messages. Must be set
// before the first Send.
func (l *Looper) SetHandler(h func(Message)) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// Post enqueues fn for execution as soon as possible.
func (l *Looper) Post(fn func()) {
	l.enqueue(entry{run: fn}, 0)
}

// PostDelayed enqueues fn relative to the loop clock's uptime.
func (l *Looper) PostDelayed(fn func(), delay time.Duration) {
	l.enqueue(entry{run: fn}, delay)
}

// Send enqueues an empty typed message.
func (l *Looper) Send(what int) {
	l.SendMessage(Message{What: what})
}

// SendMessage enqueues a typed message for immediate delivery.
func (l *Looper) SendMessage(msg Message) {
	l.enqueue(entry{msg: &msg}, 0)
}

// SendMessageDelayed enqueues a typed message after the given delay.
func (l *Looper) SendMessageDelayed(msg Message, delay time.Duration) {
	l.enqueue(entry{msg: &msg}, delay)
}

// SendMessageAt enqueues a typed message at an absolute clock time. Times
// already in the past deliver as soon as possible.
func (l *Looper) SendMessageAt(msg Message, at time.Time) {
	delay := at.Sub(l.clock.Now())
	if delay < 0 {
		delay = 0
	}
	l.enqueue(entry{msg: &msg}, delay)
}

// Remove cancels pending typed messages with the given what. Best-effort
// and idempotent; an in-flight message is not interrupted.
func (l *Looper) Remove(what int) {
	l.mu.Lock()
	kept := l.queue[:0]
	for _, e := range l.queue {
		if e.msg != nil && e.msg.What == what {
			continue
		}
		kept = append(kept, e)
	}
	l.queue = kept
	l.mu.Unlock()
}

// Quit stops the loop. Pending and future postings are dropped. Does not
// wait for the loop goroutine, so a handler may quit its own looper; use
// Join to wait. Safe to call more than once.
func (l *Looper) Quit() {
	l.mu.Lock()
	if l.quitted {
		l.mu.Unlock()
		return
	}
	l.quitted = true
	l.queue = nil
	close(l.quitCh)
	l.mu.Unlock()
}

// Join blocks until the loop goroutine has exited after Quit.
func (l *Looper) Join() { <-l.doneCh }

func (l *Looper) enqueue(e entry, delay time.Duration) {
	l.mu.Lock()
	if l.quitted {
		l.mu.Unlock()
		return
	}
	l.seq++
	e.seq = l.seq
	e.dueAt = l.clock.Now().Add(delay)
	l.queue = append(l.queue, e)
	l.mu.Unlock()
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// takeDue pops the due entry with the earliest (deadline, insertion) order,
// or returns the wait until the next deadline.
func (l *Looper) takeDue(now time.Time) (entry, bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	best := -1
	for i, e := range l.queue {
		if e.dueAt.After(now) {
			continue
		}
		if best == -1 || e.dueAt.Before(l.queue[best].dueAt) ||
			(e.dueAt.Equal(l.queue[best].dueAt) && e.seq < l.queue[best].seq) {
			best = i
		}
	}
	if best >= 0 {
		e := l.queue[best]
		l.queue = append(l.queue[:best], l.queue[best+1:]...)
		return e, true, 0
	}
	var wait time.Duration = -1
	for _, e := range l.queue {
		if d := e.dueAt.Sub(now); wait < 0 || d < wait {
			wait = d
		}
	}
	return entry{}, false, wait
}

func (l *Looper) run() {
	defer close(l.doneCh)
	for {
		select {
		case <-l.quitCh:
			return
		default:
		}

		e, ok, wait := l.takeDue(l.clock.Now())
		if ok {
			l.dispatch(e)
			continue
		}

		var timerC <-chan time.Time
		var timer clockwork.Timer
		if wait >= 0 {
			timer = l.clock.NewTimer(wait)
			timerC = timer.Chan()
		}
		select {
		case <-l.quitCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-l.wakeCh:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (l *Looper) dispatch(e entry) {
	if e.run != nil {
		e.run()
		return
	}
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h == nil {
		l.logger.Warn("looper message dropped, no handler",
			slog.String("looper", l.name), slog.Int("what", e.msg.What))
		return
	}
	h(*e.msg)
}
