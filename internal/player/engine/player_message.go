package engine

import (
	"sync"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/player/clock"
)

// MessageTarget receives timed messages on its chosen looper.
type MessageTarget interface {
	HandleMessage(messageType int, payload any) error
}

// PlayerMessage is a user-supplied payload delivered at a specific
// (window, position) coordinate, or as soon as possible when no position is
// set.
type PlayerMessage struct {
	target      MessageTarget
	messageType int
	payload     any
	looper      *clock.Looper

	windowIndex int
	positionMs  int64

	deleteAfterDelivery bool

	mu          sync.Mutex
	cond        *sync.Cond
	sent        bool
	canceled    bool
	processed   bool
	delivered   bool
	sendFn      func(*PlayerMessage)
}

func newPlayerMessage(sendFn func(*PlayerMessage), target MessageTarget, defaultLooper *clock.Looper) *PlayerMessage {
	m := &PlayerMessage{
		target:              target,
		looper:              defaultLooper,
		windowIndex:         domain.IndexUnset,
		positionMs:          domain.TimeUnset,
		deleteAfterDelivery: true,
		sendFn:              sendFn,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SetType sets the target-defined message type. Only before Send.
func (m *PlayerMessage) SetType(messageType int) *PlayerMessage {
	m.messageType = messageType
	return m
}

// SetPayload attaches the payload delivered to the target.
func (m *PlayerMessage) SetPayload(payload any) *PlayerMessage {
	m.payload = payload
	return m
}

// SetLooper selects the looper the target is invoked on.
func (m *PlayerMessage) SetLooper(l *clock.Looper) *PlayerMessage {
	m.looper = l
	return m
}

// SetPosition schedules delivery at a stream position within a window.
func (m *PlayerMessage) SetPosition(windowIndex int, positionMs int64) *PlayerMessage {
	m.windowIndex = windowIndex
	m.positionMs = positionMs
	return m
}

// SetDeleteAfterDelivery controls whether the message is dropped after the
// first delivery. Keeping it redelivers on every pass over its position.
func (m *PlayerMessage) SetDeleteAfterDelivery(deleteAfterDelivery bool) *PlayerMessage {
	m.deleteAfterDelivery = deleteAfterDelivery
	return m
}

func (m *PlayerMessage) Type() int           { return m.messageType }
func (m *PlayerMessage) Payload() any        { return m.payload }
func (m *PlayerMessage) Target() MessageTarget { return m.target }
func (m *PlayerMessage) Looper() *clock.Looper { return m.looper }
func (m *PlayerMessage) WindowIndex() int    { return m.windowIndex }
func (m *PlayerMessage) PositionMs() int64   { return m.positionMs }
func (m *PlayerMessage) DeleteAfterDelivery() bool { return m.deleteAfterDelivery }

// Send submits the message to the engine. A message is sent at most once.
func (m *PlayerMessage) Send() *PlayerMessage {
	m.mu.Lock()
	if m.sent {
		m.mu.Unlock()
		return m
	}
	m.sent = true
	m.mu.Unlock()
	m.sendFn(m)
	return m
}

// Cancel marks the message canceled; the engine observes this on its next
// pass and never delivers a canceled message.
func (m *PlayerMessage) Cancel() {
	m.mu.Lock()
	m.canceled = true
	m.mu.Unlock()
}

// IsCanceled reports whether Cancel was called.
func (m *PlayerMessage) IsCanceled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canceled
}

// MarkAsProcessed records the delivery outcome and wakes waiters.
func (m *PlayerMessage) MarkAsProcessed(delivered bool) {
	m.mu.Lock()
	m.processed = true
	m.delivered = m.delivered || delivered
	m.cond.Broadcast()
	m.mu.Unlock()
}

// BlockUntilDelivered waits until the message was delivered or dropped and
// reports whether it was delivered.
func (m *PlayerMessage) BlockUntilDelivered() bool {
	m.mu.Lock()
	for !m.processed {
		m.cond.Wait()
	}
	delivered := m.delivered
	m.mu.Unlock()
	return delivered
}

// pendingMessage wraps a position-scheduled PlayerMessage with its
// tri-state resolution: unresolved, resolved against the current timeline,
// or discarded as unresolvable.
type pendingMessage struct {
	message *PlayerMessage
	seq     uint64

	resolved     bool
	periodIndex  int
	periodTimeUs int64
	periodUID    string
}

// compare orders pending messages: resolved before unresolved, resolved
// ones by (period index, period time), ties by submission order.
func (p *pendingMessage) compare(other *pendingMessage) int {
	if p.resolved != other.resolved {
		if p.resolved {
			return -1
		}
		return 1
	}
	if p.resolved {
		if p.periodIndex != other.periodIndex {
			if p.periodIndex < other.periodIndex {
				return -1
			}
			return 1
		}
		if p.periodTimeUs != other.periodTimeUs {
			if p.periodTimeUs < other.periodTimeUs {
				return -1
			}
			return 1
		}
	}
	if p.seq < other.seq {
		return -1
	}
	if p.seq > other.seq {
		return 1
	}
	return 0
}
