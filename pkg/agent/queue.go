package agent

import (
	"sync"

	"github.com/mariozechner/agentcore/pkg/message"
)

// QueueMode controls how many queued messages GetQueuedMessages drains at
// once: "all" takes the whole backlog, "one-at-a-time" takes only the
// oldest entry, leaving the rest queued for the next call.
type QueueMode string

const (
	QueueModeAll QueueMode = "all"
	QueueModeOne QueueMode = "one-at-a-time"
)

// GetQueuedMessages returns freshly queued messages and clears (or
// partially drains, per mode) the caller's internal queue. The loop calls
// it at every TurnStart and between tool-call dispatches.
type GetQueuedMessages func(mode QueueMode) []message.Message

// Behavior tags a queued message with the timing its sender expects:
// Steer wants to cut short an in-flight turn's remaining tool calls,
// FollowUp wants to force one more turn once the current one ends.
type Behavior string

const (
	BehaviorSteer    Behavior = "steer"
	BehaviorFollowUp Behavior = "followup"
)

type queuedItem struct {
	message  message.Message
	behavior Behavior
}

// MessageQueue is a simple FIFO of user-authored text, shared between a
// session facade (which enqueues steer/follow-up text) and a Loop (which
// drains it at TurnStart and between tool dispatches). Safe for
// concurrent use.
type MessageQueue struct {
	mu    sync.Mutex
	items []queuedItem
}

// NewMessageQueue returns an empty queue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{}
}

// Push enqueues one message tagged with the behavior its sender expects.
func (q *MessageQueue) Push(m message.Message, behavior Behavior) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, queuedItem{message: m, behavior: behavior})
}

// Drain implements GetQueuedMessages: under QueueModeAll it returns and
// clears the whole backlog, steer and follow-up alike. Under
// QueueModeOne it returns and removes the oldest item only if that item
// is a steer; a follow-up at the head is left queued, since a follow-up
// never truncates an in-flight turn's remaining tool calls.
func (q *MessageQueue) Drain(mode QueueMode) []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	if mode == QueueModeOne {
		if q.items[0].behavior != BehaviorSteer {
			return nil
		}
		head := q.items[0]
		q.items = q.items[1:]
		return []message.Message{head.message}
	}
	drained := make([]message.Message, len(q.items))
	for i, it := range q.items {
		drained[i] = it.message
	}
	q.items = nil
	return drained
}

// HasPendingFollowUp reports whether a follow-up message is currently
// queued, without draining anything. The loop consults this before
// ending a turn that produced no tool calls, to decide whether a
// follow-up should force one more turn.
func (q *MessageQueue) HasPendingFollowUp() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.behavior == BehaviorFollowUp {
			return true
		}
	}
	return false
}

// Len reports the number of messages currently queued.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
