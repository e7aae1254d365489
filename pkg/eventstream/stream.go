// Package eventstream implements the one-producer, many-consumer async
// queue the agent loop uses to publish turn events: a lazy sequence that
// ends exactly when a distinguished terminal event has been pushed and
// consumed, carrying a typed Result.
package eventstream

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Push/PushTerminal once the stream has already
// received a terminal event — pushing after terminal is a contract
// violation.
var ErrClosed = errors.New("eventstream: push after terminal event")

// Stream is a single-producer, multi-consumer sequence of events of type E,
// whose final event carries a value of type R. Push never blocks on slow
// consumers: each subscriber is drained by its own goroutine reading off a
// shared, append-only backlog, so the producer only ever touches a mutex
// and a condition variable broadcast.
type Stream[E any, R any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []E
	done   bool
	result R
	resErr error
	waitCh chan struct{}
}

// New creates an empty, open stream.
func New[E any, R any]() *Stream[E, R] {
	s := &Stream[E, R]{waitCh: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push appends a non-terminal event, in push order, waking every blocked
// subscriber pump. It never blocks on consumers.
func (s *Stream[E, R]) Push(e E) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrClosed
	}
	s.buf = append(s.buf, e)
	s.cond.Broadcast()
	return nil
}

// PushTerminal appends the final event of the stream and records the
// terminal Result. Iteration ends, for every consumer, once this event has
// been delivered. Calling PushTerminal (or Push) again returns ErrClosed.
func (s *Stream[E, R]) PushTerminal(e E, result R, resultErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrClosed
	}
	s.buf = append(s.buf, e)
	s.result = result
	s.resErr = resultErr
	s.done = true
	s.cond.Broadcast()
	close(s.waitCh)
	return nil
}

// Subscribe returns a channel replaying every event pushed so far, in
// order, followed by every future event, closing once the terminal event
// has been delivered and drained. The returned cancel function stops the
// pump goroutine early without affecting the producer or other
// subscribers.
func (s *Stream[E, R]) Subscribe() (<-chan E, func()) {
	ch := make(chan E, 16)
	stop := make(chan struct{})
	var stopOnce sync.Once
	cancel := func() {
		stopOnce.Do(func() {
			close(stop)
			// Wake a pump possibly parked in cond.Wait() with nothing new to read.
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
	}

	go func() {
		defer close(ch)
		idx := 0
		for {
			s.mu.Lock()
			for idx >= len(s.buf) && !s.done {
				// Wake periodically to notice cancellation; Cond has no
				// native select, so we re-check stop after each broadcast.
				s.cond.Wait()
				select {
				case <-stop:
					s.mu.Unlock()
					return
				default:
				}
			}
			var pending []E
			if idx < len(s.buf) {
				pending = append(pending, s.buf[idx:]...)
				idx = len(s.buf)
			}
			doneNow := s.done && idx >= len(s.buf)
			s.mu.Unlock()

			for _, e := range pending {
				select {
				case ch <- e:
				case <-stop:
					return
				}
			}
			if doneNow {
				return
			}
		}
	}()

	return ch, cancel
}

// Result blocks until the terminal event has been pushed, then returns the
// value (and error, if any) it carried. It may be called before, during, or
// after iteration — it does not consume stream events.
func (s *Stream[E, R]) Result() (R, error) {
	<-s.waitCh
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.resErr
}

// Done reports whether the terminal event has already been pushed.
func (s *Stream[E, R]) Done() bool {
	select {
	case <-s.waitCh:
		return true
	default:
		return false
	}
}
