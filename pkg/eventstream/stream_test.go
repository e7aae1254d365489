package eventstream

import (
	"errors"
	"testing"
	"time"
)

func TestStream_OrderAndTerminal(t *testing.T) {
	s := New[string, int]()

	ch, cancel := s.Subscribe()
	defer cancel()

	go func() {
		s.Push("a")
		s.Push("b")
		s.PushTerminal("done", 42, nil)
	}()

	var got []string
	for e := range ch {
		got = append(got, e)
	}

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "done" {
		t.Fatalf("unexpected event order: %v", got)
	}

	result, err := s.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if result != 42 {
		t.Errorf("Result() = %d, want 42", result)
	}
}

func TestStream_PushAfterTerminalFails(t *testing.T) {
	s := New[string, int]()
	if err := s.PushTerminal("done", 1, nil); err != nil {
		t.Fatalf("PushTerminal failed: %v", err)
	}
	if err := s.Push("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Push after terminal = %v, want ErrClosed", err)
	}
	if err := s.PushTerminal("late", 2, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("PushTerminal after terminal = %v, want ErrClosed", err)
	}
}

func TestStream_LateSubscriberReplaysBacklog(t *testing.T) {
	s := New[int, struct{}]()
	s.Push(1)
	s.Push(2)
	s.PushTerminal(3, struct{}{}, nil)

	ch, cancel := s.Subscribe()
	defer cancel()

	var got []int
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("late subscriber got %v, want [1 2 3]", got)
	}
}

func TestStream_MultipleConsumersSeeSameOrder(t *testing.T) {
	s := New[int, struct{}]()
	ch1, cancel1 := s.Subscribe()
	ch2, cancel2 := s.Subscribe()
	defer cancel1()
	defer cancel2()

	go func() {
		for i := 0; i < 5; i++ {
			s.Push(i)
		}
		s.PushTerminal(5, struct{}{}, nil)
	}()

	var got1, got2 []int
	done1, done2 := false, false
	for !done1 || !done2 {
		select {
		case e, ok := <-ch1:
			if !ok {
				done1 = true
				continue
			}
			got1 = append(got1, e)
		case e, ok := <-ch2:
			if !ok {
				done2 = true
				continue
			}
			got2 = append(got2, e)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	want := []int{0, 1, 2, 3, 4, 5}
	if len(got1) != len(want) || len(got2) != len(want) {
		t.Fatalf("got1=%v got2=%v, want both %v", got1, got2, want)
	}
	for i := range want {
		if got1[i] != want[i] || got2[i] != want[i] {
			t.Fatalf("ordering mismatch: got1=%v got2=%v", got1, got2)
		}
	}
}

func TestStream_CancelStopsPump(t *testing.T) {
	s := New[int, struct{}]()
	ch, cancel := s.Subscribe()

	s.Push(1)
	if e := <-ch; e != 1 {
		t.Fatalf("got %d, want 1", e)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancelled pump to exit")
	}
}

func TestStream_Done(t *testing.T) {
	s := New[int, struct{}]()
	if s.Done() {
		t.Fatal("Done() true before terminal push")
	}
	s.PushTerminal(1, struct{}{}, nil)
	if !s.Done() {
		t.Fatal("Done() false after terminal push")
	}
}
