package reminder_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/coursecraft/internal/course"
	"github.com/p-n-ai/coursecraft/internal/reminder"
)

type fakeSource struct {
	mu  sync.Mutex
	due map[string]bool
}

func newFakeSource(users ...string) *fakeSource {
	s := &fakeSource{due: make(map[string]bool)}
	for _, u := range users {
		s.due[u] = true
	}
	return s
}

func (f *fakeSource) set(user string, due bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.due[user] = due
}

func (f *fakeSource) ReminderTarget(userID string) (course.Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return course.Target{Channel: "telegram", ChatID: userID}, f.due[userID]
}

type call struct {
	ctx    context.Context
	userID string
}

type chanNotifier struct {
	calls chan call
}

func (n *chanNotifier) Remind(ctx context.Context, userID string, _ course.Target) error {
	select {
	case n.calls <- call{ctx: ctx, userID: userID}:
	case <-ctx.Done():
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_RemindsRepeatedly(t *testing.T) {
	n := &chanNotifier{calls: make(chan call, 10)}
	s := reminder.New(newFakeSource("u1"), n, 10*time.Millisecond)
	defer s.StopAll()

	s.Start("u1")
	for i := 0; i < 3; i++ {
		select {
		case c := <-n.calls:
			if c.userID != "u1" {
				t.Errorf("reminded %q, want u1", c.userID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("reminder %d not sent", i+1)
		}
	}
}

func TestScheduler_SelfTerminates(t *testing.T) {
	src := newFakeSource("u1")
	n := &chanNotifier{calls: make(chan call, 10)}
	s := reminder.New(src, n, 10*time.Millisecond)
	defer s.StopAll()

	s.Start("u1")
	<-n.calls
	src.set("u1", false)

	waitFor(t, func() bool { return !s.Active("u1") })
}

func TestScheduler_StartSupersedes(t *testing.T) {
	n := &chanNotifier{calls: make(chan call)}
	s := reminder.New(newFakeSource("u1"), n, 10*time.Millisecond)
	defer s.StopAll()

	s.Start("u1")
	first := <-n.calls

	s.Start("u1")
	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first reminder task was not cancelled")
	}

	var second call
	for {
		select {
		case second = <-n.calls:
		case <-time.After(2 * time.Second):
			t.Fatal("replacement task sent no reminder")
		}
		if second.ctx != first.ctx {
			break
		}
	}
	if second.ctx.Err() != nil {
		t.Error("replacement task should be running")
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}

func TestScheduler_Stop(t *testing.T) {
	n := &chanNotifier{calls: make(chan call, 1)}
	s := reminder.New(newFakeSource("u1", "u2"), n, time.Hour)
	defer s.StopAll()

	s.Start("u1")
	s.Start("u2")
	if !s.Active("u1") || s.Count() != 2 {
		t.Fatalf("Active(u1) = %v, Count() = %d", s.Active("u1"), s.Count())
	}

	s.Stop("u1")
	if s.Active("u1") {
		t.Error("u1 still active after Stop")
	}
	if !s.Active("u2") {
		t.Error("Stop(u1) affected u2")
	}
	s.Stop("nobody")
}

func TestScheduler_StopAll(t *testing.T) {
	n := &chanNotifier{calls: make(chan call)}
	s := reminder.New(newFakeSource("u1", "u2"), n, time.Millisecond)

	s.Start("u1")
	s.Start("u2")
	s.StopAll()

	if s.Count() != 0 {
		t.Errorf("Count() = %d after StopAll", s.Count())
	}
	s.Start("u3")
	if s.Active("u3") {
		t.Error("Start after StopAll should be ignored")
	}
}

func TestScheduler_Resume(t *testing.T) {
	src := newFakeSource("u1", "u3")
	s := reminder.New(src, &chanNotifier{calls: make(chan call, 1)}, time.Hour)
	defer s.StopAll()

	if got := s.Resume("u1", "u2", "u3"); got != 2 {
		t.Errorf("Resume() = %d, want 2", got)
	}
	if s.Active("u2") {
		t.Error("u2 is not due and should not be reminded")
	}
}
