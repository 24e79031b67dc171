package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Call(ctx, func() {}); err != nil {
		t.Fatalf("call: %v", err)
	}
	cancel()
	<-l.Done()

	for i, v := range got {
		if v != i {
			t.Fatalf("order: got %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d callbacks, want 5", len(got))
	}
}

func TestLoop_SelfPostDoesNotDeadlock(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); <-l.Done() }()
	go l.Run(ctx)

	var n atomic.Int32
	var post func()
	post = func() {
		if n.Add(1) < 100 {
			l.Post(post)
		}
	}
	l.Post(post)

	deadline := time.After(2 * time.Second)
	for n.Load() < 100 {
		select {
		case <-deadline:
			t.Fatalf("self posts stalled at %d", n.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestLoop_AfterStop(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); <-l.Done() }()
	go l.Run(ctx)

	var fired atomic.Bool
	tm := l.After(20*time.Millisecond, func() { fired.Store(true) })
	if !tm.Stop() {
		t.Fatal("Stop: got false on pending timer")
	}
	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Fatal("stopped timer fired")
	}
	if tm.Stop() {
		t.Fatal("second Stop: got true")
	}
}

func TestLoop_PanicKeepsRunning(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); <-l.Done() }()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Call(ctx, func() { ran = true }); err != nil {
		t.Fatalf("call after panic: %v", err)
	}
	if !ran {
		t.Fatal("loop stopped after panic")
	}
}

func TestLoop_CallAfterStop(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()
	<-l.Done()

	if err := l.Call(context.Background(), func() {}); err != ErrStopped {
		t.Fatalf("Call: got %v, want ErrStopped", err)
	}
}

func TestManual_PostsBeforeTimers(t *testing.T) {
	m := NewManual()
	var got []string
	m.After(0, func() { got = append(got, "timer") })
	m.Post(func() {
		got = append(got, "post")
		m.Post(func() { got = append(got, "nested") })
	})
	m.Advance(0)

	want := []string{"post", "nested", "timer"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestManual_AdvanceOrdersTimers(t *testing.T) {
	m := NewManual()
	var got []time.Duration
	m.After(30*time.Millisecond, func() { got = append(got, m.Now()) })
	m.After(10*time.Millisecond, func() { got = append(got, m.Now()) })
	stopped := m.After(20*time.Millisecond, func() { got = append(got, m.Now()) })
	stopped.Stop()

	m.Advance(25 * time.Millisecond)
	if len(got) != 1 || got[0] != 10*time.Millisecond {
		t.Fatalf("after 25ms: got %v", got)
	}
	m.Advance(10 * time.Millisecond)
	if len(got) != 2 || got[1] != 30*time.Millisecond {
		t.Fatalf("after 35ms: got %v", got)
	}
	if m.Now() != 35*time.Millisecond {
		t.Fatalf("Now: got %v, want 35ms", m.Now())
	}
}
