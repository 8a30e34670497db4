package clock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func collectInts(mu *sync.Mutex, out *[]int, v int) {
	mu.Lock()
	*out = append(*out, v)
	mu.Unlock()
}

func waitForLen(t *testing.T, mu *sync.Mutex, out *[]int, want int) []int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		if len(*out) >= want {
			got := append([]int(nil), (*out)...)
			mu.Unlock()
			return got
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	t.Fatalf("timed out waiting for %d items, have %v", want, *out)
	return nil
}

func TestLooperPostFIFO(t *testing.T) {
	clk := NewFakeClock()
	l := clk.NewLooper("test", nil)
	defer l.Quit()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { collectInts(&mu, &got, i) })
	}
	result := waitForLen(t, &mu, &got, 5)
	for i, v := range result {
		if v != i {
			t.Fatalf("out of order: %v", result)
		}
	}
}

func TestLooperDelayedFiresOnAdvance(t *testing.T) {
	clk := NewFakeClock()
	l := clk.NewLooper("test", nil)
	defer l.Quit()

	var mu sync.Mutex
	var got []int
	l.PostDelayed(func() { collectInts(&mu, &got, 1) }, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clk.BlockUntilTimers(ctx, 1); err != nil {
		t.Fatal(err)
	}

	clk.Advance(10 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	if len(got) != 0 {
		t.Fatalf("fired before deadline: %v", got)
	}
	mu.Unlock()

	clk.Advance(10 * time.Millisecond)
	waitForLen(t, &mu, &got, 1)
}

func TestLooperEqualDeadlineInsertionOrder(t *testing.T) {
	clk := NewFakeClock()
	l := clk.NewLooper("test", nil)
	defer l.Quit()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		l.PostDelayed(func() { collectInts(&mu, &got, i) }, 15*time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clk.BlockUntilTimers(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clk.Advance(15 * time.Millisecond)
	result := waitForLen(t, &mu, &got, 3)
	for i, v := range result {
		if v != i {
			t.Fatalf("equal-deadline ties not in insertion order: %v", result)
		}
	}
}

func TestLooperRemoveTypedMessages(t *testing.T) {
	clk := NewFakeClock()
	l := clk.NewLooper("test", nil)
	defer l.Quit()

	var mu sync.Mutex
	var got []int
	l.SetHandler(func(msg Message) { collectInts(&mu, &got, msg.What) })

	l.SendMessageDelayed(Message{What: 1}, 10*time.Millisecond)
	l.SendMessageDelayed(Message{What: 2}, 10*time.Millisecond)
	l.Remove(1)
	// Removing an absent what is a no-op.
	l.Remove(99)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clk.BlockUntilTimers(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Millisecond)
	result := waitForLen(t, &mu, &got, 1)
	if result[0] != 2 {
		t.Fatalf("got %v, want [2]", result)
	}
}

func TestLooperQuitDropsPendingAndFuturePosts(t *testing.T) {
	clk := NewFakeClock()
	l := clk.NewLooper("test", nil)

	var mu sync.Mutex
	var got []int
	l.PostDelayed(func() { collectInts(&mu, &got, 1) }, time.Hour)
	l.Quit()
	l.Join()
	l.Post(func() { collectInts(&mu, &got, 2) })
	l.Quit() // idempotent

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 0 {
		t.Fatalf("work ran after quit: %v", got)
	}
}
