package reply

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_ConsumeOnce(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Register("msg-1", &Continuation{Command: "yt", Owner: "alice"})

	c, ok := r.Consume("msg-1")
	if !ok {
		t.Fatal("first Consume() should find the continuation")
	}
	if c.Command != "yt" || c.Owner != "alice" {
		t.Errorf("Consume() returned wrong continuation: %+v", c)
	}

	if _, ok := r.Consume("msg-1"); ok {
		t.Error("second Consume() on the same key should find nothing")
	}
}

func TestRegistry_PeekDoesNotRemove(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Register("msg-1", &Continuation{Command: "yt", Owner: "alice"})

	if _, ok := r.Peek("msg-1"); !ok {
		t.Fatal("Peek() should find the continuation")
	}
	if _, ok := r.Peek("msg-1"); !ok {
		t.Error("Peek() must not remove the continuation")
	}
	if _, ok := r.Consume("msg-1"); !ok {
		t.Error("continuation should still be consumable after Peek()")
	}
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Register("msg-1", &Continuation{Command: "yt", Owner: "alice"})
	r.Register("msg-1", &Continuation{Command: "yt", Owner: "bob"})

	c, ok := r.Consume("msg-1")
	if !ok {
		t.Fatal("Consume() should find the continuation")
	}
	if c.Owner != "bob" {
		t.Errorf("Owner = %q, want %q (latest registration wins)", c.Owner, "bob")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_ConsumeMissingKey(t *testing.T) {
	r := NewRegistry(0, nil)
	if c, ok := r.Consume("never-registered"); ok || c != nil {
		t.Errorf("Consume() on unknown key = (%v, %v), want (nil, false)", c, ok)
	}
}

func TestRegistry_ConcurrentConsume(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Register("msg-1", &Continuation{Command: "yt", Owner: "alice"})

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Consume("msg-1"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("concurrent Consume() succeeded %d times, want exactly 1", n)
	}
}

func TestRegistry_Expire(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	for i := 0; i < 3; i++ {
		r.Register(fmt.Sprintf("old-%d", i), &Continuation{
			Command:   "yt",
			CreatedAt: time.Now().Add(-2 * time.Minute),
		})
	}
	r.Register("fresh", &Continuation{Command: "yt"})

	if n := r.Expire(); n != 3 {
		t.Errorf("Expire() = %d, want 3", n)
	}
	if _, ok := r.Peek("fresh"); !ok {
		t.Error("fresh continuation should survive Expire()")
	}
	if _, ok := r.Peek("old-0"); ok {
		t.Error("expired continuation should be gone")
	}
}
