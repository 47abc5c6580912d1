package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishImport(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishImport("inbox/words.csv", 12, 3)

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: import.completed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"source":"inbox/words.csv","words":12,"tags":3`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) map[string]int {
	time.Sleep(50 * time.Millisecond)
	counts := map[string]int{}
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			switch {
			case strings.Contains(s, "event: "+EventLevelProgress):
				counts[EventLevelProgress]++
			case strings.Contains(s, "event: "+EventChunkLoaded):
				counts[EventChunkLoaded]++
			}
		default:
			return counts
		}
	}
}

func TestPublishChunkLoaded_ProgressThrottle(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event per level emits progress, the second is throttled.
	b.PublishChunkLoaded("middle", 0, 10)
	b.PublishChunkLoaded("middle", 1, 20)
	// Another level has its own throttle.
	b.PublishChunkLoaded("high", 0, 50)
	// Completion always emits progress.
	b.PublishChunkLoaded("middle", 9, 100)

	counts := drain(ch)
	if counts[EventChunkLoaded] != 4 {
		t.Errorf("chunk events = %d, want 4", counts[EventChunkLoaded])
	}
	if counts[EventLevelProgress] != 3 {
		t.Errorf("progress events = %d, want 3", counts[EventLevelProgress])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishChunkLoaded("elementary", 2, 30)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: chunk.loaded") || !strings.Contains(body, `"chunk":2`) {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 70; i++ {
			b.PublishImport("x.csv", i, 0)
		}
	}()
	wg.Wait()
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.PublishImport("x.csv", 1, 0)
	b.PublishChunkLoaded("high", 0, 10)
}

func TestSubscribeReplaysLevelProgress(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()

	first := b.Subscribe()
	defer b.Unsubscribe(first)

	b.PublishChunkLoaded("middle", 0, 10)
	b.PublishChunkLoaded("middle", 1, 20)
	b.PublishChunkLoaded("high", 0, 50)
	// Once the last chunk reaches the first client, every update has been applied.
	for done := false; !done; {
		select {
		case msg := <-first:
			done = strings.Contains(string(msg), `"level":"high","chunk":0`)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for chunk events")
		}
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for replay")
		}
	}
	if !strings.Contains(got[0], `"level":"high","progress":50`) {
		t.Errorf("first replay = %q", got[0])
	}
	if !strings.Contains(got[1], `"level":"middle","progress":20`) {
		t.Errorf("second replay = %q", got[1])
	}
}

func TestEventIDsIncrease(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishImport("a.csv", 1, 0)
	b.PublishImport("b.csv", 1, 0)

	for _, want := range []string{"id: 1\n", "id: 2\n"} {
		select {
		case msg := <-ch:
			if !strings.HasPrefix(string(msg), want) {
				t.Errorf("frame %q, want prefix %q", msg, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
}
