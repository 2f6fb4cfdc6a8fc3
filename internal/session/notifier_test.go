package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertSilent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func testNotifier(t *testing.T, n Notifier) {
	ctx := context.Background()
	alice, cancelAlice, err := n.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("Subscribe(alice) error = %v", err)
	}
	defer cancelAlice()
	bob, cancelBob, err := n.Subscribe(ctx, "bob")
	if err != nil {
		t.Fatalf("Subscribe(bob) error = %v", err)
	}

	if err := n.Publish(ctx, Event{Type: EventSelectionChanged, UserID: "alice", DocumentID: "security"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got := receive(t, alice)
	if got.Type != EventSelectionChanged || got.DocumentID != "security" || got.At.IsZero() {
		t.Fatalf("unexpected event %+v", got)
	}
	assertSilent(t, bob)

	cancelBob()
	cancelBob()
	for range bob {
	}
	if err := n.Publish(ctx, Event{Type: EventProjectDeleted, UserID: "bob", ProjectID: "p1"}); err != nil {
		t.Fatalf("Publish() after cancel error = %v", err)
	}
}

func TestLocalNotifier(t *testing.T) {
	n := NewLocalNotifier()
	testNotifier(t, n)

	ch, _, err := n.Subscribe(context.Background(), "carol")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected subscription closed by Close")
	}
	if err := n.Publish(context.Background(), Event{UserID: "carol"}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLocalNotifierDropsForSlowSubscriber(t *testing.T) {
	n := NewLocalNotifier()
	ch, cancel, _ := n.Subscribe(context.Background(), "dave")
	defer cancel()
	for i := 0; i < subscriberBuffer+5; i++ {
		if err := n.Publish(context.Background(), Event{Type: EventProjectUpdated, UserID: "dave"}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected buffer filled to %d, got %d", subscriberBuffer, len(ch))
	}
}

func TestRedisNotifier(t *testing.T) {
	s := miniredis.RunT(t)
	n, err := NewRedisNotifier("redis://"+s.Addr(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisNotifier failed: %v", err)
	}
	defer n.Close()

	if err := n.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	testNotifier(t, n)
}

func TestNewRedisNotifierRejectsBadURL(t *testing.T) {
	if _, err := NewRedisNotifier("not-a-url", zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
