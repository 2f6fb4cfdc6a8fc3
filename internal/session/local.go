package session

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("notifier closed")

// LocalNotifier delivers events within the process.
type LocalNotifier struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan Event
	nextID int
	closed bool
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: map[string]map[int]chan Event{}}
}

func (n *LocalNotifier) Publish(ctx context.Context, event Event) error {
	event = stamp(event)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	for _, ch := range n.subs[event.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, nil, ErrClosed
	}
	id := n.nextID
	n.nextID++
	ch := make(chan Event, subscriberBuffer)
	if n.subs[userID] == nil {
		n.subs[userID] = map[int]chan Event{}
	}
	n.subs[userID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if sub, ok := n.subs[userID][id]; ok {
				delete(n.subs[userID], id)
				if len(n.subs[userID]) == 0 {
					delete(n.subs, userID)
				}
				close(sub)
			}
		})
	}
	return ch, cancel, nil
}

// Close ends every open subscription.
func (n *LocalNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for userID, subs := range n.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(n.subs, userID)
	}
	return nil
}
