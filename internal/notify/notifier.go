// Package notify is the best-effort change signal between local processes.
// Correctness never depends on it; it only shortens the gap between a
// capture and the next drain or refresh.
package notify

import "sync"

// Notifier is an in-process pub/sub keyed by scope string. Delivery is
// at-most-once per signal to currently registered subscribers; a subscriber
// that has not consumed its previous signal is skipped, never blocked on.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan string
}

// New creates an empty Notifier.
func New() *Notifier {
	return &Notifier{subs: make(map[string]map[int]chan string)}
}

// Subscribe registers for signals on scope. The returned channel receives
// the scope of each delivered signal; the cancel function unregisters and
// must be called exactly once.
func (n *Notifier) Subscribe(scope string) (<-chan string, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan string, 1)

	if n.subs[scope] == nil {
		n.subs[scope] = make(map[int]chan string)
	}
	n.subs[scope][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if set, ok := n.subs[scope]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(n.subs, scope)
			}
		}
	}
	return ch, cancel
}

// Signal notifies current subscribers of scope. Fire-and-forget: with no
// subscribers it is a no-op, and it never blocks.
func (n *Notifier) Signal(scope string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[scope] {
		select {
		case ch <- scope:
		default:
		}
	}
}
