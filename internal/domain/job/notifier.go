package job

import (
	"sync"
)

// Notifier fans out "job reached a terminal state" signals to waiters keyed by job id.
type Notifier interface {
	Subscribe(jobID string) (func(), <-chan struct{})
	Notify(jobID string)
	StopAll()
}

// CompletionNotifier is the default in-process Notifier.
// Subscribers must re-check job state after subscribing; a signal sent before
// Subscribe returns is not replayed.
type CompletionNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewCompletionNotifier constructs an empty notifier.
func NewCompletionNotifier() *CompletionNotifier {
	return &CompletionNotifier{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers interest in jobID. The returned func removes the subscription.
func (n *CompletionNotifier) Subscribe(jobID string) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.subs[jobID] == nil {
		n.subs[jobID] = make(map[chan struct{}]struct{})
	}
	n.subs[jobID][ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subscribers := n.subs[jobID]
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			delete(n.subs, jobID)
		}
	}
	return unsub, ch
}

// Notify wakes every subscriber of jobID without blocking.
func (n *CompletionNotifier) Notify(jobID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[jobID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// StopAll closes every outstanding subscription.
func (n *CompletionNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for jobID, subscribers := range n.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(n.subs, jobID)
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*CompletionNotifier)(nil)
