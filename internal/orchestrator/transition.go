package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/galaxymorph/internal/galaxy"
)

// TransitionKind names a state change.
type TransitionKind string

const (
	MorphStarted   TransitionKind = "morph_started"
	MorphCompleted TransitionKind = "morph_completed"
	MorphReverted  TransitionKind = "morph_reverted"
)

// Transition is emitted to subscribers on every state change.
type Transition struct {
	Kind     TransitionKind    `json:"kind"`
	From     galaxy.Descriptor `json:"from"`
	To       galaxy.Descriptor `json:"to"`
	Progress float64           `json:"progress"`
	Frame    uint64            `json:"frame"`
	At       time.Time         `json:"at"`
}

// Subscribe registers a listener. Sends never block the frame loop: a
// subscriber whose buffer is full misses events.
func (o *Orchestrator) Subscribe(buffer int) (string, <-chan Transition) {
	id := uuid.NewString()
	ch := make(chan Transition, max(buffer, 1))

	o.subs.mu.Lock()
	defer o.subs.mu.Unlock()
	if o.subs.chans == nil {
		close(ch)
		return id, ch
	}
	o.subs.chans[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the listener. Unknown ids are ignored.
func (o *Orchestrator) Unsubscribe(id string) {
	o.subs.mu.Lock()
	defer o.subs.mu.Unlock()
	if ch, ok := o.subs.chans[id]; ok {
		delete(o.subs.chans, id)
		close(ch)
	}
}

// Subscribers returns the number of registered listeners.
func (o *Orchestrator) Subscribers() int {
	o.subs.mu.Lock()
	defer o.subs.mu.Unlock()
	return len(o.subs.chans)
}

type subscribers struct {
	mu    sync.Mutex
	chans map[string]chan Transition
}

func (s *subscribers) broadcast(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.chans {
		select {
		case ch <- t:
		default:
			slog.Debug("transition dropped, subscriber full", "subscriber", id, "kind", t.Kind)
		}
	}
}

// closeAll closes every channel; later Subscribe calls get a closed channel.
func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.chans {
		close(ch)
		delete(s.chans, id)
	}
	s.chans = nil
}
