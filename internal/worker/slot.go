package worker

import "sync"

// Slot is the single holder for the currently live worker process. A handler
// registers its process here so a cancellation request can terminate it
// regardless of which handler started it. Registering terminates any prior
// occupant, which keeps at most one worker in flight even with two jobs
// running.
type Slot struct {
	mu      sync.Mutex
	current *Process
}

func NewSlot() *Slot {
	return &Slot{}
}

func (s *Slot) Register(p *Process) {
	s.mu.Lock()
	prior := s.current
	s.current = p
	s.mu.Unlock()

	if prior != nil && prior != p {
		prior.Terminate()
	}
}

// Clear releases the slot if p is still the occupant. Handlers call this on
// the way out so a stale handle is never killed by an unrelated future
// cancel.
func (s *Slot) Clear(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == p {
		s.current = nil
	}
}

// Terminate kills the current occupant, if any.
func (s *Slot) Terminate() {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()

	if p != nil {
		p.Terminate()
	}
}
