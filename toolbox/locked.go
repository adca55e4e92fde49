package toolbox

import "sync"

// LockedStack serializes access to a WeightStack so that it can be shared
// between goroutines.  Each call holds the lock for its whole duration, so a
// training update is never observed half-applied.
type LockedStack struct {
	mu sync.Mutex
	ws *WeightStack
}

// NewLockedStack wraps ws.  The caller must not use ws directly afterwards.
func NewLockedStack(ws *WeightStack) *LockedStack {
	return &LockedStack{ws: ws}
}

func (s *LockedStack) Forward(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Forward(input)
}

func (s *LockedStack) Train(input, target []float32, alpha float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Train(input, target, alpha)
}

func (s *LockedStack) Reverse(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Reverse(input)
}

// Snapshot returns a deep copy of the wrapped stack.
func (s *LockedStack) Snapshot() *WeightStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Clone()
}
