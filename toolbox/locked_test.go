package toolbox

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLockedStackConcurrentTraining(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{2, 2}, false, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}
	s := NewLockedStack(ws)

	x := []float32{1, 0.5}
	y := []float32{0.8, 0.2}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				if err := s.Train(x, y, DefaultAlpha); err != nil {
					t.Errorf("Train: %v", err)
					return
				}
				if _, err := s.Forward(x); err != nil {
					t.Errorf("Forward: %v", err)
					return
				}
				if _, err := s.Reverse(y); err != nil {
					t.Errorf("Reverse: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// 2000 serialized updates on one sample must match 2000 sequential ones.
	want, err := NewWeightStack([]int{2, 2}, false, rand.New(rand.NewSource(12345)))
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}
	for i := 0; i < 2000; i++ {
		if err := want.Train(x, y, DefaultAlpha); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}

	if diff := cmp.Diff(s.Snapshot(), want); diff != "" {
		t.Fatalf("Concurrent training differs from sequential; diff (-got +want)\n%s", diff)
	}
}
