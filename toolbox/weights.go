package toolbox

import (
	"fmt"
	"math/rand"
	"time"
)

// DefaultAlpha is the learning rate used when the caller has no better value.
const DefaultAlpha = float32(0.9)

// WeightStack is a sigmoid multilayer perceptron stored as one dense weight
// matrix per layer transition.
//
// Matrices[i] has shape (sizes[i]+biasExtra, sizes[i+1]), where biasExtra is 1
// when Bias is set.  With Bias set, every layer activation is extended with a
// constant 1 just before it is multiplied by the next matrix, so the last row
// of each matrix holds the bias weights.
//
// A WeightStack is not safe for concurrent use; see LockedStack.
type WeightStack struct {
	Matrices []*AF32
	Bias     bool
}

// NewWeightStack builds a stack for the given layer sizes with every weight
// drawn uniformly from [-1, 1).
func NewWeightStack(sizes []int, bias bool, r *rand.Rand) (*WeightStack, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 layer sizes, got %v", ErrInvalidConfig, sizes)
	}
	for i, s := range sizes {
		if s < 1 {
			return nil, fmt.Errorf("%w: layer %d has size %d", ErrInvalidConfig, i, s)
		}
	}

	ws := &WeightStack{
		Matrices: make([]*AF32, len(sizes)-1),
		Bias:     bias,
	}
	for i := 0; i < len(sizes)-1; i++ {
		w := MakeAF32(sizes[i]+ws.biasExtra(), sizes[i+1])
		for k := range w.V {
			w.V[k] = 2*r.Float32() - 1
		}
		ws.Matrices[i] = w
	}

	return ws, nil
}

// Clone returns a deep copy of the stack.
func (ws *WeightStack) Clone() *WeightStack {
	cp := &WeightStack{
		Matrices: make([]*AF32, len(ws.Matrices)),
		Bias:     ws.Bias,
	}
	for i, w := range ws.Matrices {
		cp.Matrices[i] = AF32Clone(w)
	}
	return cp
}

func (ws *WeightStack) biasExtra() int {
	if ws.Bias {
		return 1
	}
	return 0
}

// Validate checks that the matrices form a consistent chain.
func (ws *WeightStack) Validate() error {
	if len(ws.Matrices) == 0 {
		return fmt.Errorf("%w: weight stack has no matrices", ErrInvalidConfig)
	}
	for i, w := range ws.Matrices {
		if w == nil || len(w.Shape) != 2 {
			return fmt.Errorf("%w: matrix %d is not 2-dimensional", ErrInvalidConfig, i)
		}
		if w.Rows()*w.Cols() != len(w.V) {
			return fmt.Errorf("%w: matrix %d has shape %v but %d values", ErrInvalidConfig, i, w.Shape, len(w.V))
		}
		if w.Rows()-ws.biasExtra() < 1 || w.Cols() < 1 {
			return fmt.Errorf("%w: matrix %d has shape %v (bias=%v)", ErrInvalidConfig, i, w.Shape, ws.Bias)
		}
		if i > 0 {
			prev := ws.Matrices[i-1]
			if prev.Cols() != w.Rows()-ws.biasExtra() {
				return fmt.Errorf("%w: matrix %d has %d columns but matrix %d expects %d inputs", ErrInvalidConfig, i-1, prev.Cols(), i, w.Rows()-ws.biasExtra())
			}
		}
	}
	return nil
}

// Sizes returns the layer sizes the stack was built from.
func (ws *WeightStack) Sizes() []int {
	sizes := make([]int, 0, len(ws.Matrices)+1)
	sizes = append(sizes, ws.InputSize())
	for _, w := range ws.Matrices {
		sizes = append(sizes, w.Cols())
	}
	return sizes
}

// InputSize is the length of the vectors accepted by Forward and Train.
func (ws *WeightStack) InputSize() int {
	return ws.Matrices[0].Rows() - ws.biasExtra()
}

// OutputSize is the length of the vectors returned by Forward.
func (ws *WeightStack) OutputSize() int {
	return ws.Matrices[len(ws.Matrices)-1].Cols()
}

// layerInput returns the vector that is multiplied by a layer's matrix: the
// activation itself, or a bias-extended copy of it.
func (ws *WeightStack) layerInput(a []float32) []float32 {
	if ws.Bias {
		return ExtendWithBias(a)
	}
	return a
}

// forwardTrace returns the activation of every layer, input included.  The
// stored activations never carry the bias unit.
func (ws *WeightStack) forwardTrace(input []float32) [][]float32 {
	trace := make([][]float32, len(ws.Matrices)+1)
	trace[0] = input
	for l, w := range ws.Matrices {
		a := make([]float32, w.Cols())
		vecMat(ws.layerInput(trace[l]), w, a)
		sigmoidActivation(a)
		trace[l+1] = a
	}
	return trace
}

// Forward computes the network output for input, whose values should already
// be normalized to [0, 1].
func (ws *WeightStack) Forward(input []float32) ([]float32, error) {
	if len(input) != ws.InputSize() {
		return nil, fmt.Errorf("%w: input has length %d, want %d", ErrShapeMismatch, len(input), ws.InputSize())
	}
	in := make([]float32, len(input))
	copy(in, input)

	trace := ws.forwardTrace(in)
	return trace[len(trace)-1], nil
}

// TrainTimings accumulates time spent in each phase of TrainStep.
type TrainTimings struct {
	Overall         time.Duration
	Forward         time.Duration
	Backpropagation time.Duration
	WeightUpdate    time.Duration
}

func (t *TrainTimings) Reset() {
	t.Overall = 0 * time.Second
	t.Forward = 0 * time.Second
	t.Backpropagation = 0 * time.Second
	t.WeightUpdate = 0 * time.Second
}

// Train performs one backpropagation update for a single (input, target)
// pair, scaling every delta by alpha.
func (ws *WeightStack) Train(input, target []float32, alpha float32) error {
	return ws.TrainStep(input, target, alpha, nil)
}

// TrainStep is Train with optional per-phase timing.  timings may be nil.
func (ws *WeightStack) TrainStep(input, target []float32, alpha float32, timings *TrainTimings) error {
	if len(input) != ws.InputSize() {
		return fmt.Errorf("%w: input has length %d, want %d", ErrShapeMismatch, len(input), ws.InputSize())
	}
	if len(target) != ws.OutputSize() {
		return fmt.Errorf("%w: target has length %d, want %d", ErrShapeMismatch, len(target), ws.OutputSize())
	}

	start := time.Now()

	in := make([]float32, len(input))
	copy(in, input)

	L := len(ws.Matrices)
	trace := ws.forwardTrace(in)

	backpropStart := time.Now()

	// deltas[l] belongs to layer l and drives the update of Matrices[l-1].
	// deltas[0] is never used.
	deltas := make([][]float32, L+1)

	out := trace[L]
	dOut := make([]float32, len(out))
	for j := range out {
		dOut[j] = (target[j] - out[j]) * derivSigmoid(out[j], alpha)
	}
	deltas[L] = dOut

	// Error of layer l is the next delta projected back through Matrices[l].
	// The bias row receives an error too, but nothing upstream feeds it, so
	// it is dropped.
	for l := L - 1; l >= 1; l-- {
		w := ws.Matrices[l]
		e := make([]float32, w.Rows())
		vecMatT(deltas[l+1], w, e)
		if ws.Bias {
			e = StripBias(e)
		}

		a := trace[l]
		d := make([]float32, len(a))
		for j := range a {
			d[j] = e[j] * derivSigmoid(a[j], alpha)
		}
		deltas[l] = d
	}

	updateStart := time.Now()

	for l, w := range ws.Matrices {
		addOuter(ws.layerInput(trace[l]), deltas[l+1], w)
	}

	if timings != nil {
		end := time.Now()
		timings.Forward += backpropStart.Sub(start)
		timings.Backpropagation += updateStart.Sub(backpropStart)
		timings.WeightUpdate += end.Sub(updateStart)
		timings.Overall += end.Sub(start)
	}

	return nil
}

// Reverse runs input, sized like the output layer, through the transposed
// matrices in reverse order.  It is a lossy approximation of inverting the
// network.
//
// Reverse is only defined for stacks without bias units: the transposed bias
// row has no meaning in the reverse direction, so stacks with Bias set return
// ErrUnsupportedMode.
func (ws *WeightStack) Reverse(input []float32) ([]float32, error) {
	if ws.Bias {
		return nil, fmt.Errorf("%w: reverse pass is not defined for stacks with bias units", ErrUnsupportedMode)
	}
	if len(input) != ws.OutputSize() {
		return nil, fmt.Errorf("%w: input has length %d, want %d", ErrShapeMismatch, len(input), ws.OutputSize())
	}

	L := len(ws.Matrices)
	reversed := make([]*AF32, L)
	for i := 0; i < L; i++ {
		w := ws.Matrices[L-1-i]
		wT := MakeAF32(w.Cols(), w.Rows())
		AF32Transpose(w, wT)
		reversed[i] = wT
	}

	a := make([]float32, len(input))
	copy(a, input)
	for _, w := range reversed {
		next := make([]float32, w.Cols())
		vecMat(a, w, next)
		sigmoidActivation(next)
		a = next
	}
	return a, nil
}
