package toolbox

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
)

func TestNewWeightStackShapes(t *testing.T) {
	r := rand.New(rand.NewSource(12345))

	for _, sizes := range [][]int{{1, 1}, {2, 2}, {3, 10, 10, 2}, {784, 16, 10}} {
		for _, bias := range []bool{false, true} {
			ws, err := NewWeightStack(sizes, bias, r)
			if err != nil {
				t.Fatalf("NewWeightStack(%v, %v): %v", sizes, bias, err)
			}

			extra := 0
			if bias {
				extra = 1
			}
			if len(ws.Matrices) != len(sizes)-1 {
				t.Fatalf("NewWeightStack(%v, %v) made %d matrices, want %d", sizes, bias, len(ws.Matrices), len(sizes)-1)
			}
			for i, w := range ws.Matrices {
				want := []int{sizes[i] + extra, sizes[i+1]}
				if diff := cmp.Diff(w.Shape, want); diff != "" {
					t.Errorf("sizes=%v bias=%v matrix %d: wrong shape; diff (-got +want)\n%s", sizes, bias, i, diff)
				}
				for _, v := range w.V {
					if v < -1 || v > 1 {
						t.Errorf("sizes=%v bias=%v matrix %d: weight %v outside [-1, 1]", sizes, bias, i, v)
					}
				}
			}

			if diff := cmp.Diff(ws.Sizes(), sizes); diff != "" {
				t.Errorf("Sizes() round trip; diff (-got +want)\n%s", diff)
			}
			if err := ws.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		}
	}
}

func TestNewWeightStackInvalidConfig(t *testing.T) {
	r := rand.New(rand.NewSource(12345))

	for _, sizes := range [][]int{nil, {}, {3}, {3, 0}, {0, 3}, {2, -1, 2}} {
		if _, err := NewWeightStack(sizes, false, r); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewWeightStack(%v): got err %v, want ErrInvalidConfig", sizes, err)
		}
	}
}

func TestValidateBrokenChain(t *testing.T) {
	ws := &WeightStack{
		Matrices: []*AF32{MakeAF32(2, 3), MakeAF32(4, 1)},
	}
	if err := ws.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate: got err %v, want ErrInvalidConfig", err)
	}

	ws.Bias = true
	if err := ws.Validate(); err != nil {
		t.Fatalf("Validate with bias: %v", err)
	}

	if err := (&WeightStack{}).Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate of empty stack: got err %v, want ErrInvalidConfig", err)
	}
}

func TestForwardBounded(t *testing.T) {
	r := rand.New(rand.NewSource(12345))

	for _, bias := range []bool{false, true} {
		ws, err := NewWeightStack([]int{3, 10, 10, 2}, bias, r)
		if err != nil {
			t.Fatalf("NewWeightStack: %v", err)
		}

		for trial := 0; trial < 100; trial++ {
			x := []float32{r.Float32(), r.Float32(), r.Float32()}
			out, err := ws.Forward(x)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			if len(out) != 2 {
				t.Fatalf("Forward returned %d values, want 2", len(out))
			}
			for _, v := range out {
				if v <= 0 || v >= 1 {
					t.Errorf("bias=%v Forward(%v) = %v, not in (0, 1)", bias, x, out)
				}
			}
		}
	}
}

func constantStack(sizes []int, w float32) *WeightStack {
	ws := &WeightStack{Matrices: make([]*AF32, len(sizes)-1)}
	for i := range ws.Matrices {
		m := MakeAF32(sizes[i], sizes[i+1])
		for k := range m.V {
			m.V[k] = w
		}
		ws.Matrices[i] = m
	}
	return ws
}

func ones(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func TestForwardBoundedWideLayers(t *testing.T) {
	testCases := []struct {
		sizes  []int
		weight float32
		want   float32
	}{
		{sizes: []int{40, 1}, weight: 0.5, want: sigmoidMax},
		{sizes: []int{40, 1}, weight: -0.5, want: sigmoidMin},
		{sizes: []int{784, 1}, weight: 1, want: sigmoidMax},
		{sizes: []int{784, 1}, weight: -1, want: sigmoidMin},
	}
	for _, tc := range testCases {
		ws := constantStack(tc.sizes, tc.weight)
		out, err := ws.Forward(ones(tc.sizes[0]))
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if out[0] <= 0 || out[0] >= 1 {
			t.Errorf("sizes=%v weight=%v: output %v not in (0, 1)", tc.sizes, tc.weight, out[0])
		}
		if out[0] != tc.want {
			t.Errorf("sizes=%v weight=%v: output %v, want %v", tc.sizes, tc.weight, out[0], tc.want)
		}
		if g := derivSigmoid(out[0], DefaultAlpha); g <= 0 {
			t.Errorf("sizes=%v weight=%v: gradient %v at saturated output, want > 0", tc.sizes, tc.weight, g)
		}
	}
}

func TestTrainMovesSaturatedUnit(t *testing.T) {
	ws := constantStack([]int{40, 1}, 0.5)
	if err := ws.Train(ones(40), []float32{0}, DefaultAlpha); err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i, v := range ws.Matrices[0].V {
		if v >= 0.5 {
			t.Fatalf("weight %d = %v after training toward 0, want < 0.5", i, v)
		}
	}
}

func TestForwardIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{3, 4, 2}, true, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}
	before := ws.Clone()

	x := []float32{1, 0, 0.7}
	first, err := ws.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := ws.Forward(x)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if diff := cmp.Diff(again, first); diff != "" {
			t.Fatalf("Forward is not repeatable; diff (-got +want)\n%s", diff)
		}
	}

	if diff := cmp.Diff(ws, before); diff != "" {
		t.Fatalf("Forward mutated the stack; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(x, []float32{1, 0, 0.7}); diff != "" {
		t.Fatalf("Forward mutated its input; diff (-got +want)\n%s", diff)
	}
}

func TestShapeMismatch(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{2, 3, 1}, false, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}
	before := ws.Clone()

	if _, err := ws.Forward([]float32{1, 0, 0}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Forward: got err %v, want ErrShapeMismatch", err)
	}
	if err := ws.Train([]float32{1}, []float32{1}, DefaultAlpha); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Train with short input: got err %v, want ErrShapeMismatch", err)
	}
	if err := ws.Train([]float32{1, 0}, []float32{1, 0}, DefaultAlpha); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Train with long target: got err %v, want ErrShapeMismatch", err)
	}
	if _, err := ws.Reverse([]float32{1, 0}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Reverse: got err %v, want ErrShapeMismatch", err)
	}

	if diff := cmp.Diff(ws, before); diff != "" {
		t.Fatalf("Failed calls mutated the stack; diff (-got +want)\n%s", diff)
	}
}

func TestTrainConvergesSingleTransition(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{2, 2}, false, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}

	x := []float32{1, 0.5}
	y := []float32{0.8, 0.2}

	out, _ := ws.Forward(x)
	lastLoss := SquaredError(out, y)
	for i := 0; i < 2000; i++ {
		if err := ws.Train(x, y, DefaultAlpha); err != nil {
			t.Fatalf("Train: %v", err)
		}
		out, _ = ws.Forward(x)
		loss := SquaredError(out, y)
		if loss > lastLoss+1e-6 {
			t.Fatalf("step %d: loss increased from %v to %v", i, lastLoss, loss)
		}
		lastLoss = loss
	}

	for i := range y {
		if math32.Abs(out[i]-y[i]) > 0.05 {
			t.Errorf("output %d: got %v, want within 0.05 of %v", i, out[i], y[i])
		}
	}
}

func TestTrainConvergesHiddenLayer(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{2, 3, 1}, false, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}

	x := []float32{0, 1}
	y := []float32{1.0}
	for i := 0; i < 5000; i++ {
		if err := ws.Train(x, y, DefaultAlpha); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}

	out, err := ws.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if math32.Abs(out[0]-1.0) > 0.05 {
		t.Fatalf("Forward(%v) = %v, want within 0.05 of 1.0", x, out)
	}
}

func TestTrainUsesBias(t *testing.T) {
	r := rand.New(rand.NewSource(12345))

	// Without bias units a single transition maps an all-zero input to
	// sigmoid(0) = 0.5 and receives no weight update from it.
	noBias, err := NewWeightStack([]int{2, 1}, false, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}
	withBias, err := NewWeightStack([]int{2, 3, 1}, true, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}

	x := []float32{0, 0}
	y := []float32{0.9}
	for i := 0; i < 2000; i++ {
		if err := noBias.Train(x, y, DefaultAlpha); err != nil {
			t.Fatalf("Train: %v", err)
		}
		if err := withBias.Train(x, y, DefaultAlpha); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}

	out, _ := noBias.Forward(x)
	if diff := cmp.Diff(out, []float32{0.5}); diff != "" {
		t.Errorf("Stack without bias moved on zero input; diff (-got +want)\n%s", diff)
	}

	out, _ = withBias.Forward(x)
	if math32.Abs(out[0]-0.9) > 0.05 {
		t.Errorf("Forward(%v) = %v, want within 0.05 of 0.9", x, out)
	}
}

func TestTrainUpdatesEveryMatrix(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{3, 4, 4, 2}, true, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}
	before := ws.Clone()

	if err := ws.Train([]float32{0.2, 0.4, 0.6}, []float32{1, 0}, DefaultAlpha); err != nil {
		t.Fatalf("Train: %v", err)
	}

	for i := range ws.Matrices {
		if cmp.Equal(ws.Matrices[i], before.Matrices[i]) {
			t.Errorf("matrix %d was not updated", i)
		}
		if diff := cmp.Diff(ws.Matrices[i].Shape, before.Matrices[i].Shape); diff != "" {
			t.Errorf("matrix %d changed shape; diff (-got +want)\n%s", i, diff)
		}
	}
}

func TestTrainTimings(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{3, 4, 2}, true, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}

	var timings TrainTimings
	for i := 0; i < 100; i++ {
		if err := ws.TrainStep([]float32{0.2, 0.4, 0.6}, []float32{1, 0}, DefaultAlpha, &timings); err != nil {
			t.Fatalf("TrainStep: %v", err)
		}
	}
	if timings.Overall < timings.Forward+timings.Backpropagation+timings.WeightUpdate {
		t.Errorf("overall timing %v is less than the sum of its phases %+v", timings.Overall, timings)
	}

	timings.Reset()
	if timings != (TrainTimings{}) {
		t.Errorf("Reset left %+v", timings)
	}
}

func TestReverse(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{2, 2}, false, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}

	x := []float32{0.3, 0.9}
	out, err := ws.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	back, err := ws.Reverse(out)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if len(back) != len(x) {
		t.Fatalf("Reverse returned %d values, want %d", len(back), len(x))
	}
	for _, v := range back {
		if v <= 0 || v >= 1 {
			t.Errorf("Reverse(%v) = %v, not in (0, 1)", out, back)
		}
	}
}

func TestReverseUsesTransposedMatrices(t *testing.T) {
	// sizes=[3,2,1]; Reverse feeds the single output back through W1ᵀ then W0ᵀ.
	ws := &WeightStack{
		Matrices: []*AF32{
			{V: []float32{1, 0, 0, 1, 1, 1}, Shape: []int{3, 2}},
			{V: []float32{2, -2}, Shape: []int{2, 1}},
		},
	}

	got, err := ws.Reverse([]float32{0.5})
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}

	h := []float32{sigmoid(1), sigmoid(-1)}
	want := []float32{sigmoid(h[0]), sigmoid(h[1]), sigmoid(h[0] + h[1])}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("Wrong reverse output; diff (-got +want)\n%s", diff)
	}
}

func TestReverseRejectsBias(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	ws, err := NewWeightStack([]int{2, 2}, true, r)
	if err != nil {
		t.Fatalf("NewWeightStack: %v", err)
	}
	if _, err := ws.Reverse([]float32{0.5, 0.5}); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("Reverse: got err %v, want ErrUnsupportedMode", err)
	}
}

func TestBiasHelpers(t *testing.T) {
	v := []float32{0.25, 0.5}
	ext := ExtendWithBias(v)
	if diff := cmp.Diff(ext, []float32{0.25, 0.5, 1}); diff != "" {
		t.Fatalf("ExtendWithBias; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(v, []float32{0.25, 0.5}); diff != "" {
		t.Fatalf("ExtendWithBias mutated its input; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(StripBias(ext), v); diff != "" {
		t.Fatalf("StripBias; diff (-got +want)\n%s", diff)
	}
}
