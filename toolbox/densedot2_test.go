package toolbox

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVecMat(t *testing.T) {
	w := &AF32{V: []float32{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}}

	out := make([]float32, 3)
	vecMat([]float32{1, 10}, w, out)
	if diff := cmp.Diff(out, []float32{41, 52, 63}); diff != "" {
		t.Fatalf("vecMat; diff (-got +want)\n%s", diff)
	}

	outT := make([]float32, 2)
	vecMatT([]float32{1, 0, 2}, w, outT)
	if diff := cmp.Diff(outT, []float32{7, 16}); diff != "" {
		t.Fatalf("vecMatT; diff (-got +want)\n%s", diff)
	}
}

func TestAddOuter(t *testing.T) {
	inputSize := 33
	outputSize := 44

	x := make([]float32, inputSize)
	for i := range x {
		x[i] = 1.0
	}
	d := make([]float32, outputSize)
	for i := range d {
		d[i] = 2.0
	}

	w := MakeAF32(inputSize, outputSize)
	for k := 0; k < 50; k++ {
		addOuter(x, d, w)
	}

	want := make([]float32, inputSize*outputSize)
	for i := range want {
		want[i] = 100.0
	}
	if diff := cmp.Diff(w.V, want); diff != "" {
		t.Fatalf("Wrong output; diff (-got +want)\n%s", diff)
	}
}

func TestAF32Transpose(t *testing.T) {
	in := &AF32{V: []float32{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}}
	out := MakeAF32(3, 2)
	AF32Transpose(in, out)

	want := &AF32{V: []float32{1, 4, 2, 5, 3, 6}, Shape: []int{3, 2}}
	if diff := cmp.Diff(out, want); diff != "" {
		t.Fatalf("Wrong transpose; diff (-got +want)\n%s", diff)
	}
}

func BenchmarkDenseDot2(b *testing.B) {
	for i := 4; i < 12; i++ {
		b.Run("size="+strconv.Itoa(2<<i), func(b *testing.B) {
			x := make([]float32, 2<<i)
			y := make([]float32, 2<<i)
			for i := range 2 << i {
				x[i] = rand.Float32()
				y[i] = rand.Float32()
			}
			for b.Loop() {
				_ = denseDot2(x, y)
			}
		})
	}
}
