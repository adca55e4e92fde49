// Package toolbox implements a small sigmoid multilayer perceptron stored as a
// stack of dense weight matrices.
package toolbox

import (
	"fmt"

	"github.com/chewxy/math32"
)

// AF32 is a dense, row-major float32 array.
type AF32 struct {
	V     []float32
	Shape []int
}

func MakeAF32(shape ...int) *AF32 {
	for _, s := range shape {
		if s <= 0 {
			panic(fmt.Sprintf("invalid shape: %v", shape))
		}
	}
	size := 1
	for _, s := range shape {
		size *= s
	}

	return &AF32{
		V:     make([]float32, size),
		Shape: shape,
	}
}

// AF32Clone returns a deep copy of the input (shape and values).
func AF32Clone(in *AF32) *AF32 {
	shapeCopy := make([]int, len(in.Shape))
	copy(shapeCopy, in.Shape)
	vCopy := make([]float32, len(in.V))
	copy(vCopy, in.V)
	return &AF32{
		V:     vCopy,
		Shape: shapeCopy,
	}
}

func AF32Transpose(in *AF32, out *AF32) {
	if len(in.Shape) != 2 {
		panic("cannot transpose if len(shape) != 2")
	}
	if len(in.V) != len(out.V) {
		panic("output storage is not correctly sized to store the transpose of the input")
	}
	out.Shape = []int{in.Shape[1], in.Shape[0]}

	for i := 0; i < in.Shape[0]; i++ {
		for j := 0; j < in.Shape[1]; j++ {
			out.Set2(j, i, in.At2(i, j))
		}
	}
}

func (a *AF32) Rows() int {
	return a.Shape[0]
}

func (a *AF32) Cols() int {
	return a.Shape[1]
}

func (a *AF32) At2(idx0, idx1 int) float32 {
	if len(a.Shape) != 2 {
		panic("At2() invalid for len(shape) != 2")
	}
	return a.V[idx0*a.Shape[1]+idx1]
}

func (a *AF32) Set2(idx0, idx1 int, v float32) {
	if len(a.Shape) != 2 {
		panic("Set2() invalid for len(shape) != 2")
	}
	a.V[idx0*a.Shape[1]+idx1] = v
}

// Row returns row i of a 2D array.  The returned slice shares storage with a.
func (a *AF32) Row(i int) []float32 {
	if len(a.Shape) != 2 {
		panic("Row() invalid for len(shape) != 2")
	}
	cols := a.Shape[1]
	return a.V[i*cols : i*cols+cols]
}

// Sigmoid outputs are kept within [sigmoidMin, sigmoidMax].  In float32 the
// logistic function rounds to exactly 1 once z exceeds about 16.6, and to 0
// once z falls below about -88, and the gradient at either end is then 0.
// The bounds sit one unit in the last place inside the open interval.
const (
	sigmoidMax = float32(1) - 1.0/(1<<24)
	sigmoidMin = float32(1.0 / (1 << 24))
)

func sigmoid(z float32) float32 {
	a := 1 / (1 + math32.Exp(-z))
	if a > sigmoidMax {
		return sigmoidMax
	}
	if a < sigmoidMin {
		return sigmoidMin
	}
	return a
}

// sigmoidActivation applies the logistic function to z in place.
func sigmoidActivation(z []float32) {
	for i := 0; i < len(z); i++ {
		z[i] = sigmoid(z[i])
	}
}

// derivSigmoid is the derivative of the logistic function expressed in terms
// of its already-activated output a, scaled by the learning rate.
func derivSigmoid(a, alpha float32) float32 {
	return a * (1 - a) * alpha
}

// SquaredError is half the summed squared difference between output and
// target.
func SquaredError(output, target []float32) float32 {
	if len(output) != len(target) {
		panic("output and target must have same length")
	}

	loss := float32(0)
	for i := range output {
		diff := output[i] - target[i]
		loss += diff * diff / 2
	}
	return loss
}

// ExtendWithBias returns a copy of v with the constant bias unit appended.
func ExtendWithBias(v []float32) []float32 {
	out := make([]float32, len(v)+1)
	copy(out, v)
	out[len(v)] = 1
	return out
}

// StripBias drops the trailing bias component of v.  The returned slice shares
// storage with v.
func StripBias(v []float32) []float32 {
	if len(v) == 0 {
		panic("cannot strip bias from empty vector")
	}
	return v[:len(v)-1]
}
