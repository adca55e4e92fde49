package toolbox

//go:generate go run ./asm-generators/dense-dot2 -out asm_dense_dot2_amd64.s -stubs stub_dense_dot2_amd64.go -pkg toolbox

// Kernels used by the backward pass.  Builds with the avx tag swap in the
// generated assembly versions.
var (
	denseDot2    = denseDot2Naive
	denseDotRows = denseDotRowsNaive
)

func denseDot2Naive(x []float32, y []float32) float32 {
	if len(x) != len(y) {
		panic("mismatched length")
	}
	var sum float32
	for i := range len(x) {
		sum += x[i] * y[i]
	}
	return sum
}

// denseDotRowsNaive sets out[i] to the dot product of x with row i of the
// row-major matrix w, which holds len(out) rows of len(x) values.
func denseDotRowsNaive(w, x, out []float32) {
	cols := len(x)
	if len(w) != len(out)*cols {
		panic("dimension mismatch")
	}
	for i := range out {
		out[i] = denseDot2Naive(w[i*cols:i*cols+cols], x)
	}
}

// denseAxpy computes y += alpha*x.
func denseAxpy(alpha float32, x, y []float32) {
	if len(x) != len(y) {
		panic("mismatched length")
	}
	y = y[:len(x)] // bounds check elimination hint
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// vecMat computes the row-vector by matrix product x·w into out.
//
// x has length w.Rows(), out has length w.Cols().
func vecMat(x []float32, w *AF32, out []float32) {
	if len(x) != w.Rows() {
		panic("dimension mismatch")
	}
	if len(out) != w.Cols() {
		panic("dimension mismatch")
	}

	// Equivalent to
	//
	// for j := 0; j < w.Cols(); j++ {
	// 	var z float32
	// 	for i := 0; i < w.Rows(); i++ {
	// 		z += x[i] * w.At2(i, j)
	// 	}
	// 	out[j] = z
	// }
	//
	// but walks w row by row so that every access is contiguous.
	for j := range out {
		out[j] = 0
	}
	for i := range x {
		denseAxpy(x[i], w.Row(i), out)
	}
}

// vecMatT computes the row-vector by transposed-matrix product x·wᵀ into out.
//
// x has length w.Cols(), out has length w.Rows().
func vecMatT(x []float32, w *AF32, out []float32) {
	if len(x) != w.Cols() {
		panic("dimension mismatch")
	}
	if len(out) != w.Rows() {
		panic("dimension mismatch")
	}

	denseDotRows(w.V, x, out)
}

// addOuter computes w += xᵀ·d, the outer product of the column vector x and
// the row vector d.
func addOuter(x, d []float32, w *AF32) {
	if len(x) != w.Rows() {
		panic("dimension mismatch")
	}
	if len(d) != w.Cols() {
		panic("dimension mismatch")
	}

	for i := range x {
		denseAxpy(x[i], d, w.Row(i))
	}
}
