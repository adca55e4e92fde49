//go:build amd64 && avx

package toolbox

// Requires the output of go generate (asm_dense_dot2_amd64.s and its stub).
func init() {
	denseDot2 = func(x, y []float32) float32 {
		if len(x) != len(y) {
			panic("mismatched length")
		}
		return denseDot2AVX(x, y)
	}
	denseDotRows = func(w, x, out []float32) {
		if len(w) != len(out)*len(x) {
			panic("dimension mismatch")
		}
		denseDotRowsAVX(w, x, out)
	}
}
