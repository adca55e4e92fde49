// Command dense-dot2 generates the AVX2/FMA kernels used by the toolbox
// package when it is built with the avx tag: a plain dot product and the
// row-by-row back-projection used by the backward pass.
//
//	go generate ./toolbox/
package main

import (
	"flag"

	"github.com/ahmedtd/neurobiba/toolbox/asm-generators/genlib"
	. "github.com/mmcloughlin/avo/build"
)

var unroll = flag.Int("unroll", 4, "Number of YMM accumulators in the main loop")

func main() {
	flag.Parse()

	ConstraintExpr("amd64,avx")

	TEXT("denseDot2AVX", NOSPLIT, "func(x []float32, y []float32) float32")
	Doc("denseDot2AVX returns the dot product of x and y.  len(y) must be at least len(x).")
	{
		n := Load(Param("x").Len(), GP64())
		xPtr := Load(Param("x").Base(), GP64())
		yPtr := Load(Param("y").Base(), GP64())

		result := genlib.GenSIMDDot2("dot", n, xPtr, yPtr, *unroll)
		Store(result, ReturnIndex(0))

		VZEROUPPER()
		RET()
	}

	TEXT("denseDotRowsAVX", NOSPLIT, "func(w []float32, x []float32, out []float32)")
	Doc(
		"denseDotRowsAVX sets out[i] to the dot product of x with row i of the",
		"row-major matrix w.  w must hold len(out) rows of len(x) values.",
	)
	{
		cols := Load(Param("x").Len(), GP64())
		xBase := Load(Param("x").Base(), GP64())
		rows := Load(Param("out").Len(), GP64())
		wPtr := Load(Param("w").Base(), GP64())
		outPtr := Load(Param("out").Base(), GP64())

		genlib.GenDotRows(rows, cols, wPtr, xBase, outPtr, *unroll)

		VZEROUPPER()
		RET()
	}

	Generate()
}
