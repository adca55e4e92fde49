package genlib

import (
	. "github.com/mmcloughlin/avo/build"
	. "github.com/mmcloughlin/avo/operand"
	. "github.com/mmcloughlin/avo/reg"
)

// lanes is the number of float32 values held by one YMM register.
const lanes = 8

// GenSIMDDot2 emits a dot product of the n float32 values at aPtr and bPtr and
// leaves the result in the low lane of the returned register.
//
// The loop runs in three stages: blocks of unroll YMM registers, single YMM
// registers, then scalars.  Layer widths are usually small, so the middle
// stage keeps widths like 10 or 40 off the scalar path.
//
// n, aPtr and bPtr are clobbered.  On return aPtr and bPtr point just past the
// n values they started at.  Labels are prefixed with prefix so the routine
// can be emitted more than once per function.
func GenSIMDDot2(prefix string, n, aPtr, bPtr Register, unroll int) Register {
	acc := make([]VecVirtual, unroll)
	for i := range acc {
		acc[i] = YMM()
		VXORPS(acc[i], acc[i], acc[i])
	}

	blockitems := lanes * unroll

	Label(prefix + "block")
	CMPQ(n, U32(blockitems))
	JL(LabelRef(prefix + "lane"))

	for i := range acc {
		x := YMM()
		VMOVUPS(Mem{Base: aPtr}.Offset(4*lanes*i), x)
		VFMADD231PS(Mem{Base: bPtr}.Offset(4*lanes*i), x, acc[i])
	}
	ADDQ(U32(4*blockitems), aPtr)
	ADDQ(U32(4*blockitems), bPtr)
	SUBQ(U32(blockitems), n)
	JMP(LabelRef(prefix + "block"))

	Label(prefix + "lane")
	CMPQ(n, U32(lanes))
	JL(LabelRef(prefix + "scalar"))

	x := YMM()
	VMOVUPS(Mem{Base: aPtr}, x)
	VFMADD231PS(Mem{Base: bPtr}, x, acc[0])
	ADDQ(U32(4*lanes), aPtr)
	ADDQ(U32(4*lanes), bPtr)
	SUBQ(U32(lanes), n)
	JMP(LabelRef(prefix + "lane"))

	Label(prefix + "scalar")
	scalarAcc := XMM()
	VXORPS(scalarAcc, scalarAcc, scalarAcc)

	Label(prefix + "scalarloop")
	CMPQ(n, U32(0))
	JE(LabelRef(prefix + "reduce"))

	s := XMM()
	VMOVSS(Mem{Base: aPtr}, s)
	VFMADD231SS(Mem{Base: bPtr}, s, scalarAcc)
	ADDQ(U32(4), aPtr)
	ADDQ(U32(4), bPtr)
	DECQ(n)
	JMP(LabelRef(prefix + "scalarloop"))

	Label(prefix + "reduce")
	for i := 1; i < unroll; i++ {
		VADDPS(acc[0], acc[i], acc[0])
	}
	result := acc[0].AsX()
	high := XMM()
	VEXTRACTF128(U8(1), acc[0], high)
	VADDPS(result, high, result)
	VADDPS(result, scalarAcc, result)
	VHADDPS(result, result, result)
	VHADDPS(result, result, result)

	return result
}

// GenDotRows emits out[i] = dot(row i of w, x) for a row-major matrix w with
// rows rows of cols values each.  This is the back-projection of a delta
// vector through a weight matrix.
//
// rows, wPtr and outPtr are clobbered.  cols and xBase are preserved.
func GenDotRows(rows, cols, wPtr, xBase, outPtr Register, unroll int) {
	Label("rowloop")
	CMPQ(rows, U32(0))
	JE(LabelRef("rowsdone"))

	n := GP64()
	MOVQ(cols, n)
	xPtr := GP64()
	MOVQ(xBase, xPtr)

	// The dot product leaves wPtr at the start of the next row.
	result := GenSIMDDot2("row", n, wPtr, xPtr, unroll)
	VMOVSS(result, Mem{Base: outPtr})

	ADDQ(U32(4), outPtr)
	DECQ(rows)
	JMP(LabelRef("rowloop"))

	Label("rowsdone")
}
