package mnists

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kind is an IDX element type code.
type Kind byte

// Element type codes defined by the IDX format.
const (
	U8  Kind = 0x08
	I8  Kind = 0x09
	I16 Kind = 0x0B
	I32 Kind = 0x0C
	F32 Kind = 0x0D
	F64 Kind = 0x0E
)

// Size returns the element width in bytes, or 0 for an unknown code.
func (k Kind) Size() int {
	switch k {
	case U8, I8:
		return 1
	case I16:
		return 2
	case I32, F32:
		return 4
	case F64:
		return 8
	}
	return 0
}

// String returns the element type name.
func (k Kind) String() string {
	switch k {
	case U8:
		return "uint8"
	case I8:
		return "int8"
	case I16:
		return "int16"
	case I32:
		return "int32"
	case F32:
		return "float32"
	case F64:
		return "float64"
	}
	return fmt.Sprintf("kind(0x%02x)", byte(k))
}

// Tensor is a dense row-major array decoded from an IDX file.
// Multi-byte elements are stored big-endian, as published.
type Tensor struct {
	kind Kind
	dims []int
	data []byte
}

// Kind returns the element type.
func (t *Tensor) Kind() Kind { return t.kind }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.dims) }

// Shape returns a copy of the axis sizes.
func (t *Tensor) Shape() []int {
	dims := make([]int, len(t.dims))
	copy(dims, t.dims)
	return dims
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.dims {
		n *= d
	}
	return n
}

// U8 returns the raw element bytes of a uint8 tensor in row-major order.
// The slice shares the tensor's backing memory. Returns nil for other kinds.
func (t *Tensor) U8() []byte {
	if t.kind != U8 {
		return nil
	}
	return t.data
}

// U8At returns the uint8 element at the given indices, one per axis.
// Panics if the tensor is not uint8 or an index is out of range.
func (t *Tensor) U8At(indices ...int) byte {
	if t.kind != U8 {
		panic("mnists: U8At on " + t.kind.String() + " tensor")
	}
	return t.data[t.offset(indices)]
}

// At returns the element at the given indices converted to float64.
// Panics if an index is out of range.
func (t *Tensor) At(indices ...int) float64 {
	return t.value(t.offset(indices))
}

// Int32s decodes an int32 tensor's payload into a new slice in row-major
// order. Returns nil for other kinds.
func (t *Tensor) Int32s() []int32 {
	if t.kind != I32 {
		return nil
	}
	out := make([]int32, t.Len())
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(t.data[i*4:]))
	}
	return out
}

// Float64s converts the elements of any kind into a new float64 slice in
// row-major order.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = t.value(i)
	}
	return out
}

// Matrix exports the tensor as a gonum dense matrix with one row per entry
// of the first axis and the remaining axes flattened into columns, converted
// to float64. A rank-1 tensor becomes a column vector. Returns nil when any
// axis is zero, since gonum does not allow empty matrices.
func (t *Tensor) Matrix() *mat.Dense {
	rows, cols := 1, 1
	if len(t.dims) > 0 {
		rows = t.dims[0]
		for _, d := range t.dims[1:] {
			cols *= d
		}
	}
	if rows == 0 || cols == 0 {
		return nil
	}
	return mat.NewDense(rows, cols, t.Float64s())
}

// Transpose returns a new tensor with the last two axes swapped. EMNIST
// images are published column-major and need this to match the row-major
// orientation of the other variants. Panics if the rank is below 2.
func (t *Tensor) Transpose() *Tensor {
	r := len(t.dims)
	if r < 2 {
		panic("mnists: transpose requires rank >= 2")
	}
	h, w := t.dims[r-2], t.dims[r-1]
	es := t.kind.Size()
	block := h * w * es
	outer := 1
	for _, d := range t.dims[:r-2] {
		outer *= d
	}
	out := make([]byte, len(t.data))
	for b := 0; b < outer; b++ {
		src := t.data[b*block : (b+1)*block]
		dst := out[b*block : (b+1)*block]
		for i := 0; i < h; i++ {
			for j := 0; j < w; j++ {
				copy(dst[(j*h+i)*es:(j*h+i+1)*es], src[(i*w+j)*es:(i*w+j+1)*es])
			}
		}
	}
	dims := make([]int, r)
	copy(dims, t.dims)
	dims[r-2], dims[r-1] = dims[r-1], dims[r-2]
	return &Tensor{kind: t.kind, dims: dims, data: out}
}

// offset converts per-axis indices into a flat element index.
func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.dims) {
		panic(fmt.Sprintf("mnists: %d indices for rank-%d tensor", len(indices), len(t.dims)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.dims[i] {
			panic(fmt.Sprintf("mnists: index %d out of range [0,%d) on axis %d", idx, t.dims[i], i))
		}
		off = off*t.dims[i] + idx
	}
	return off
}

// value returns the element at flat index i converted to float64.
func (t *Tensor) value(i int) float64 {
	switch t.kind {
	case U8:
		return float64(t.data[i])
	case I8:
		return float64(int8(t.data[i]))
	case I16:
		return float64(int16(binary.BigEndian.Uint16(t.data[i*2:])))
	case I32:
		return float64(int32(binary.BigEndian.Uint32(t.data[i*4:])))
	case F32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(t.data[i*4:])))
	case F64:
		return math.Float64frombits(binary.BigEndian.Uint64(t.data[i*8:]))
	}
	panic("mnists: unknown element kind")
}
