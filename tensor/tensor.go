// Package tensor provides the dense parameter storage used by the nn layers.
package tensor

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense row-major float64 array.
type Tensor struct {
	data  []float64
	shape Shape
}

// New creates a zero-filled tensor.
func New(dims ...int) *Tensor {
	shape := NewShape(dims...)
	return &Tensor{
		data:  make([]float64, shape.Numel()),
		shape: shape,
	}
}

// Ones creates a ones-filled tensor.
func Ones(dims ...int) *Tensor {
	t := New(dims...)
	for i := range t.data {
		t.data[i] = 1
	}
	return t
}

// FromSlice creates a tensor from a copy of data.
func FromSlice(data []float64, dims ...int) *Tensor {
	shape := NewShape(dims...)
	if len(data) != shape.Numel() {
		panic(fmt.Sprintf("data length %d != shape numel %d", len(data), shape.Numel()))
	}
	d := make([]float64, len(data))
	copy(d, data)
	return &Tensor{data: d, shape: shape}
}

// Randn creates a tensor with normal values scaled by std.
func Randn(std float64, dims ...int) *Tensor {
	t := New(dims...)
	for i := range t.data {
		t.data[i] = rand.NormFloat64() * std
	}
	return t
}

// Arange creates a tensor holding 0, 1, 2, ... in row-major order.
func Arange(dims ...int) *Tensor {
	t := New(dims...)
	for i := range t.data {
		t.data[i] = float64(i)
	}
	return t
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Dims returns a copy of the dimensions.
func (t *Tensor) Dims() []int {
	return t.shape.Dims()
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape.At(i)
}

// NDim returns the number of dimensions.
func (t *Tensor) NDim() int {
	return t.shape.NDim()
}

// Numel returns the number of elements.
func (t *Tensor) Numel() int {
	return len(t.data)
}

// Data returns the backing slice (use with caution).
func (t *Tensor) Data() []float64 {
	return t.data
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != t.shape.NDim() {
		panic(fmt.Sprintf("expected %d indices, got %d", t.shape.NDim(), len(indices)))
	}
	idx := 0
	strides := t.shape.Strides()
	for i, index := range indices {
		if index < 0 || index >= t.shape.At(i) {
			panic(fmt.Sprintf("index %d out of bounds for dim %d with size %d", index, i, t.shape.At(i)))
		}
		idx += index * strides[i]
	}
	return idx
}

// At returns the value at the given indices.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.offset(indices)]
}

// Set sets the value at the given indices.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.offset(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return FromSlice(t.data, t.shape.dims...)
}

// Reshape returns a view with a new shape sharing the same data.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape := NewShape(dims...)
	if shape.Numel() != t.shape.Numel() {
		panic(fmt.Sprintf("cannot reshape %v to %v: different numel", t.shape, shape))
	}
	return &Tensor{data: t.data, shape: shape}
}

// split returns the outer count, dimension size and inner block size around dim.
func (t *Tensor) split(dim int) (outer, size, inner int) {
	if dim < 0 || dim >= t.shape.NDim() {
		panic(fmt.Sprintf("dim %d out of range for shape %v", dim, t.shape))
	}
	outer, inner = 1, 1
	for i, d := range t.shape.dims {
		switch {
		case i < dim:
			outer *= d
		case i > dim:
			inner *= d
		}
	}
	return outer, t.shape.dims[dim], inner
}

// IndexSelect returns a new tensor keeping only the listed positions along dim,
// in the order given.
func (t *Tensor) IndexSelect(dim int, keep []int) *Tensor {
	outer, size, inner := t.split(dim)
	dims := t.shape.Dims()
	dims[dim] = len(keep)
	out := New(dims...)
	for o := 0; o < outer; o++ {
		for j, k := range keep {
			if k < 0 || k >= size {
				panic(fmt.Sprintf("index %d out of bounds for dim %d with size %d", k, dim, size))
			}
			src := t.data[(o*size+k)*inner : (o*size+k+1)*inner]
			copy(out.data[(o*len(keep)+j)*inner:], src)
		}
	}
	return out
}

// Drop returns a new tensor with the listed positions removed along dim.
// Duplicate indices are ignored.
func (t *Tensor) Drop(dim int, idxs []int) *Tensor {
	size := t.Dim(dim)
	removed := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		if i < 0 || i >= size {
			panic(fmt.Sprintf("index %d out of bounds for dim %d with size %d", i, dim, size))
		}
		removed[i] = true
	}
	keep := make([]int, 0, size-len(removed))
	for i := 0; i < size; i++ {
		if !removed[i] {
			keep = append(keep, i)
		}
	}
	return t.IndexSelect(dim, keep)
}

// Narrow returns a copy of positions [start, start+length) along dim.
func (t *Tensor) Narrow(dim, start, length int) *Tensor {
	keep := make([]int, length)
	for i := range keep {
		keep[i] = start + i
	}
	return t.IndexSelect(dim, keep)
}

// Concat joins tensors along dim. All other dimensions must agree.
func Concat(dim int, ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("concat requires at least one tensor")
	}
	dims := ts[0].shape.Dims()
	total := 0
	for _, t := range ts {
		if t.NDim() != len(dims) {
			panic(fmt.Sprintf("concat rank mismatch: %v vs %v", ts[0].shape, t.shape))
		}
		for i, d := range t.shape.dims {
			if i != dim && d != dims[i] {
				panic(fmt.Sprintf("concat shape mismatch: %v vs %v", ts[0].shape, t.shape))
			}
		}
		total += t.Dim(dim)
	}
	dims[dim] = total
	out := New(dims...)
	outer, _, inner := out.split(dim)
	pos := 0
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			n := t.Dim(dim) * inner
			copy(out.data[pos:pos+n], t.data[o*n:(o+1)*n])
			pos += n
		}
	}
	return out
}

// Add performs element-wise addition.
func (t *Tensor) Add(other *Tensor) *Tensor {
	out := t.Clone()
	out.AddInPlace(other)
	return out
}

// AddInPlace adds other into t.
func (t *Tensor) AddInPlace(other *Tensor) {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", t.shape, other.shape))
	}
	floats.Add(t.data, other.data)
}

// Mul performs element-wise multiplication.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", t.shape, other.shape))
	}
	out := t.Clone()
	floats.Mul(out.data, other.data)
	return out
}

// Scale multiplies by a scalar.
func (t *Tensor) Scale(s float64) *Tensor {
	out := t.Clone()
	floats.Scale(s, out.data)
	return out
}

// Map applies f element-wise.
func (t *Tensor) Map(f func(float64) float64) *Tensor {
	out := New(t.shape.dims...)
	for i, v := range t.data {
		out.data[i] = f(v)
	}
	return out
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// Norms returns the Lp norm of every slice along dim.
func (t *Tensor) Norms(dim int, p float64) []float64 {
	size := t.Dim(dim)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = floats.Norm(t.Narrow(dim, i, 1).data, p)
	}
	return out
}

// Argsort returns the indices that sort values ascending.
func Argsort(values []float64) []int {
	idxs := make([]int, len(values))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		return values[idxs[a]] < values[idxs[b]]
	})
	return idxs
}

// MatMulT computes x·wᵀ for x of shape [n, k] and w of shape [m, k].
func MatMulT(x, w *Tensor) *Tensor {
	if x.NDim() != 2 || w.NDim() != 2 || x.Dim(1) != w.Dim(1) {
		panic(fmt.Sprintf("matmul shape mismatch: %v x %vᵀ", x.shape, w.shape))
	}
	n, m := x.Dim(0), w.Dim(0)
	out := New(n, m)
	if n == 0 || m == 0 || x.Dim(1) == 0 {
		return out
	}
	a := mat.NewDense(n, x.Dim(1), x.data)
	b := mat.NewDense(m, w.Dim(1), w.data)
	c := mat.NewDense(n, m, out.data)
	c.Mul(a, b.T())
	return out
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}
