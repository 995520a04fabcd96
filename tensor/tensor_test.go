package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := NewShape(2, 3, 4)
	assert.Equal(t, 3, s.NDim())
	assert.Equal(t, 24, s.Numel())
	assert.Equal(t, []int{2, 3, 4}, s.Dims())
	// Row-major: [12, 4, 1]
	assert.Equal(t, []int{12, 4, 1}, s.Strides())
	assert.True(t, s.Equal(NewShape(2, 3, 4)))
	assert.False(t, s.Equal(NewShape(2, 3)))
	assert.Panics(t, func() { NewShape(2, -1) })
}

func TestTensorFromSlice(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}
	x := FromSlice(data, 2, 3)
	assert.Equal(t, 1.0, x.At(0, 0))
	assert.Equal(t, 6.0, x.At(1, 2))

	data[0] = 42
	assert.Equal(t, 1.0, x.At(0, 0), "FromSlice must copy")
	assert.Panics(t, func() { FromSlice(data, 4, 2) })
}

func TestReshapeSharesData(t *testing.T) {
	x := Arange(2, 3)
	y := x.Reshape(3, 2)
	y.Set(-1, 0, 0)
	assert.Equal(t, -1.0, x.At(0, 0))
	assert.Panics(t, func() { x.Reshape(4) })
}

func TestIndexSelectAndDrop(t *testing.T) {
	x := Arange(2, 3)

	rows := x.IndexSelect(0, []int{1})
	assert.Equal(t, []int{1, 3}, rows.Dims())
	assert.Equal(t, []float64{3, 4, 5}, rows.Data())

	cols := x.Drop(1, []int{1})
	assert.Equal(t, []int{2, 2}, cols.Dims())
	assert.Equal(t, []float64{0, 2, 3, 5}, cols.Data())

	dup := x.Drop(1, []int{0, 0, 2})
	assert.Equal(t, []float64{1, 4}, dup.Data())

	assert.Panics(t, func() { x.Drop(1, []int{3}) })
}

func TestDropMiddleDim(t *testing.T) {
	x := Arange(2, 3, 2)
	y := x.Drop(1, []int{0, 2})
	require.Equal(t, []int{2, 1, 2}, y.Dims())
	assert.Equal(t, []float64{2, 3, 8, 9}, y.Data())
}

func TestNarrowAndConcat(t *testing.T) {
	x := Arange(2, 4)
	a := x.Narrow(1, 0, 1)
	b := x.Narrow(1, 1, 3)
	assert.Equal(t, []float64{0, 4}, a.Data())

	joined := Concat(1, a, b)
	assert.Equal(t, x.Dims(), joined.Dims())
	assert.Equal(t, x.Data(), joined.Data())

	assert.Panics(t, func() { Concat(1, a, New(3, 1)) })
}

func TestArithmetic(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3}, 3)
	b := FromSlice([]float64{4, 5, 6}, 3)

	assert.Equal(t, []float64{5, 7, 9}, a.Add(b).Data())
	assert.Equal(t, []float64{4, 10, 18}, a.Mul(b).Data())
	assert.Equal(t, []float64{2, 4, 6}, a.Scale(2).Data())
	assert.Equal(t, 6.0, a.Sum())

	a.AddInPlace(b)
	assert.Equal(t, []float64{5, 7, 9}, a.Data())
	assert.Panics(t, func() { a.Add(New(2)) })
}

func TestNormsAndArgsort(t *testing.T) {
	x := Arange(2, 3)
	assert.Equal(t, []float64{3, 12}, x.Norms(0, 1))
	assert.Equal(t, []int{1, 2, 0}, Argsort([]float64{3, 1, 2}))
}

func TestMatMulT(t *testing.T) {
	x := FromSlice([]float64{1, 2}, 1, 2)
	w := FromSlice([]float64{1, 0, 0, 1, 1, 1}, 3, 2)
	y := MatMulT(x, w)
	assert.Equal(t, []int{1, 3}, y.Dims())
	assert.Equal(t, []float64{1, 2, 3}, y.Data())

	empty := MatMulT(New(2, 0), New(3, 0))
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, empty.Data())

	assert.Panics(t, func() { MatMulT(x, New(3, 3)) })
}
