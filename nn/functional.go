package nn

import (
	"fmt"

	"github.com/rai-project/go-prune/tensor"
)

// Add returns a + b.
func Add(a, b *Var) *Var {
	out := NewVar(a.value.Add(b.value))
	record(OpAdd, nil, Attrs{}, []*Var{a, b}, out)
	return out
}

// AddInPlace accumulates b into a and returns a. The returned Var is the same
// object as a; its producer becomes the add.
func AddInPlace(a, b *Var) *Var {
	a.value.AddInPlace(b.value)
	record(OpAdd, nil, Attrs{}, []*Var{a, b}, a)
	return a
}

// Mul returns the element-wise product of a and b.
func Mul(a, b *Var) *Var {
	out := NewVar(a.value.Mul(b.value))
	record(OpMul, nil, Attrs{}, []*Var{a, b}, out)
	return out
}

// ReLU applies max(x, 0).
func ReLU(x *Var) *Var {
	out := NewVar(x.value.Map(activations[OpReLU]))
	record(OpReLU, nil, Attrs{}, []*Var{x}, out)
	return out
}

// Concat joins xs along dim.
func Concat(dim int, xs ...*Var) *Var {
	ts := make([]*tensor.Tensor, len(xs))
	for i, x := range xs {
		ts[i] = x.value
	}
	out := NewVar(tensor.Concat(dim, ts...))
	record(OpConcat, nil, Attrs{Dim: dim}, xs, out)
	return out
}

// Split cuts x along dim into consecutive pieces of the given sizes.
func Split(x *Var, dim int, sizes ...int) []*Var {
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != x.Dim(dim) {
		panic(fmt.Sprintf("split sizes %v do not add up to %d", sizes, x.Dim(dim)))
	}
	outs := make([]*Var, len(sizes))
	offset := 0
	for i, s := range sizes {
		outs[i] = NewVar(x.value.Narrow(dim, offset, s))
		offset += s
	}
	record(OpSplit, nil, Attrs{Dim: dim, Sizes: append([]int(nil), sizes...)}, []*Var{x}, outs...)
	return outs
}

// Chunk splits x along dim into n equal pieces.
func Chunk(x *Var, dim, n int) []*Var {
	if x.Dim(dim)%n != 0 {
		panic(fmt.Sprintf("cannot chunk dim of size %d into %d pieces", x.Dim(dim), n))
	}
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = x.Dim(dim) / n
	}
	return Split(x, dim, sizes...)
}

// Reshape returns x viewed with new dimensions. One dimension may be -1 and is
// inferred.
func Reshape(x *Var, dims ...int) *Var {
	out := NewVar(x.value.Reshape(inferDims(x.value.Numel(), dims)...))
	record(OpReshape, nil, Attrs{Sizes: append([]int(nil), dims...)}, []*Var{x}, out)
	return out
}

// FlattenVar collapses every dimension after the batch dimension.
func FlattenVar(x *Var) *Var {
	out := NewVar(flatten(x.value))
	record(OpFlatten, nil, Attrs{Dim: 1}, []*Var{x}, out)
	return out
}

func inferDims(numel int, dims []int) []int {
	out := append([]int(nil), dims...)
	known, infer := 1, -1
	for i, d := range out {
		if d == -1 {
			if infer >= 0 {
				panic(fmt.Sprintf("only one dimension can be inferred in %v", dims))
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || numel%known != 0 {
			panic(fmt.Sprintf("cannot infer dimension of %v for %d elements", dims, numel))
		}
		out[infer] = numel / known
	}
	return out
}

// Custom applies fn to x and records it as an op of type typ. Op types the
// pruner has no rule for make propagation through them fail.
func Custom(typ OpType, x *Var, fn func(*tensor.Tensor) *tensor.Tensor) *Var {
	out := NewVar(fn(x.value))
	record(typ, nil, Attrs{}, []*Var{x}, out)
	return out
}
