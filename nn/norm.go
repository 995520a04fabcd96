package nn

import (
	"fmt"
	"math"

	"github.com/rai-project/go-prune/tensor"
)

// BatchNorm normalizes every channel (dim 1) with running statistics.
// Input: [N, Features, ...]
// Output: same as input
type BatchNorm struct {
	name        string
	Features    int
	Eps         float64
	Weight      *tensor.Tensor
	Bias        *tensor.Tensor
	RunningMean *tensor.Tensor
	RunningVar  *tensor.Tensor
}

// NewBatchNorm creates a BatchNorm with identity statistics.
func NewBatchNorm(name string, features int) *BatchNorm {
	return &BatchNorm{
		name:        name,
		Features:    features,
		Eps:         1e-5,
		Weight:      tensor.Ones(features),
		Bias:        tensor.New(features),
		RunningMean: tensor.New(features),
		RunningVar:  tensor.Ones(features),
	}
}

func (b *BatchNorm) Name() string {
	return b.name
}

func (b *BatchNorm) Forward(x *Var) *Var {
	in := x.value
	if in.NDim() < 2 || in.Dim(1) != b.Features {
		panic(fmt.Sprintf("%s: expected input [N, %d, ...], got %v", b.name, b.Features, in.Shape()))
	}
	inner := in.Numel() / (in.Dim(0) * b.Features)
	y := tensor.New(in.Dims()...)
	src, dst := in.Data(), y.Data()
	w, bias := b.Weight.Data(), b.Bias.Data()
	mean, variance := b.RunningMean.Data(), b.RunningVar.Data()
	for n := 0; n < in.Dim(0); n++ {
		for c := 0; c < b.Features; c++ {
			scale := w[c] / math.Sqrt(variance[c]+b.Eps)
			off := (n*b.Features + c) * inner
			for i := 0; i < inner; i++ {
				dst[off+i] = (src[off+i]-mean[c])*scale + bias[c]
			}
		}
	}
	out := NewVar(y)
	record(OpBatchNorm, b, Attrs{}, []*Var{x}, out)
	return out
}

// Parameters returns the affine parameters and running statistics.
func (b *BatchNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{b.Weight, b.Bias, b.RunningMean, b.RunningVar}
}

// LayerNorm normalizes every row of a [N, Features] input.
type LayerNorm struct {
	name     string
	Features int
	Eps      float64
	Weight   *tensor.Tensor
	Bias     *tensor.Tensor
}

// NewLayerNorm creates a LayerNorm with unit scale.
func NewLayerNorm(name string, features int) *LayerNorm {
	return &LayerNorm{
		name:     name,
		Features: features,
		Eps:      1e-5,
		Weight:   tensor.Ones(features),
		Bias:     tensor.New(features),
	}
}

func (l *LayerNorm) Name() string {
	return l.name
}

func (l *LayerNorm) Forward(x *Var) *Var {
	in := x.value
	if in.NDim() != 2 || in.Dim(1) != l.Features {
		panic(fmt.Sprintf("%s: expected input [N, %d], got %v", l.name, l.Features, in.Shape()))
	}
	y := tensor.New(in.Dims()...)
	src, dst := in.Data(), y.Data()
	w, bias := l.Weight.Data(), l.Bias.Data()
	f := l.Features
	for n := 0; n < in.Dim(0); n++ {
		row := src[n*f : (n+1)*f]
		mean := 0.0
		for _, v := range row {
			mean += v
		}
		mean /= float64(f)
		variance := 0.0
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(f)
		std := math.Sqrt(variance + l.Eps)
		for i, v := range row {
			dst[n*f+i] = (v-mean)/std*w[i] + bias[i]
		}
	}
	out := NewVar(y)
	record(OpLayerNorm, l, Attrs{}, []*Var{x}, out)
	return out
}

// Parameters returns the scale and shift.
func (l *LayerNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.Weight, l.Bias}
}
