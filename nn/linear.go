package nn

import (
	"fmt"
	"math"

	"github.com/rai-project/go-prune/tensor"
)

// Linear implements a fully connected layer y = x·Wᵀ + b.
// Input: [N, InFeatures]
// Output: [N, OutFeatures]
type Linear struct {
	name        string
	InFeatures  int
	OutFeatures int
	Weight      *tensor.Tensor // [OutFeatures, InFeatures]
	Bias        *tensor.Tensor // [OutFeatures], nil when disabled
}

// NewLinear creates a Linear layer with scaled normal initialization.
func NewLinear(name string, in, out int, bias bool) *Linear {
	l := &Linear{
		name:        name,
		InFeatures:  in,
		OutFeatures: out,
		Weight:      tensor.Randn(1/math.Sqrt(float64(in)), out, in),
	}
	if bias {
		l.Bias = tensor.New(out)
	}
	return l
}

func (l *Linear) Name() string {
	return l.name
}

func (l *Linear) Forward(x *Var) *Var {
	if x.value.NDim() != 2 || x.Dim(1) != l.InFeatures {
		panic(fmt.Sprintf("%s: expected input [N, %d], got %v", l.name, l.InFeatures, x.value.Shape()))
	}
	y := tensor.MatMulT(x.value, l.Weight)
	if l.Bias != nil {
		data := y.Data()
		bias := l.Bias.Data()
		for n := 0; n < y.Dim(0); n++ {
			for o := 0; o < l.OutFeatures; o++ {
				data[n*l.OutFeatures+o] += bias[o]
			}
		}
	}
	out := NewVar(y)
	record(OpLinear, l, Attrs{}, []*Var{x}, out)
	return out
}

// Parameters returns the weight and, if present, the bias.
func (l *Linear) Parameters() []*tensor.Tensor {
	if l.Bias == nil {
		return []*tensor.Tensor{l.Weight}
	}
	return []*tensor.Tensor{l.Weight, l.Bias}
}
