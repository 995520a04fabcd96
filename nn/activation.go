package nn

import (
	"fmt"
	"math"

	"github.com/rai-project/go-prune/tensor"
)

var activations = map[OpType]func(float64) float64{
	OpReLU: func(v float64) float64 {
		return math.Max(v, 0)
	},
	OpSigmoid: func(v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	},
	OpTanh: math.Tanh,
	OpGELU: func(v float64) float64 {
		return 0.5 * v * (1 + math.Erf(v/math.Sqrt2))
	},
}

// Activation applies a channel-preserving nonlinearity.
type Activation struct {
	name string
	Fn   OpType
}

// NewActivation creates an activation of the given type (relu, sigmoid, tanh,
// gelu or softmax).
func NewActivation(name string, fn OpType) *Activation {
	if _, ok := activations[fn]; !ok && fn != OpSoftmax {
		panic(fmt.Sprintf("%s: unknown activation %q", name, fn))
	}
	return &Activation{name: name, Fn: fn}
}

// NewReLU creates a ReLU activation.
func NewReLU(name string) *Activation {
	return NewActivation(name, OpReLU)
}

func (a *Activation) Name() string {
	return a.name
}

func (a *Activation) Forward(x *Var) *Var {
	var y *tensor.Tensor
	if a.Fn == OpSoftmax {
		y = softmax(x.value)
	} else {
		y = x.value.Map(activations[a.Fn])
	}
	out := NewVar(y)
	record(a.Fn, a, Attrs{}, []*Var{x}, out)
	return out
}

// softmax normalizes over dim 1.
func softmax(in *tensor.Tensor) *tensor.Tensor {
	y := tensor.New(in.Dims()...)
	if in.NDim() < 2 {
		panic(fmt.Sprintf("softmax requires at least 2 dimensions, got %v", in.Shape()))
	}
	c := in.Dim(1)
	inner := in.Numel() / (in.Dim(0) * c)
	src, dst := in.Data(), y.Data()
	for n := 0; n < in.Dim(0); n++ {
		for i := 0; i < inner; i++ {
			base := n*c*inner + i
			max := math.Inf(-1)
			for ch := 0; ch < c; ch++ {
				max = math.Max(max, src[base+ch*inner])
			}
			sum := 0.0
			for ch := 0; ch < c; ch++ {
				e := math.Exp(src[base+ch*inner] - max)
				dst[base+ch*inner] = e
				sum += e
			}
			for ch := 0; ch < c; ch++ {
				dst[base+ch*inner] /= sum
			}
		}
	}
	return y
}

// PoolKind selects the pooling reduction.
type PoolKind string

const (
	MaxPool PoolKind = "max"
	AvgPool PoolKind = "avg"
)

// Pool2d reduces spatial windows of a [N, C, H, W] input. Global pools reduce the
// whole plane to 1x1.
type Pool2d struct {
	name   string
	Kind   PoolKind
	Kernel int
	Stride int
	Global bool
}

// NewPool2d creates a windowed pool.
func NewPool2d(name string, kind PoolKind, kernel, stride int) *Pool2d {
	return &Pool2d{name: name, Kind: kind, Kernel: kernel, Stride: stride}
}

// NewGlobalPool creates a pool over the whole spatial plane.
func NewGlobalPool(name string, kind PoolKind) *Pool2d {
	return &Pool2d{name: name, Kind: kind, Global: true}
}

func (p *Pool2d) Name() string {
	return p.name
}

func (p *Pool2d) Forward(x *Var) *Var {
	in := x.value
	if in.NDim() != 4 {
		panic(fmt.Sprintf("%s: expected input [N, C, H, W], got %v", p.name, in.Shape()))
	}
	n, c, h, w := in.Dim(0), in.Dim(1), in.Dim(2), in.Dim(3)
	kh, kw, stride := p.Kernel, p.Kernel, p.Stride
	if p.Global {
		kh, kw, stride = h, w, 1
	}
	oh, ow := (h-kh)/stride+1, (w-kw)/stride+1
	y := tensor.New(n, c, oh, ow)
	src, dst := in.Data(), y.Data()
	for b := 0; b < n*c; b++ {
		plane := src[b*h*w : (b+1)*h*w]
		for i := 0; i < oh; i++ {
			for j := 0; j < ow; j++ {
				acc := 0.0
				if p.Kind == MaxPool {
					acc = math.Inf(-1)
				}
				for ki := 0; ki < kh; ki++ {
					for kj := 0; kj < kw; kj++ {
						v := plane[(i*stride+ki)*w+j*stride+kj]
						if p.Kind == MaxPool {
							acc = math.Max(acc, v)
						} else {
							acc += v
						}
					}
				}
				if p.Kind == AvgPool {
					acc /= float64(kh * kw)
				}
				dst[(b*oh+i)*ow+j] = acc
			}
		}
	}
	out := NewVar(y)
	record(OpPool, p, Attrs{}, []*Var{x}, out)
	return out
}

// Flatten collapses every dimension after the batch dimension.
type Flatten struct {
	name string
}

// NewFlatten creates a Flatten module.
func NewFlatten(name string) *Flatten {
	return &Flatten{name: name}
}

func (f *Flatten) Name() string {
	return f.name
}

func (f *Flatten) Forward(x *Var) *Var {
	out := NewVar(flatten(x.value))
	record(OpFlatten, f, Attrs{Dim: 1}, []*Var{x}, out)
	return out
}

func flatten(t *tensor.Tensor) *tensor.Tensor {
	return t.Reshape(t.Dim(0), t.Numel()/t.Dim(0))
}

// Dropout is the identity at inference time.
type Dropout struct {
	name string
	P    float64
}

// NewDropout creates a Dropout module.
func NewDropout(name string, p float64) *Dropout {
	return &Dropout{name: name, P: p}
}

func (d *Dropout) Name() string {
	return d.name
}

func (d *Dropout) Forward(x *Var) *Var {
	out := NewVar(x.value.Clone())
	record(OpDropout, d, Attrs{}, []*Var{x}, out)
	return out
}

// Identity returns its input unchanged.
type Identity struct {
	name string
}

// NewIdentity creates an Identity module.
func NewIdentity(name string) *Identity {
	return &Identity{name: name}
}

func (i *Identity) Name() string {
	return i.name
}

func (i *Identity) Forward(x *Var) *Var {
	out := NewVar(x.value)
	record(OpIdentity, i, Attrs{}, []*Var{x}, out)
	return out
}
