package nn

import (
	"fmt"
	"math"

	"github.com/rai-project/go-prune/tensor"
)

// Conv2d implements a 2D convolution with optional channel groups.
// Input: [N, InChannels, H, W]
// Output: [N, OutChannels, H', W']
type Conv2d struct {
	name        string
	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Padding     int
	Groups      int
	Weight      *tensor.Tensor // [OutChannels, InChannels/Groups, Kernel, Kernel]
	Bias        *tensor.Tensor // [OutChannels], nil when disabled
}

// ConvOption configures a Conv2d.
type ConvOption func(*Conv2d)

// Stride sets the convolution stride.
func Stride(s int) ConvOption {
	return func(c *Conv2d) {
		c.Stride = s
	}
}

// Padding sets the zero padding on each spatial border.
func Padding(p int) ConvOption {
	return func(c *Conv2d) {
		c.Padding = p
	}
}

// Groups sets the number of channel groups.
func Groups(g int) ConvOption {
	return func(c *Conv2d) {
		c.Groups = g
	}
}

// NoBias disables the bias term.
func NoBias() ConvOption {
	return func(c *Conv2d) {
		c.Bias = nil
	}
}

// NewConv2d creates a convolution. It panics when the channel counts are not
// divisible by the group count.
func NewConv2d(name string, in, out, kernel int, opts ...ConvOption) *Conv2d {
	c := &Conv2d{
		name:        name,
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Stride:      1,
		Groups:      1,
		Bias:        tensor.New(out),
	}
	for _, o := range opts {
		o(c)
	}
	if c.Groups < 1 || in%c.Groups != 0 || out%c.Groups != 0 {
		panic(fmt.Sprintf("%s: channels %d/%d not divisible by groups %d", name, in, out, c.Groups))
	}
	fanIn := in / c.Groups * kernel * kernel
	c.Weight = tensor.Randn(1/math.Sqrt(float64(fanIn)), out, in/c.Groups, kernel, kernel)
	return c
}

func (c *Conv2d) Name() string {
	return c.name
}

// Depthwise reports whether every channel is its own group.
func (c *Conv2d) Depthwise() bool {
	return c.Groups > 1 && c.Groups == c.InChannels && c.Groups == c.OutChannels
}

func (c *Conv2d) Forward(x *Var) *Var {
	in := x.value
	if in.NDim() != 4 || in.Dim(1) != c.InChannels {
		panic(fmt.Sprintf("%s: expected input [N, %d, H, W], got %v", c.name, c.InChannels, in.Shape()))
	}
	n, h, w := in.Dim(0), in.Dim(2), in.Dim(3)
	oh := (h+2*c.Padding-c.Kernel)/c.Stride + 1
	ow := (w+2*c.Padding-c.Kernel)/c.Stride + 1
	y := tensor.New(n, c.OutChannels, oh, ow)

	inPerGroup := c.InChannels / c.Groups
	outPerGroup := c.OutChannels / c.Groups
	src, dst, wt := in.Data(), y.Data(), c.Weight.Data()
	k := c.Kernel
	for b := 0; b < n; b++ {
		for o := 0; o < c.OutChannels; o++ {
			g := o / outPerGroup
			bias := 0.0
			if c.Bias != nil {
				bias = c.Bias.Data()[o]
			}
			for i := 0; i < oh; i++ {
				for j := 0; j < ow; j++ {
					sum := bias
					for ci := 0; ci < inPerGroup; ci++ {
						ch := g*inPerGroup + ci
						for ki := 0; ki < k; ki++ {
							y0 := i*c.Stride + ki - c.Padding
							if y0 < 0 || y0 >= h {
								continue
							}
							for kj := 0; kj < k; kj++ {
								x0 := j*c.Stride + kj - c.Padding
								if x0 < 0 || x0 >= w {
									continue
								}
								sum += src[((b*c.InChannels+ch)*h+y0)*w+x0] *
									wt[((o*inPerGroup+ci)*k+ki)*k+kj]
							}
						}
					}
					dst[((b*c.OutChannels+o)*oh+i)*ow+j] = sum
				}
			}
		}
	}
	out := NewVar(y)
	record(OpConv2d, c, Attrs{}, []*Var{x}, out)
	return out
}

// Parameters returns the weight and, if present, the bias.
func (c *Conv2d) Parameters() []*tensor.Tensor {
	if c.Bias == nil {
		return []*tensor.Tensor{c.Weight}
	}
	return []*tensor.Tensor{c.Weight, c.Bias}
}
