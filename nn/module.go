// Package nn is a small module framework whose forward passes can be recorded on a
// Tape. It is the host framework the prune package operates on.
package nn

import (
	"github.com/rai-project/go-prune/tensor"
)

// Module is a network component.
type Module interface {
	// Name returns the module's name; it is used as the node name in traces.
	Name() string
	// Forward runs the module on x.
	Forward(x *Var) *Var
}

// Container is implemented by modules that hold other modules.
type Container interface {
	Children() []Module
}

// Parametric is implemented by modules that own parameter tensors.
type Parametric interface {
	Parameters() []*tensor.Tensor
}

// Walk visits m and all its descendants depth-first.
func Walk(m Module, fn func(Module)) {
	fn(m)
	if c, ok := m.(Container); ok {
		for _, child := range c.Children() {
			Walk(child, fn)
		}
	}
}

// Parameters returns every parameter tensor owned by m or its descendants.
func Parameters(m Module) []*tensor.Tensor {
	var params []*tensor.Tensor
	Walk(m, func(mod Module) {
		if p, ok := mod.(Parametric); ok {
			params = append(params, p.Parameters()...)
		}
	})
	return params
}

// NumParams counts the parameters of m and its descendants.
func NumParams(m Module) int {
	n := 0
	for _, p := range Parameters(m) {
		n += p.Numel()
	}
	return n
}

// Find returns the first module named name under m.
func Find(m Module, name string) Module {
	var found Module
	Walk(m, func(mod Module) {
		if found == nil && mod.Name() == name {
			found = mod
		}
	})
	return found
}

// Sequential runs its layers one after the other.
type Sequential struct {
	name   string
	Layers []Module
}

// NewSequential creates a Sequential container.
func NewSequential(name string, layers ...Module) *Sequential {
	return &Sequential{name: name, Layers: layers}
}

func (s *Sequential) Name() string {
	return s.name
}

func (s *Sequential) Forward(x *Var) *Var {
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}

func (s *Sequential) Children() []Module {
	return s.Layers
}

// Func adapts a forward function and its submodules into a Module. It is how
// networks with branches are written.
type Func struct {
	name     string
	children []Module
	fn       func(x *Var) *Var
}

// NewFunc creates a Func module.
func NewFunc(name string, fn func(x *Var) *Var, children ...Module) *Func {
	return &Func{name: name, fn: fn, children: children}
}

func (f *Func) Name() string {
	return f.name
}

func (f *Func) Forward(x *Var) *Var {
	return f.fn(x)
}

func (f *Func) Children() []Module {
	return f.children
}
