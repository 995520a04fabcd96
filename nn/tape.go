package nn

import (
	"fmt"

	"github.com/rai-project/go-prune/tensor"
)

// OpType names a recorded computation.
type OpType string

const (
	OpLinear    OpType = "linear"
	OpConv2d    OpType = "conv2d"
	OpBatchNorm OpType = "batch_norm"
	OpLayerNorm OpType = "layer_norm"
	OpReLU      OpType = "relu"
	OpSigmoid   OpType = "sigmoid"
	OpTanh      OpType = "tanh"
	OpGELU      OpType = "gelu"
	OpSoftmax   OpType = "softmax"
	OpPool      OpType = "pool"
	OpDropout   OpType = "dropout"
	OpIdentity  OpType = "identity"
	OpFlatten   OpType = "flatten"
	OpReshape   OpType = "reshape"
	OpAdd       OpType = "add"
	OpMul       OpType = "mul"
	OpConcat    OpType = "concat"
	OpSplit     OpType = "split"
)

// Origin tells where a Var came from.
type Origin int

const (
	// OriginNone marks a value created outside any recorded op.
	OriginNone Origin = iota
	// OriginInput marks the traced network input.
	OriginInput
	// OriginConst marks a declared constant.
	OriginConst
	// OriginOp marks the output of a recorded op.
	OriginOp
)

func (o Origin) String() string {
	switch o {
	case OriginInput:
		return "input"
	case OriginConst:
		return "const"
	case OriginOp:
		return "op"
	default:
		return "none"
	}
}

// Var is a tensor flowing through a forward pass. Vars are compared by identity.
type Var struct {
	value  *tensor.Tensor
	tape   *Tape
	origin Origin
	op     *Op
	port   int
}

// NewVar wraps a tensor without attributing it to anything.
func NewVar(t *tensor.Tensor) *Var {
	return &Var{value: t}
}

// Const wraps a tensor that is a constant of the computation.
func Const(t *tensor.Tensor) *Var {
	return &Var{value: t, origin: OriginConst}
}

// Value returns the underlying tensor.
func (v *Var) Value() *tensor.Tensor {
	return v.value
}

// Shape returns a copy of the value's dimensions.
func (v *Var) Shape() []int {
	return v.value.Dims()
}

// Dim returns the size of dimension i.
func (v *Var) Dim(i int) int {
	return v.value.Dim(i)
}

// Origin reports where the var came from.
func (v *Var) Origin() Origin {
	return v.origin
}

// Producer returns the op that last wrote the var and its output port.
func (v *Var) Producer() (*Op, int) {
	return v.op, v.port
}

// Ref is a snapshot of a Var's producer at the time it was consumed.
type Ref struct {
	Op     *Op
	Port   int
	Origin Origin
}

// Attrs carries op arguments the dependency graph needs.
type Attrs struct {
	Dim   int
	Sizes []int
}

// Op is one recorded computation.
type Op struct {
	ID        int
	Type      OpType
	Name      string
	Module    Module
	Inputs    []Ref
	InShapes  [][]int
	OutShapes [][]int
	Attrs     Attrs
}

func (o *Op) String() string {
	return fmt.Sprintf("%s(%s)", o.Type, o.Name)
}

// Tape records ops executed on Vars that descend from its input.
type Tape struct {
	ops   []*Op
	input *Var
}

// NewTape creates an empty tape.
func NewTape() *Tape {
	return &Tape{}
}

// Input wraps the example input so that everything computed from it is recorded.
func (tp *Tape) Input(t *tensor.Tensor) *Var {
	v := &Var{value: t, tape: tp, origin: OriginInput}
	tp.input = v
	return v
}

// Ops returns the recorded ops in execution order.
func (tp *Tape) Ops() []*Op {
	return tp.ops
}

// Len returns the number of recorded ops.
func (tp *Tape) Len() int {
	return len(tp.ops)
}

func tapeOf(vs ...*Var) *Tape {
	for _, v := range vs {
		if v != nil && v.tape != nil {
			return v.tape
		}
	}
	return nil
}

// record appends an op to the tape shared by the inputs, if any. Input refs are
// captured before outputs are re-pointed so in-place ops link to the previous writer.
func record(typ OpType, m Module, attrs Attrs, inputs []*Var, outputs ...*Var) {
	tp := tapeOf(inputs...)
	if tp == nil {
		return
	}
	op := &Op{
		ID:     len(tp.ops),
		Type:   typ,
		Module: m,
		Attrs:  attrs,
	}
	if m != nil {
		op.Name = m.Name()
	} else {
		op.Name = fmt.Sprintf("%s_%d", typ, op.ID)
	}
	for _, in := range inputs {
		op.Inputs = append(op.Inputs, Ref{Op: in.op, Port: in.port, Origin: in.origin})
		op.InShapes = append(op.InShapes, in.Shape())
	}
	for ii, out := range outputs {
		out.tape = tp
		out.origin = OriginOp
		out.op = op
		out.port = ii
		op.OutShapes = append(op.OutShapes, out.Shape())
	}
	tp.ops = append(tp.ops, op)
}
