package prune

import (
	"fmt"

	"github.com/rai-project/go-prune/nn"
)

// channelDim is the structural dimension pruned on every tensor: [N, C, ...].
const channelDim = 1

// Kind classifies a node by how it relates pruning indices across it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindParametric layers map input channels to unrelated output channels.
	KindParametric
	// KindGroupedConv layers tie input and output channels group by group.
	KindGroupedConv
	// KindNormalization layers own one parameter per channel.
	KindNormalization
	// KindPointwise ops act on each channel independently.
	KindPointwise
	// KindElementwise ops combine several inputs position by position.
	KindElementwise
	// KindConcat joins inputs along the channel dimension.
	KindConcat
	// KindSplit cuts its input along the channel dimension.
	KindSplit
	// KindReshape changes the tensor layout.
	KindReshape
	// KindIdentity passes its input through.
	KindIdentity
	numKinds
)

var kindNames = [numKinds]string{
	KindUnknown:       "unknown",
	KindParametric:    "parametric",
	KindGroupedConv:   "grouped-conv",
	KindNormalization: "normalization",
	KindPointwise:     "pointwise",
	KindElementwise:   "elementwise",
	KindConcat:        "concat",
	KindSplit:         "split",
	KindReshape:       "reshape",
	KindIdentity:      "identity",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// classify maps a recorded op to a node kind.
func classify(op *nn.Op) Kind {
	switch op.Type {
	case nn.OpLinear:
		return KindParametric
	case nn.OpConv2d:
		if c, ok := op.Module.(*nn.Conv2d); ok && c.Groups > 1 {
			return KindGroupedConv
		}
		return KindParametric
	case nn.OpBatchNorm, nn.OpLayerNorm:
		return KindNormalization
	case nn.OpReLU, nn.OpSigmoid, nn.OpTanh, nn.OpGELU, nn.OpSoftmax, nn.OpPool, nn.OpDropout:
		return KindPointwise
	case nn.OpIdentity:
		return KindIdentity
	case nn.OpAdd, nn.OpMul:
		return KindElementwise
	case nn.OpConcat:
		if opDim(op) == channelDim {
			return KindConcat
		}
		// Inputs joined along any other dimension share their channels.
		return KindElementwise
	case nn.OpSplit:
		if opDim(op) == channelDim {
			return KindSplit
		}
		return KindPointwise
	case nn.OpFlatten, nn.OpReshape:
		return KindReshape
	}
	return KindUnknown
}

// opDim resolves a possibly negative dim attribute against the first input's rank.
func opDim(op *nn.Op) int {
	d := op.Attrs.Dim
	if d < 0 && len(op.InShapes) > 0 {
		d += len(op.InShapes[0])
	}
	return d
}
