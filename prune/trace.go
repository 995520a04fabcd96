package prune

import (
	"context"
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/rai-project/go-prune/nn"
	"github.com/rai-project/go-prune/tensor"
)

// Trace runs net once on example and builds its dependency graph. Parameters are
// not modified. Networks whose structure depends on the input yield the graph of
// the branch taken for example.
func Trace(ctx context.Context, net nn.Module, example *tensor.Tensor) (*Graph, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "trace")
	defer span.Finish()

	if net == nil {
		return nil, errors.New("invalid nil network")
	}
	if example == nil {
		return nil, errors.New("invalid nil example input")
	}

	tape := nn.NewTape()
	out, err := forward(net, tape.Input(example))
	if err != nil {
		span.SetTag("error", true)
		return nil, err
	}
	if out == nil || (out.Origin() != nn.OriginOp && out.Origin() != nn.OriginInput) {
		span.SetTag("error", true)
		return nil, newError(ErrTracingIncomplete, nil, "output of %s is not produced by a recorded op", net.Name())
	}

	g, err := build(net, tape)
	if err == nil {
		g.input = example.Dims()
	}
	if err != nil {
		span.SetTag("error", true)
		return nil, err
	}
	span.SetTag("nodes", g.Len())
	span.SetTag("edges", len(g.edges))
	log.WithField("network", net.Name()).
		Debugf("traced %d ops into %d nodes and %d edges", tape.Len(), g.Len(), len(g.edges))
	return g, nil
}

func forward(net nn.Module, x *nn.Var) (out *nn.Var, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(ErrTracingIncomplete, nil, "forward pass of %s failed: %v", net.Name(), r)
		}
	}()
	return net.Forward(x), nil
}

func ownsParams(op *nn.Op) bool {
	p, ok := op.Module.(nn.Parametric)
	return ok && len(p.Parameters()) > 0
}

func build(net nn.Module, tape *nn.Tape) (*Graph, error) {
	g := newGraph(net)
	nodeOf := make(map[*nn.Op]*Node, tape.Len())

	for _, op := range tape.Ops() {
		owns := ownsParams(op)
		n, reused := g.byModule[op.Module]
		fresh := !owns || !reused
		if fresh {
			n = newNode(op, owns)
			g.addNode(n)
		}
		nodeOf[op] = n

		for port, ref := range op.Inputs {
			switch ref.Origin {
			case nn.OriginInput, nn.OriginConst:
				if !fresh {
					continue
				}
				n.Fixed = append(n.Fixed, port)
				if ref.Origin == nn.OriginInput {
					g.feeds = append(g.feeds, feed{node: n, port: port})
				}
			case nn.OriginOp:
				from, ok := nodeOf[ref.Op]
				if !ok {
					return nil, newError(ErrTracingIncomplete, n, "input %d comes from %v, which was recorded on another tape", port, ref.Op)
				}
				if _, err := g.addEdge(from, n, ref.Port, port); err != nil {
					return nil, err
				}
			default:
				return nil, newError(ErrTracingIncomplete, n, "input %d was not produced by a recorded op", port)
			}
		}
	}
	return g, nil
}

func newNode(op *nn.Op, owns bool) *Node {
	n := &Node{
		Name:      op.Name,
		Kind:      classify(op),
		Op:        op.Type,
		InShapes:  copyShapes(op.InShapes),
		OutShapes: copyShapes(op.OutShapes),
		Groups:    1,
	}
	if owns {
		n.Module = op.Module
	}
	if c, ok := op.Module.(*nn.Conv2d); ok {
		n.Groups = c.Groups
	}
	switch n.Kind {
	case KindConcat:
		n.Segments = segments(n.InShapes)
	case KindSplit:
		n.Segments = segments(n.OutShapes)
	}
	return n
}

func segments(shapes [][]int) []Segment {
	segs := make([]Segment, len(shapes))
	offset := 0
	for i, s := range shapes {
		segs[i] = Segment{Offset: offset, Width: channelsOf(s)}
		offset += segs[i].Width
	}
	return segs
}

func copyShapes(shapes [][]int) [][]int {
	out := make([][]int, len(shapes))
	for i, s := range shapes {
		out[i] = append([]int(nil), s...)
	}
	return out
}

func (n *Node) describe() string {
	return fmt.Sprintf("%s %s in=%v out=%v", n, n.Op, n.InShapes, n.OutShapes)
}
