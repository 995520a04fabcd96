package nn

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/Unknwon/com"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/rai-project/go-prune/tensor"
)

// SymbolNode is one entry of an MXNet symbol graph.
type SymbolNode struct {
	Op         string                 `json:"op"`
	Name       string                 `json:"name"`
	Inputs     [][]int                `json:"inputs"`
	Attributes map[string]interface{} `json:"attrs,omitempty"`
	Params     map[string]interface{} `json:"param,omitempty"`
}

// Symbol is an MXNet symbol graph as stored in a "-symbol.json" file.
type Symbol struct {
	Nodes      []SymbolNode           `json:"nodes"`
	ArgNodes   []int                  `json:"arg_nodes"`
	NodeRowPtr []int                  `json:"node_row_ptr"`
	Heads      [][]int                `json:"heads"`
	Attributes map[string]interface{} `json:"attrs"`
}

// LoadSymbol reads a symbol graph from disk.
func LoadSymbol(symbolPath string) (*Symbol, error) {
	if !com.IsFile(symbolPath) {
		return nil, errors.Errorf("file path %s not found", symbolPath)
	}
	bts, err := os.ReadFile(symbolPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", symbolPath)
	}
	sym, err := ParseSymbol(bts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", symbolPath)
	}
	return sym, nil
}

// ParseSymbol decodes a symbol graph.
func ParseSymbol(bts []byte) (*Symbol, error) {
	sym := new(Symbol)
	if err := json.Unmarshal(bts, sym); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal symbol")
	}
	if len(sym.Nodes) == 0 {
		return nil, errors.New("symbol has no nodes")
	}
	if len(sym.Heads) == 0 {
		return nil, errors.New("symbol has no heads")
	}
	for ii, nd := range sym.Nodes {
		for _, in := range nd.Inputs {
			if len(in) < 2 || in[0] < 0 || in[0] >= ii {
				return nil, errors.Errorf("node %s has invalid input %v", nd.Name, in)
			}
		}
	}
	return sym, nil
}

var paramSuffixes = []string{
	"_weight", "_bias", "_gamma", "_beta",
	"_moving_mean", "_moving_var", "_running_mean", "_running_var", "_label",
}

func isParam(nd SymbolNode) bool {
	if nd.Op != "null" {
		return false
	}
	for _, s := range paramSuffixes {
		if strings.HasSuffix(nd.Name, s) {
			return true
		}
	}
	return false
}

func (nd SymbolNode) attr(key string) (interface{}, bool) {
	if v, ok := nd.Attributes[key]; ok {
		return v, true
	}
	v, ok := nd.Params[key]
	return v, ok
}

func (nd SymbolNode) intAttr(key string, def int) (int, error) {
	v, ok := nd.attr(key)
	if !ok {
		return def, nil
	}
	i, err := cast.ToIntE(strings.TrimSpace(cast.ToString(v)))
	if err != nil {
		return 0, errors.Wrapf(err, "node %s: attribute %s", nd.Name, key)
	}
	return i, nil
}

func (nd SymbolNode) floatAttr(key string, def float64) (float64, error) {
	v, ok := nd.attr(key)
	if !ok {
		return def, nil
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(cast.ToString(v)))
	if err != nil {
		return 0, errors.Wrapf(err, "node %s: attribute %s", nd.Name, key)
	}
	return f, nil
}

func (nd SymbolNode) boolAttr(key string, def bool) (bool, error) {
	v, ok := nd.attr(key)
	if !ok {
		return def, nil
	}
	b, err := cast.ToBoolE(strings.TrimSpace(cast.ToString(v)))
	if err != nil {
		return false, errors.Wrapf(err, "node %s: attribute %s", nd.Name, key)
	}
	return b, nil
}

func (nd SymbolNode) stringAttr(key, def string) string {
	v, ok := nd.attr(key)
	if !ok {
		return def
	}
	return cast.ToString(v)
}

// tupleAttr parses MXNet tuples such as "(3, 3)" or "[0,-1]".
func (nd SymbolNode) tupleAttr(key string, def []int) ([]int, error) {
	v, ok := nd.attr(key)
	if !ok {
		return def, nil
	}
	s := strings.Trim(strings.TrimSpace(cast.ToString(v)), "()[]")
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := cast.ToIntE(part)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s: attribute %s", nd.Name, key)
		}
		out = append(out, i)
	}
	return out, nil
}

// squareAttr reads a spatial tuple that must have equal sides.
func (nd SymbolNode) squareAttr(key string, def int) (int, error) {
	t, err := nd.tupleAttr(key, []int{def, def})
	if err != nil {
		return 0, err
	}
	switch len(t) {
	case 1:
		return t[0], nil
	case 2:
		if t[0] != t[1] {
			return 0, errors.Errorf("node %s: non-square %s %v is not supported", nd.Name, key, t)
		}
		return t[0], nil
	default:
		return 0, errors.Errorf("node %s: invalid %s %v", nd.Name, key, t)
	}
}

type symbolKey [2]int

// SymbolNetwork executes a Symbol with modules created for each layer node.
type SymbolNetwork struct {
	name   string
	sym    *Symbol
	data   int
	layers map[int]Module
	order  []Module
}

// Build creates the layers of the symbol, sizing each from a dry run on a zero
// input of inputShape.
func (sym *Symbol) Build(name string, inputShape []int) (*SymbolNetwork, error) {
	net := &SymbolNetwork{
		name:   name,
		sym:    sym,
		data:   -1,
		layers: make(map[int]Module),
	}
	for ii, nd := range sym.Nodes {
		if nd.Op != "null" || isParam(nd) {
			continue
		}
		if net.data >= 0 {
			return nil, errors.Errorf("symbol has more than one data input (%s, %s)",
				sym.Nodes[net.data].Name, nd.Name)
		}
		net.data = ii
	}
	if net.data < 0 {
		return nil, errors.New("symbol has no data input")
	}
	if _, err := net.run(NewVar(tensor.New(inputShape...)), true); err != nil {
		return nil, err
	}
	return net, nil
}

func (s *SymbolNetwork) Name() string {
	return s.name
}

// Children returns the layer modules in node order.
func (s *SymbolNetwork) Children() []Module {
	return s.order
}

// Layer returns the module created for the named symbol node.
func (s *SymbolNetwork) Layer(name string) Module {
	for _, m := range s.order {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

func (s *SymbolNetwork) Forward(x *Var) *Var {
	out, err := s.run(x, false)
	if err != nil {
		panic(err)
	}
	return out
}

func (s *SymbolNetwork) run(x *Var, build bool) (out *Var, err error) {
	values := map[symbolKey]*Var{{s.data, 0}: x}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("symbol %s: %v", s.name, r)
		}
	}()
	for ii, nd := range s.sym.Nodes {
		if nd.Op == "null" {
			continue
		}
		var ins []*Var
		for _, in := range nd.Inputs {
			if isParam(s.sym.Nodes[in[0]]) {
				continue
			}
			v, ok := values[symbolKey{in[0], in[1]}]
			if !ok {
				return nil, errors.Errorf("node %s: input %v was not computed", nd.Name, in)
			}
			ins = append(ins, v)
		}
		if len(ins) == 0 {
			return nil, errors.Errorf("node %s has no data inputs", nd.Name)
		}
		outs, err := s.apply(ii, nd, ins, build)
		if err != nil {
			return nil, err
		}
		for port, o := range outs {
			values[symbolKey{ii, port}] = o
		}
	}
	head := s.sym.Heads[0]
	out, ok := values[symbolKey{head[0], head[1]}]
	if !ok {
		return nil, errors.Errorf("head %v was not computed", head)
	}
	return out, nil
}

func (s *SymbolNetwork) apply(ii int, nd SymbolNode, ins []*Var, build bool) ([]*Var, error) {
	switch nd.Op {
	case "elemwise_add", "_Plus", "_plus", "broadcast_add", "ElementWiseSum", "add_n":
		out := ins[0]
		for _, in := range ins[1:] {
			out = Add(out, in)
		}
		return []*Var{out}, nil
	case "elemwise_mul", "_Mul", "_mul", "broadcast_mul":
		if len(ins) != 2 {
			return nil, errors.Errorf("node %s: expected 2 inputs, got %d", nd.Name, len(ins))
		}
		return []*Var{Mul(ins[0], ins[1])}, nil
	case "Concat", "concat":
		dim, err := nd.intAttr("dim", 1)
		if err != nil {
			return nil, err
		}
		return []*Var{Concat(dim, ins...)}, nil
	case "SliceChannel", "split":
		n, err := nd.intAttr("num_outputs", 1)
		if err != nil {
			return nil, err
		}
		axis, err := nd.intAttr("axis", 1)
		if err != nil {
			return nil, err
		}
		return Chunk(ins[0], axis, n), nil
	case "Reshape", "reshape":
		shape, err := nd.tupleAttr("shape", nil)
		if err != nil {
			return nil, err
		}
		dims := make([]int, len(shape))
		for i, d := range shape {
			dims[i] = d
			if d == 0 {
				dims[i] = ins[0].Dim(i)
			}
		}
		return []*Var{Reshape(ins[0], dims...)}, nil
	}

	m, ok := s.layers[ii]
	if !ok {
		if !build {
			return nil, errors.Errorf("node %s: layer was not built", nd.Name)
		}
		var err error
		if m, err = newSymbolLayer(nd, ins[0]); err != nil {
			return nil, err
		}
		s.layers[ii] = m
		s.order = append(s.order, m)
	}
	return []*Var{m.Forward(ins[0])}, nil
}

func newSymbolLayer(nd SymbolNode, in *Var) (Module, error) {
	switch nd.Op {
	case "FullyConnected":
		hidden, err := nd.intAttr("num_hidden", 0)
		if err != nil {
			return nil, err
		}
		noBias, err := nd.boolAttr("no_bias", false)
		if err != nil {
			return nil, err
		}
		if in.value.NDim() != 2 {
			return nil, errors.Errorf("node %s: FullyConnected expects a flattened input, got %v", nd.Name, in.value.Shape())
		}
		return NewLinear(nd.Name, in.Dim(1), hidden, !noBias), nil
	case "Convolution":
		filters, err := nd.intAttr("num_filter", 0)
		if err != nil {
			return nil, err
		}
		kernel, err := nd.squareAttr("kernel", 1)
		if err != nil {
			return nil, err
		}
		stride, err := nd.squareAttr("stride", 1)
		if err != nil {
			return nil, err
		}
		pad, err := nd.squareAttr("pad", 0)
		if err != nil {
			return nil, err
		}
		groups, err := nd.intAttr("num_group", 1)
		if err != nil {
			return nil, err
		}
		noBias, err := nd.boolAttr("no_bias", false)
		if err != nil {
			return nil, err
		}
		opts := []ConvOption{Stride(stride), Padding(pad), Groups(groups)}
		if noBias {
			opts = append(opts, NoBias())
		}
		return NewConv2d(nd.Name, in.Dim(1), filters, kernel, opts...), nil
	case "BatchNorm":
		eps, err := nd.floatAttr("eps", 1e-3)
		if err != nil {
			return nil, err
		}
		bn := NewBatchNorm(nd.Name, in.Dim(1))
		bn.Eps = eps
		return bn, nil
	case "LayerNorm":
		axis, err := nd.intAttr("axis", -1)
		if err != nil {
			return nil, err
		}
		if in.value.NDim() != 2 || (axis != -1 && axis != 1) {
			return nil, errors.Errorf("node %s: LayerNorm is only supported over the feature axis of a 2D input", nd.Name)
		}
		eps, err := nd.floatAttr("eps", 1e-5)
		if err != nil {
			return nil, err
		}
		ln := NewLayerNorm(nd.Name, in.Dim(1))
		ln.Eps = eps
		return ln, nil
	case "Activation":
		act := nd.stringAttr("act_type", "relu")
		switch OpType(act) {
		case OpReLU, OpSigmoid, OpTanh:
			return NewActivation(nd.Name, OpType(act)), nil
		}
		return nil, errors.Errorf("node %s: unsupported act_type %q", nd.Name, act)
	case "relu":
		return NewReLU(nd.Name), nil
	case "softmax", "SoftmaxOutput", "SoftmaxActivation":
		return NewActivation(nd.Name, OpSoftmax), nil
	case "Pooling":
		global, err := nd.boolAttr("global_pool", false)
		if err != nil {
			return nil, err
		}
		kind := PoolKind(nd.stringAttr("pool_type", "max"))
		if kind != MaxPool && kind != AvgPool {
			return nil, errors.Errorf("node %s: unsupported pool_type %q", nd.Name, kind)
		}
		if global {
			return NewGlobalPool(nd.Name, kind), nil
		}
		kernel, err := nd.squareAttr("kernel", 1)
		if err != nil {
			return nil, err
		}
		stride, err := nd.squareAttr("stride", 1)
		if err != nil {
			return nil, err
		}
		return NewPool2d(nd.Name, kind, kernel, stride), nil
	case "Flatten", "flatten":
		return NewFlatten(nd.Name), nil
	case "Dropout":
		p, err := nd.floatAttr("p", 0.5)
		if err != nil {
			return nil, err
		}
		return NewDropout(nd.Name, p), nil
	case "identity", "_copy":
		return NewIdentity(nd.Name), nil
	}
	return nil, errors.Errorf("unsupported symbol op %q (node %s)", nd.Op, nd.Name)
}
