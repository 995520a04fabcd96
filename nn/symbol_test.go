package nn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rai-project/go-prune/tensor"
)

func loadTiny(t *testing.T) *SymbolNetwork {
	sym, err := LoadSymbol(filepath.Join("testdata", "tiny-symbol.json"))
	require.NoError(t, err)
	net, err := sym.Build("tiny", []int{1, 3, 8, 8})
	require.NoError(t, err)
	return net
}

func TestLoadSymbol(t *testing.T) {
	sym, err := LoadSymbol(filepath.Join("testdata", "tiny-symbol.json"))
	require.NoError(t, err)
	assert.Len(t, sym.Heads, 1)
	assert.Equal(t, "data", sym.Nodes[0].Name)

	_, err = LoadSymbol(filepath.Join("testdata", "missing-symbol.json"))
	assert.Error(t, err)
}

func TestSymbolBuild(t *testing.T) {
	net := loadTiny(t)

	var names []string
	for _, m := range net.Children() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{
		"conv0", "bn0", "relu0", "conv1", "relu1",
		"expand1x1", "expand3x3", "pool0", "flatten0", "fc", "softmax",
	}, names)

	conv0 := net.Layer("conv0").(*Conv2d)
	assert.Equal(t, 3, conv0.InChannels)
	assert.Equal(t, 8, conv0.OutChannels)
	assert.Equal(t, 1, conv0.Padding)

	conv1 := net.Layer("conv1").(*Conv2d)
	assert.Nil(t, conv1.Bias)

	assert.Equal(t, 0.001, net.Layer("bn0").(*BatchNorm).Eps)
	assert.Equal(t, 8, net.Layer("fc").(*Linear).InFeatures)
	assert.True(t, net.Layer("pool0").(*Pool2d).Global)
	assert.Nil(t, net.Layer("missing"))

	assert.Equal(t, 224+32+576+36+292+90, NumParams(net))
}

func TestSymbolForwardIsRecorded(t *testing.T) {
	net := loadTiny(t)

	tape := NewTape()
	out := net.Forward(tape.Input(tensor.Randn(1, 2, 3, 8, 8)))
	assert.Equal(t, []int{2, 10}, out.Shape())

	var types []OpType
	for _, op := range tape.Ops() {
		types = append(types, op.Type)
	}
	assert.Equal(t, []OpType{
		OpConv2d, OpBatchNorm, OpReLU, OpConv2d, OpReLU, OpAdd,
		OpConv2d, OpConv2d, OpConcat, OpPool, OpFlatten, OpLinear, OpSoftmax,
	}, types)
}

func TestParseSymbolErrors(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"no nodes":      `{"nodes": [], "heads": [[0, 0, 0]]}`,
		"no heads":      `{"nodes": [{"op": "null", "name": "data", "inputs": []}]}`,
		"forward input": `{"nodes": [{"op": "relu", "name": "r", "inputs": [[1, 0, 0]]}, {"op": "null", "name": "data", "inputs": []}], "heads": [[0, 0, 0]]}`,
	}
	for name, js := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSymbol([]byte(js))
			assert.Error(t, err)
		})
	}
}

func TestSymbolBuildErrors(t *testing.T) {
	cases := map[string]string{
		"two data inputs": `{"nodes": [
			{"op": "null", "name": "a", "inputs": []},
			{"op": "null", "name": "b", "inputs": []},
			{"op": "elemwise_add", "name": "add", "inputs": [[0, 0, 0], [1, 0, 0]]}
		], "heads": [[2, 0, 0]]}`,
		"unsupported op": `{"nodes": [
			{"op": "null", "name": "data", "inputs": []},
			{"op": "Deconvolution", "name": "up", "inputs": [[0, 0, 0]]}
		], "heads": [[1, 0, 0]]}`,
		"bad attribute": `{"nodes": [
			{"op": "null", "name": "data", "inputs": []},
			{"op": "Convolution", "name": "c", "inputs": [[0, 0, 0]], "attrs": {"num_filter": "many"}}
		], "heads": [[1, 0, 0]]}`,
		"non-square kernel": `{"nodes": [
			{"op": "null", "name": "data", "inputs": []},
			{"op": "Convolution", "name": "c", "inputs": [[0, 0, 0]], "attrs": {"num_filter": "2", "kernel": "(1, 3)"}}
		], "heads": [[1, 0, 0]]}`,
	}
	for name, js := range cases {
		t.Run(name, func(t *testing.T) {
			sym, err := ParseSymbol([]byte(js))
			require.NoError(t, err)
			_, err = sym.Build("net", []int{1, 2, 4, 4})
			assert.Error(t, err)
		})
	}
}

func TestSymbolAttributes(t *testing.T) {
	nd := SymbolNode{
		Name: "c",
		Attributes: map[string]interface{}{
			"kernel":  "(3, 3)",
			"no_bias": "True",
			"shape":   "[0, -1]",
			"eps":     "1e-3",
		},
		Params: map[string]interface{}{"num_filter": "16"},
	}

	k, err := nd.squareAttr("kernel", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, k)

	b, err := nd.boolAttr("no_bias", false)
	require.NoError(t, err)
	assert.True(t, b)

	shape, err := nd.tupleAttr("shape", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, -1}, shape)

	eps, err := nd.floatAttr("eps", 0)
	require.NoError(t, err)
	assert.Equal(t, 1e-3, eps)

	n, err := nd.intAttr("num_filter", 0)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	d, err := nd.intAttr("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, d)
}
