package prune

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Unknwon/com"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rai-project/go-prune/tensor"
)

func TestReport(t *testing.T) {
	r, err := NewReport(t.TempDir())
	require.NoError(t, err)
	defer r.Delete()

	_, err = r.Dump()
	assert.Error(t, err, "dump before start")
	assert.Error(t, r.Stop(), "stop before start")

	net, a, _ := twoLayers()
	ctx := context.Background()
	p, err := New(ctx, net, tensor.New(1, 4), WithReport(r))
	require.NoError(t, err)

	// nothing is recorded until the report starts
	_, err = p.Prune(ctx, a, Out, []int{9})
	require.NoError(t, err)
	assert.Empty(t, r.Events)

	require.NoError(t, r.Start())
	assert.Error(t, r.Start())
	_, err = p.Prune(ctx, a, Out, []int{0, 1})
	require.NoError(t, err)
	require.NoError(t, r.Stop())

	require.Len(t, r.Events, 1)
	ev := r.Events[0]
	assert.Equal(t, "A", ev.Trigger)
	assert.Equal(t, "out", ev.Dim)
	assert.Equal(t, 2, ev.Removed)
	assert.Len(t, ev.Entries, 2)
	// A loses 2 rows of 4 plus 2 biases, B loses 2 columns of 3
	assert.Equal(t, 9*4+9+9*3+3, ev.ParamsBefore)
	assert.Equal(t, 7*4+7+7*3+3, ev.ParamsAfter)
	assert.Contains(t, r.Summary(), "A out -2")

	name, err := r.Dump()
	require.NoError(t, err)
	assert.Equal(t, r.Filename(), name)
	assert.True(t, com.IsFile(name))

	r.Events = nil
	require.NoError(t, r.Read())
	require.Len(t, r.Events, 1)
	assert.Equal(t, "A", r.Events[0].Trigger)

	s, err := r.String()
	require.NoError(t, err)
	assert.Contains(t, s, `"trigger": "A"`)

	require.NoError(t, r.Delete())
	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, r.Read())
}

func TestNewReportDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	r, err := NewReport(dir)
	require.NoError(t, err)
	defer r.Delete()
	assert.True(t, com.IsDir(dir))

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	_, err = NewReport(filepath.Join(blocker, "reports"))
	assert.Error(t, err)
}
