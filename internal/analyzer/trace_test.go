package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linkatTrace = ` gitaly-3521172 [019] 8001008.806633: funcgraph_entry:                   |  do_linkat() {
 gitaly-3521172 [019] 8001008.806634: funcgraph_entry:                   |    filename_lookup() {
 gitaly-3521172 [019] 8001008.806635: funcgraph_entry:        0.500 us   |      set_root();
 gitaly-3521172 [019] 8001008.806636: funcgraph_exit:         2.000 us   |    }
 gitaly-3521172 [019] 8001008.806637: funcgraph_exit:         5.000 us   |  }
 gitaly-3521172 [019] 8001008.806640: funcgraph_entry:                   |  do_linkat() {
 gitaly-3521172 [019] 8001008.806641: funcgraph_exit:         0.500 us   |  }
bogus
`

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTrace(t *testing.T) {
	path := writeTrace(t, linkatTrace)

	data, err := LoadTrace(context.Background(), path, 1)
	require.NoError(t, err)

	assert.Equal(t, "do_linkat;filename_lookup;set_root 0.5\ndo_linkat;filename_lookup 1.5\ndo_linkat 3.0\ndummy 0\n", data.Collapsed)
	require.Len(t, data.Samples, 4)
	assert.True(t, data.Samples[3].IsSentinel())

	assert.Equal(t, 2, data.Summary.Trees)
	assert.Equal(t, 1, data.Summary.Emitted)
	assert.Equal(t, 1, data.Summary.Unknown)
	require.Len(t, data.Diagnostics, 1)
	assert.Equal(t, "unknown line: bogus", data.Diagnostics[0].String())

	// the symbol table also counts the tree below the threshold
	linkat, ok := data.Symbols.Lookup("do_linkat")
	require.True(t, ok)
	assert.Equal(t, 2, linkat.Count)
	assert.InDelta(t, 5.5, linkat.TotalTime, 1e-9)
}

func TestLoadTraceMissingFile(t *testing.T) {
	_, err := LoadTrace(context.Background(), filepath.Join(t.TempDir(), "nope"), 0)
	assert.Error(t, err)
}
