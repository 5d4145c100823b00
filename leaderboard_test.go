package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWinStore(t *testing.T) *WinStore {
	t.Helper()

	ws, err := openWinStore(filepath.Join(t.TempDir(), "wins.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	return ws
}

func TestWinStoreIncrementAndTopN(t *testing.T) {
	t.Parallel()

	ws := newTestWinStore(t)

	require.NoError(t, ws.Increment("An"))
	require.NoError(t, ws.Increment("An"))
	require.NoError(t, ws.Increment("Bình"))

	entries, err := ws.TopN(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "An", entries[0].Player)
	assert.Equal(t, 2, entries[0].Wins)
	assert.Equal(t, "Bình", entries[1].Player)
	assert.Equal(t, 1, entries[1].Wins)
}

func TestWinStoreTiesBreakByFirstWin(t *testing.T) {
	t.Parallel()

	ws := newTestWinStore(t)

	require.NoError(t, ws.Increment("Chi"))
	require.NoError(t, ws.Increment("An"))

	entries, err := ws.TopN(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Equal win counts: whoever won first ranks first.
	assert.Equal(t, "Chi", entries[0].Player)
	assert.Equal(t, "An", entries[1].Player)
}

func TestWinStoreTopNTruncates(t *testing.T) {
	t.Parallel()

	ws := newTestWinStore(t)

	for _, name := range []string{"An", "Bình", "Chi", "Dũng"} {
		require.NoError(t, ws.Increment(name))
	}

	entries, err := ws.TopN(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWinStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wins.db")

	ws, err := openWinStore(path)
	require.NoError(t, err)
	require.NoError(t, ws.Increment("An"))
	require.NoError(t, ws.Close())

	reopened, err := openWinStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.TopN(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Wins)
}

func TestWinStoreRejectsEmptyPlayer(t *testing.T) {
	t.Parallel()

	ws := newTestWinStore(t)

	assert.Error(t, ws.Increment(""))
}
