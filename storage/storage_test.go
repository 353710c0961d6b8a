package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Round int `json:"round"`
}

func TestSnapshotStoreKeepsNewest(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	store, err := NewSnapshotStore(dir, 2, nil)
	require.NoError(err)

	var out sample
	path, err := store.Latest(&out)
	require.NoError(err)
	require.Empty(path)

	for i := 1; i <= 4; i++ {
		_, err := store.Save(sample{Round: i})
		require.NoError(err)
	}

	files, err := filepath.Glob(filepath.Join(dir, snapshotPattern))
	require.NoError(err)
	require.Len(files, 2)

	path, err = store.Latest(&out)
	require.NoError(err)
	require.NotEmpty(path)
	require.Equal(4, out.Round)
}
