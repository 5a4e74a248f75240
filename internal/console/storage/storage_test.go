package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set(KeyToken, "abc"))
	v, ok := m.Get(KeyToken)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, m.Remove(KeyToken, KeyUserInfo))
	_, ok = m.Get(KeyToken)
	assert.False(t, ok)
}

func TestFilePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set(KeyToken, "abc"))
	require.NoError(t, f.Set(KeyTheme, `{"mode":"dark"}`))
	require.NoError(t, f.Remove(KeyTheme))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, ok := reopened.Get(KeyToken)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
	_, ok = reopened.Get(KeyTheme)
	assert.False(t, ok)
}

func TestFileIgnoresCorruptContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	f, err := OpenFile(path)
	require.NoError(t, err)
	_, ok := f.Get(KeyToken)
	assert.False(t, ok)
}
