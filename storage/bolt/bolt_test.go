package bolt

import (
	"path/filepath"
	"testing"

	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path, retry.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_SaveAndLoadRoundTrips(t *testing.T) {
	s := openTemp(t)

	bundle := miniac.NewBundle()
	bundle.PutString("count", "3")
	require.NoError(t, s.Save("gateway:demo", bundle))

	got, err := s.Load("gateway:demo")
	require.NoError(t, err)
	assert.Equal(t, "3", got.GetString("count", ""))
}

func TestStorage_LoadMissingKeyReturnsNil(t *testing.T) {
	s := openTemp(t)

	got, err := s.Load("gateway:missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorage_SaveOverwritesPreviousValue(t *testing.T) {
	s := openTemp(t)

	first := miniac.NewBundle()
	first.PutString("v", "1")
	require.NoError(t, s.Save("k", first))

	second := miniac.NewBundle()
	second.PutString("v", "2")
	require.NoError(t, s.Save("k", second))

	got, err := s.Load("k")
	require.NoError(t, err)
	assert.Equal(t, "2", got.GetString("v", ""))
}
