package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pump-controller/internal/errors"
)

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteLoadDefaultWhenAbsent(t *testing.T) {
	s := openTemp(t)

	v, err := s.Load(KeyPulse, DefaultPulse)
	require.NoError(t, err)
	assert.Equal(t, DefaultPulse, v)
}

func TestSQLiteSaveUpserts(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Save(KeyPulse, 5))
	require.NoError(t, s.Save(KeyPulse, 7.5))
	require.NoError(t, s.Save(KeyPause, 10))

	v, err := s.Load(KeyPulse, DefaultPulse)
	require.NoError(t, err)
	assert.Equal(t, 7.5, v)

	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, []Setting{{Key: KeyPause, Value: 10}, {Key: KeyPulse, Value: 7.5}}, all)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(KeyPause, 42))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.Load(KeyPause, DefaultPause)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
	assert.Equal(t, path, s2.Path())
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	_, err := OpenSQLite("")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrStorageInit))
}

func TestSQLiteAccessAfterClose(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	v, err := s.Load(KeyPulse, 3)
	require.Error(t, err)
	assert.Equal(t, 3.0, v, "default is returned with the error")
	assert.True(t, errors.HasCode(err, errors.ErrStorageAccess))

	err = s.Save(KeyPulse, 1)
	assert.True(t, errors.HasCode(err, errors.ErrStorageAccess))
}
