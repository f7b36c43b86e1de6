package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set(KeyCrossfadeDuration, 8.5))

	var got float64
	ok, err := s.Get(KeyCrossfadeDuration, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8.5, got)
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	var got string
	ok, err := s.Get("does_not_exist", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(KeyCrossfadeEnabled, true))

	s2, err := Open(path)
	require.NoError(t, err)
	assert.True(t, s2.GetBool(KeyCrossfadeEnabled, false))
}

func TestDeleteRemovesKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set(KeySearchHistory, []string{"a", "b"}))
	require.NoError(t, s.Delete(KeySearchHistory))

	var got []string
	ok, err := s.Get(KeySearchHistory, &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetStringDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.json"))
	require.NoError(t, err)

	assert.Equal(t, "fallback", s.GetString("missing", "fallback"))
}
