package eqsettings

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavify-audio/wavify-core/internal/kvstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	return New(kv)
}

func TestNewDefaultsToFlatEnabled(t *testing.T) {
	s := newTestStore(t)
	cur := s.Current()
	assert.True(t, cur.Enabled)
	assert.Equal(t, PresetFlat, cur.Preset)
	for _, b := range cur.Bands {
		assert.Equal(t, 0.0, b.GainDB)
	}
}

func TestSetBandGainForcesCustomPreset(t *testing.T) {
	s := newTestStore(t)
	s.ApplyPreset(PresetRock)
	s.SetBandGain(3, 5)

	cur := s.Current()
	assert.Equal(t, PresetCustom, cur.Preset)
	assert.Equal(t, 5.0, cur.Bands[3].GainDB)
}

func TestSetBandGainClampsRange(t *testing.T) {
	s := newTestStore(t)
	s.SetBandGain(0, 999)
	s.SetBandGain(1, -999)

	cur := s.Current()
	assert.Equal(t, maxGainDB, cur.Bands[0].GainDB)
	assert.Equal(t, minGainDB, cur.Bands[1].GainDB)
}

func TestApplyPresetOverwritesAllBands(t *testing.T) {
	s := newTestStore(t)
	s.SetBandGain(0, 3)
	s.ApplyPreset(PresetJazz)

	cur := s.Current()
	assert.Equal(t, PresetJazz, cur.Preset)
	vec := presetVectors[PresetJazz]
	for i, b := range cur.Bands {
		assert.Equal(t, vec[i], b.GainDB)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := newTestStore(t)
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.SetEnabled(false)

	select {
	case got := <-ch:
		assert.False(t, got.Enabled)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for settings change")
	}
}

func TestSettingsPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	kv1, err := kvstore.Open(path)
	require.NoError(t, err)
	s1 := New(kv1)
	s1.ApplyPreset(PresetBassBoost)

	kv2, err := kvstore.Open(path)
	require.NoError(t, err)
	s2 := New(kv2)
	assert.Equal(t, PresetBassBoost, s2.Current().Preset)
}
