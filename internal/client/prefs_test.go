package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrefs_MissingFileGivesDefaults(t *testing.T) {
	p, err := LoadPrefs(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.True(t, p.SoundAllowed)

	d, err := p.Reminder()
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestPrefs_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	require.NoError(t, SavePrefs(&Prefs{SoundAllowed: false, ReminderInterval: "15m"}, path))

	p, err := LoadPrefs(path)
	require.NoError(t, err)
	assert.False(t, p.SoundAllowed)

	d, err := p.Reminder()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	st := p.ClientState()
	assert.False(t, st.SoundAllowed.Get())
	assert.Equal(t, 15*time.Minute, st.ReminderInterval.Get())
}

func TestLoadPrefs_InvalidInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sound_allowed: true\nreminder_interval: soon\n"), 0o600))

	_, err := LoadPrefs(path)
	assert.Error(t, err)
}

func TestPersist_WritesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	st := DefaultPrefs().ClientState()

	stop := Persist(st, path, func(err error) { t.Errorf("persist: %v", err) })
	st.SoundAllowed.Set(false)
	st.ReminderInterval.Set(time.Hour)

	p, err := LoadPrefs(path)
	require.NoError(t, err)
	assert.False(t, p.SoundAllowed)
	assert.Equal(t, "1h0m0s", p.ReminderInterval)

	stop()
	st.SoundAllowed.Set(true)
	p, err = LoadPrefs(path)
	require.NoError(t, err)
	assert.False(t, p.SoundAllowed)
}

func TestDefaultPrefsPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	prod, err := DefaultPrefsPath("production")
	require.NoError(t, err)
	dev, err := DefaultPrefsPath("development")
	require.NoError(t, err)

	assert.Equal(t, "prefs.yaml", filepath.Base(prod))
	assert.Equal(t, "prefs.dev.yaml", filepath.Base(dev))
	assert.Equal(t, filepath.Dir(prod), filepath.Dir(dev))
}
