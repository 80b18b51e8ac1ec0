package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFile(t *testing.T) {
	cfg := DefaultFile()

	assert.Equal(t, 12*time.Hour, cfg.Arbiter.StaleLockTimeout.Duration())
	assert.Equal(t, "speed", cfg.Arbiter.ImageQuality)
	assert.NotNil(t, cfg.Metadata)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/path/config.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultFile().Arbiter, cfg.Arbiter)
	assert.Equal(t, DefaultSDKConfig(), cfg.SDK(nil))
}

func TestLoadFile_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[metadata]
"com.mixpanel.android.MPConfig.BulkUploadLimit" = 80
FlushInterval = 30000
"com.mixpanel.android.MPConfig.DisableFallback" = false
"com.mixpanel.android.MPConfig.EventsEndpoint" = "https://eu.example.com/track"

[arbiter]
stale_lock_timeout = "30m"
image_quality = "best"
journal_path = "/tmp/journal.jsonl"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Arbiter.StaleLockTimeout.Duration())
	assert.Equal(t, "best", cfg.Arbiter.ImageQuality)
	assert.Equal(t, "/tmp/journal.jsonl", cfg.Arbiter.Journal())

	sdk := cfg.SDK(nil)
	assert.Equal(t, 80, sdk.BulkUploadLimit)
	assert.Equal(t, 30000, sdk.FlushInterval)
	assert.False(t, sdk.DisableFallback)
	assert.Equal(t, "https://eu.example.com/track", sdk.EventsEndpoint)
	// Unchanged options keep their defaults
	assert.Equal(t, DefaultDataExpiration, sdk.DataExpiration)
	assert.Equal(t, DefaultPeopleEndpoint, sdk.PeopleEndpoint)
}

func TestLoadFile_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
metadata:
  com.mixpanel.android.MPConfig.DataExpiration: 3600000
  AutoCheckMixpanelData: false
  AutoCheckForSurveys: false
arbiter:
  stale_lock_timeout: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Arbiter.StaleLockTimeout.Duration())
	assert.Equal(t, DefaultImageQuality, cfg.Arbiter.ImageQuality)

	sdk := cfg.SDK(nil)
	assert.Equal(t, 3600000, sdk.DataExpiration)
	assert.False(t, sdk.AutoCheckMixpanelData)
}

func TestLoadFile_DurationMilliseconds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[arbiter]\nstale_lock_timeout = \"5000\"\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Arbiter.StaleLockTimeout.Duration())
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"invalid toml", "config.toml", `this is not valid toml [`},
		{"invalid yaml", "config.yml", "metadata: [unclosed"},
		{"bad duration", "config.toml", "[arbiter]\nstale_lock_timeout = \"soon\"\n"},
		{"zero timeout", "config.toml", "[arbiter]\nstale_lock_timeout = \"0s\"\n"},
		{"bad quality", "config.toml", "[arbiter]\nimage_quality = \"ultra\"\n"},
		{"bad endpoint", "config.toml", "[metadata]\nDecideEndpoint = \"decide.example.com\"\n"},
		{"bad bulk limit", "config.toml", "[metadata]\nBulkUploadLimit = 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestFile_Save(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config.toml")

	cfg := DefaultFile()
	cfg.Arbiter.StaleLockTimeout = Duration(90 * time.Minute)
	cfg.Metadata[MetadataPrefix+KeyBulkUploadLimit] = 25

	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, loaded.Arbiter.StaleLockTimeout.Duration())
	assert.Equal(t, 25, loaded.SDK(nil).BulkUploadLimit)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/promptslot/config.toml", Path())
}

func TestDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/promptslot", DataPath())
	assert.Equal(t, "/custom/data/promptslot/journal.jsonl", DefaultFile().Arbiter.Journal())
	assert.Equal(t, "/custom/data/promptslot/surface.json", DefaultFile().Arbiter.SavedState())
}

func TestEnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	require.NoError(t, EnsureDataDir())

	info, err := os.Stat(filepath.Join(dir, "promptslot"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// writeAtomic replaces path via rename so the watcher never sees a partial file.
func writeAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := filepath.Join(filepath.Dir(path), ".pending")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[arbiter]\nstale_lock_timeout = \"1h\"\n"), 0644))

	initial, err := LoadFile(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	reloaded := make(chan *File, 4)
	w.SetReloadCallback(func(f *File) { reloaded <- f })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, initial))
	defer w.Stop()

	writeAtomic(t, path, "[arbiter]\nstale_lock_timeout = \"3h\"\n")

	select {
	case f := <-reloaded:
		assert.Equal(t, 3*time.Hour, f.Arbiter.StaleLockTimeout.Duration())
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.Equal(t, 3*time.Hour, w.Current().Arbiter.StaleLockTimeout.Duration())
}

func TestWatcher_InvalidKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[arbiter]\nstale_lock_timeout = \"1h\"\n"), 0644))

	initial, err := LoadFile(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	failed := make(chan error, 4)
	w.SetErrorCallback(func(err error) { failed <- err })

	require.NoError(t, w.Start(context.Background(), initial))
	defer w.Stop()

	writeAtomic(t, path, "[arbiter]\nimage_quality = \"ultra\"\n")

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
	assert.Same(t, initial, w.Current())
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.toml"), nil)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// The fsnotify watcher is closed even though watching never began
	assert.Error(t, w.watcher.Add(t.TempDir()))
}

func TestWatcher_StartAfterStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background(), DefaultFile()))
	require.NoError(t, w.Stop())

	assert.ErrorIs(t, w.Start(context.Background(), DefaultFile()), ErrWatcherStopped)
	assert.NotPanics(t, func() {
		assert.NoError(t, w.Stop())
	})
}
