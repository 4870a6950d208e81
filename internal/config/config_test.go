package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDue, cfg.Digest.MaxDue)
	assert.Equal(t, DefaultMaxIncomplete, cfg.Digest.MaxIncomplete)
	assert.Equal(t, DefaultLookaheadDays, cfg.Digest.LookaheadDays)
	assert.Equal(t, DefaultBirthdayWindow, cfg.Digest.BirthdayWindowDays)
	assert.Equal(t, "notion", cfg.Storage.Backend)
	assert.Equal(t, "poll", cfg.Telegram.Mode)
	assert.Len(t, cfg.Digest.MonitoredCircles, len(DefaultCircles))
	assert.Equal(t, "Следующий контакт", cfg.Schema.NextContact)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[log]
level = "debug"

[digest]
monitored_circles = ["Партнер"]
max_due = 10

[schedule]
digest = "30 9 * * 1-5"
enrich = ""

[schema]
name = "Name"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"Партнер"}, cfg.Digest.MonitoredCircles)
	assert.Equal(t, 10, cfg.Digest.MaxDue)
	assert.Equal(t, DefaultMaxIncomplete, cfg.Digest.MaxIncomplete)
	assert.Equal(t, "30 9 * * 1-5", cfg.Schedule.Digest)
	assert.Equal(t, "", cfg.Schedule.Enrich)
	assert.Equal(t, "Name", cfg.Schema.Name)
	assert.Equal(t, "Круг", cfg.Schema.Circle)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[digest\nmax_due = "), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
