package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{vcfixConfigDir: t.TempDir()}
}

func TestLoadConfigMissing(t *testing.T) {
	c := testConfig(t)

	err := c.LoadConfig()
	require.ErrorIs(t, err, ErrNoConfig)
}

func TestLoadConfigMalformed(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.WriteFile(c.ConfigPath(), []byte("{not yaml"), 0666))

	err := c.LoadConfig()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoConfig)
}

func TestLoadConfigKeys(t *testing.T) {
	doc := `name: Valkyria Chronicles
masterEnable: true
resolution:
  width: 2560
  height: 1080
fixes:
  centerHud:
    enable: false
process: Valkyria.exe
`

	c := testConfig(t)
	require.NoError(t, os.WriteFile(c.ConfigPath(), []byte(doc), 0666))

	require.NoError(t, c.LoadConfig())
	require.Equal(t, "Valkyria Chronicles", c.Name)
	require.True(t, c.MasterEnable)
	require.Equal(t, Resolution{Width: 2560, Height: 1080}, c.Resolution)
	require.False(t, c.Fixes.CenterHud.Enable)
	require.Equal(t, "Valkyria.exe", c.Process)
}

func TestConfigRoundTrip(t *testing.T) {
	c := testConfig(t)
	c.SetDefaults()
	c.Resolution = Resolution{Width: 3440, Height: 1440}
	c.Fixes.CenterHud.Enable = false
	c.GameArgs = "-windowed\n"
	require.NoError(t, c.SaveConfig())

	loaded := &Config{vcfixConfigDir: c.vcfixConfigDir}
	require.NoError(t, loaded.LoadConfig())
	require.Equal(t, c, loaded)
}

func TestWriteDefaultThenLoad(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, c.WriteDefault())

	loaded := &Config{vcfixConfigDir: c.vcfixConfigDir}
	require.NoError(t, loaded.Load())
	require.True(t, loaded.MasterEnable)
	require.True(t, loaded.Fixes.CenterHud.Enable)
	require.True(t, loaded.Resolution.IsAuto())
	require.Contains(t, loaded.Script, "add_fix")
}

func TestLoadScriptOptional(t *testing.T) {
	c := testConfig(t)

	// No script on disk falls back to the stock one.
	require.NoError(t, c.LoadScript())
	require.Contains(t, c.Script, "add_fix")

	require.NoError(t, os.WriteFile(filepath.Join(c.vcfixConfigDir, "script.anko"), []byte("x = 1"), 0666))
	require.NoError(t, c.LoadScript())
	require.Equal(t, "x = 1", c.Script)
}

func TestResolutionHelpers(t *testing.T) {
	require.True(t, Resolution{}.IsAuto())
	require.True(t, Resolution{Width: 1920}.IsAuto())
	require.True(t, Resolution{Height: 1080}.IsAuto())
	require.False(t, Resolution{Width: 1920, Height: 1080}.IsAuto())

	require.Equal(t, "2560x1080", Resolution{Width: 2560, Height: 1080}.String())
	require.InDelta(t, 16.0/9.0, Resolution{Width: 1920, Height: 1080}.AspectRatio(), 1e-6)
	require.Equal(t, float32(0), Resolution{Width: 1920}.AspectRatio())
}

// vim: ai:ts=8:sw=8:noet:syntax=go
