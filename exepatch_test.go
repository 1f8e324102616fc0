package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// The stock bootstrap: 31 bytes of arithmetic the patch overwrites.
var stockBootstrap = []byte{
	0xB8, 0x39, 0x8E, 0xE3, 0x38,
	0xF7, 0xE3,
	0x8B, 0xFA,
	0xB8, 0x39, 0x8E, 0xE3, 0x38,
	0xF7, 0xEB,
	0xD1, 0xFA,
	0x8B, 0xC2,
	0xC1, 0xE8, 0x1F,
	0x03, 0xC2,
	0x2B, 0xC8,
	0xD1, 0xEF,
	0xD1, 0xF9,
}

func writeTestExe(t *testing.T) (string, int) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "Valkyria.exe")

	exe := make([]byte, 0x100)
	const off = 0x38
	copy(exe[off:], stockBootstrap)
	require.NoError(t, os.WriteFile(path, exe, 0666))

	return path, off
}

func TestExePatchReplacementLayout(t *testing.T) {
	got := exePatchReplacement(
		Resolution{Width: 5120, Height: 1440},
		Resolution{Width: 5120, Height: 1440},
	)

	want := "B8 00 14 00 00 BB 00 5A 00 00 B9 00 00 00 00 BA 00 14 00 00 BE A0 05 00 00 BF 00 14 00 00 90"
	require.Equal(t, want, got)

	p := MustPattern(got)
	require.Equal(t, len(stockBootstrap), p.Len())
}

func TestExePatchReplacementCentersViewport(t *testing.T) {
	got := exePatchReplacement(
		Resolution{Width: 2560, Height: 1440},
		Resolution{Width: 3440, Height: 1440},
	)

	// (3440 - 2560) / 2 = 440 = 0x1b8.
	require.Equal(t, "B8 00 0A 00 00 BB 00 5A 00 00 B9 B8 01 00 00 BA 00 0A 00 00 BE A0 05 00 00 BF 00 0A 00 00 90", got)
}

func TestPatchExe(t *testing.T) {
	path, off := writeTestExe(t)

	res := Resolution{Width: 5120, Height: 1440}
	require.NoError(t, PatchExe(path, res, res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := MustPattern(exePatchReplacement(res, res)).Bytes()
	require.Equal(t, want, data[off:off+len(want)])

	// The sidecar remembers what was written.
	stored, err := os.ReadFile(filepath.Join(filepath.Dir(path), "patch.txt"))
	require.NoError(t, err)
	require.Equal(t, exePatchReplacement(res, res)+"\n", string(stored))
}

func TestPatchExeAgainAtNewResolution(t *testing.T) {
	path, off := writeTestExe(t)

	first := Resolution{Width: 5120, Height: 1440}
	require.NoError(t, PatchExe(path, first, first))

	// The stock bytes are gone now; the second run must find the
	// first replacement through the sidecar.
	second := Resolution{Width: 3440, Height: 1440}
	require.NoError(t, PatchExe(path, second, second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := MustPattern(exePatchReplacement(second, second)).Bytes()
	require.Equal(t, want, data[off:off+len(want)])
}

func TestPatchExeAutoResolution(t *testing.T) {
	path, off := writeTestExe(t)

	desktop := Resolution{Width: 1920, Height: 1080}
	require.NoError(t, PatchExe(path, Resolution{}, desktop))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := MustPattern(exePatchReplacement(desktop, desktop)).Bytes()
	require.Equal(t, want, data[off:off+len(want)])
}

func TestPatchExeMissingPattern(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Valkyria.exe")
	require.NoError(t, os.WriteFile(path, make([]byte, 0x100), 0666))

	res := Resolution{Width: 1920, Height: 1080}
	err := PatchExe(path, res, res)
	require.ErrorIs(t, err, ErrNotFound)

	// Nothing was written, including the sidecar.
	_, err = os.Stat(filepath.Join(dir, "patch.txt"))
	require.True(t, os.IsNotExist(err))
}

// vim: ai:ts=8:sw=8:noet:syntax=go
