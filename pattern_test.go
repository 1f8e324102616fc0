package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantLen int
		wantErr bool
	}{
		{name: "plain", input: "D9 46 64", want: "D9 46 64", wantLen: 3},
		{name: "wildcards", input: "D9 05 ?? ?? ?? ?? D9 98", want: "D9 05 ?? ?? ?? ?? D9 98", wantLen: 8},
		{name: "short wildcard", input: "D9 ? 64", want: "D9 ?? 64", wantLen: 3},
		{name: "lower case", input: "d9 46 ff", want: "D9 46 FF", wantLen: 3},
		{name: "single digit", input: "9 46", want: "09 46", wantLen: 2},
		{name: "extra spacing", input: "  DE C1    DE C9  ", want: "DE C1 DE C9", wantLen: 4},
		{name: "empty", input: "", wantErr: true},
		{name: "blank", input: "   ", wantErr: true},
		{name: "bad token", input: "D9 GG 64", wantErr: true},
		{name: "token too wide", input: "D9 1FF", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePattern(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantLen, p.Len())
			require.Equal(t, tt.want, p.String())
		})
	}
}

func TestFindSingleMatchWithWildcard(t *testing.T) {
	region := []byte{0xD9, 0x46, 0x64, 0x11, 0x5C}
	p := MustPattern("D9 46 64 ?? 5C")

	require.Equal(t, []int{0}, p.Find(region))
}

func TestFindReportsEveryMatch(t *testing.T) {
	region := []byte{0x00, 0xD9, 0x46, 0x64, 0xD9, 0x46, 0x64}
	p := MustPattern("D9 46 64")

	require.Equal(t, []int{1, 4}, p.Find(region))
}

func TestFindWildcardBytesDoNotMatter(t *testing.T) {
	p := MustPattern("D9 46 64 ?? 5C")

	base := []byte{0xAA, 0xD9, 0x46, 0x64, 0x00, 0x5C, 0xBB}
	want := p.Find(base)
	require.Equal(t, []int{1}, want)

	for v := 0; v < 256; v++ {
		region := append([]byte(nil), base...)
		region[4] = byte(v)
		require.Equal(t, want, p.Find(region), "wildcard byte %#x changed the match set", v)
	}
}

func TestFindStaysInBounds(t *testing.T) {
	p := MustPattern("D9 46 64")

	// A prefix of the pattern right at the end must not match and
	// must not be probed beyond the slice.
	region := []byte{0x00, 0x00, 0xD9, 0x46}
	require.Nil(t, p.Find(region))

	// Pattern longer than the whole region.
	require.Nil(t, p.Find([]byte{0xD9, 0x46}))
	require.Nil(t, p.Find(nil))

	// Every reported offset leaves room for the full pattern.
	region = []byte{0xD9, 0x46, 0x64, 0xD9, 0x46, 0x64, 0xD9, 0x46}
	for _, off := range p.Find(region) {
		require.LessOrEqual(t, off+p.Len(), len(region))
	}
}

func TestFindIsIdempotent(t *testing.T) {
	region := []byte{0x00, 0xD9, 0x46, 0x64, 0xD9, 0x46, 0x64, 0x5C}
	p := MustPattern("D9 46 ??")

	first := p.Find(region)
	second := p.Find(region)
	require.Equal(t, first, second)
}

func TestFindExactEqualsSubstringSearch(t *testing.T) {
	region := []byte{0x5C, 0x24, 0x1C, 0xD9, 0x46, 0x68, 0xD9, 0x5C, 0x24, 0x14, 0xD9, 0x46, 0x6C}

	tests := []struct {
		pattern string
		want    []int
	}{
		{pattern: "D9 46 68", want: []int{3}},
		{pattern: "D9 5C 24", want: []int{6}},
		{pattern: "D9 46", want: []int{3, 10}},
		{pattern: "5C 24", want: []int{0, 7}},
		{pattern: "AA BB", want: nil},
	}

	for _, tt := range tests {
		p := MustPattern(tt.pattern)
		require.Equal(t, tt.want, p.Find(region), "pattern %s", tt.pattern)
	}
}

// vim: ai:ts=8:sw=8:noet:syntax=go
