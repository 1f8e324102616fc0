package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeMemory backs a [base, base+len) window with a plain byte slice.
type fakeMemory struct {
	base uintptr
	data []byte
}

func (m *fakeMemory) ReadMem(addr uintptr, n int) ([]byte, error) {
	off := int64(addr) - int64(m.base)
	if off < 0 || off+int64(n) > int64(len(m.data)) {
		return nil, fmt.Errorf("read out of range @ 0x%x+%d", addr, n)
	}

	return append([]byte(nil), m.data[off:off+int64(n)]...), nil
}

func (m *fakeMemory) WriteMem(addr uintptr, data []byte) error {
	off := int64(addr) - int64(m.base)
	if off < 0 || off+int64(len(data)) > int64(len(m.data)) {
		return fmt.Errorf("write out of range @ 0x%x+%d", addr, len(data))
	}

	copy(m.data[off:], data)
	return nil
}

func TestRegisterContextRegByName(t *testing.T) {
	ctx := &RegisterContext{
		Eax: 1, Ebx: 2, Ecx: 3, Edx: 4,
		Esi: 5, Edi: 6, Ebp: 7, Esp: 8,
		Eip: 9, Eflags: 10,
	}

	names := []string{"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp", "eip", "eflags"}
	for i, name := range names {
		v, err := ctx.Reg(name)
		require.NoError(t, err)
		require.Equal(t, uint32(i+1), v, "register %s", name)
	}

	v, err := ctx.Reg("EBP")
	require.NoError(t, err)
	require.Equal(t, uint32(7), v)

	_, err = ctx.Reg("rax")
	require.Error(t, err)

	require.NoError(t, ctx.SetReg("esp", 0x1000))
	require.Equal(t, uint32(0x1000), ctx.Esp)
	require.Error(t, ctx.SetReg("xmm0", 1))
}

func TestRegisterContextFloatAccess(t *testing.T) {
	mem := &fakeMemory{base: 0x400000, data: make([]byte, 0x20)}
	ctx := &RegisterContext{Esp: 0x400004, mem: mem}

	require.NoError(t, ctx.WriteFloat(uintptr(ctx.Esp)+0xC, 1280))

	got, err := ctx.ReadFloat(uintptr(ctx.Esp) + 0xC)
	require.NoError(t, err)
	require.Equal(t, float32(1280), got)

	// 1280.0f little-endian.
	require.Equal(t, []byte{0x00, 0x00, 0xA0, 0x44}, mem.data[0x10:0x14])

	_, err = ctx.ReadFloat(0x500000)
	require.Error(t, err)
	require.Error(t, ctx.WriteFloat(0x3FFFFF, 1))
}

func TestHookInvokeCountsHits(t *testing.T) {
	var got []uint32
	h := &Hook{
		Addr: 0x401000,
		cb: func(ctx *RegisterContext) {
			got = append(got, ctx.Eax)
		},
	}

	h.invoke(&RegisterContext{Eax: 11})
	h.invoke(&RegisterContext{Eax: 22})

	require.Equal(t, []uint32{11, 22}, got)
	require.Equal(t, uint64(2), h.Hits())
}

func TestHookInvokeRecoversPanic(t *testing.T) {
	h := &Hook{
		Addr: 0x401000,
		cb: func(ctx *RegisterContext) {
			panic("script blew up")
		},
	}

	require.NotPanics(t, func() {
		h.invoke(&RegisterContext{})
	})
	require.Equal(t, uint64(1), h.Hits())
}

func TestHookCloseRunsRemoveOnce(t *testing.T) {
	removed := 0
	h := &Hook{
		Addr:   0x401000,
		remove: func() error { removed++; return nil },
	}

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.Equal(t, 1, removed)
}

func TestHookRegistryDoubleInstall(t *testing.T) {
	r := NewHookRegistry()

	h := &Hook{Addr: 0x401000}
	require.NoError(t, r.Add(h))
	require.Same(t, h, r.Get(0x401000))

	err := r.Add(&Hook{Addr: 0x401000})
	require.ErrorIs(t, err, ErrHookInstalled)

	require.NoError(t, r.Add(&Hook{Addr: 0x402000}))

	r.Remove(0x401000)
	require.Nil(t, r.Get(0x401000))
	require.NoError(t, r.Add(&Hook{Addr: 0x401000}))
}

func TestHookRegistryListSorted(t *testing.T) {
	r := NewHookRegistry()
	for _, addr := range []uintptr{0x403000, 0x401000, 0x402000} {
		require.NoError(t, r.Add(&Hook{Addr: addr}))
	}

	var addrs []uintptr
	for _, h := range r.List() {
		addrs = append(addrs, h.Addr)
	}

	require.Equal(t, []uintptr{0x401000, 0x402000, 0x403000}, addrs)
}

func TestHookRegistryCloseAll(t *testing.T) {
	r := NewHookRegistry()

	var order []uintptr
	mk := func(addr uintptr, err error) *Hook {
		return &Hook{
			Addr: addr,
			remove: func() error {
				order = append(order, addr)
				r.Remove(addr)
				return err
			},
		}
	}

	boom := fmt.Errorf("poke failed")
	require.NoError(t, r.Add(mk(0x402000, boom)))
	require.NoError(t, r.Add(mk(0x401000, nil)))
	require.NoError(t, r.Add(mk(0x403000, nil)))

	err := r.CloseAll()
	require.ErrorIs(t, err, boom)

	// Every site was restored even though one failed.
	require.Equal(t, []uintptr{0x401000, 0x402000, 0x403000}, order)
	require.Empty(t, r.List())
}

// vim: ai:ts=8:sw=8:noet:syntax=go
