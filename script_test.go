/**
 * Copyright 2025 kmeaw
 *
 * Licensed under the GNU Affero General Public License (AGPL).
 *
 * This program is free software: you can redistribute it and/or modify it
 * under the terms of the GNU Affero General Public License as published by the
 * Free Software Foundation, version 3 of the License.
 *
 * This program is distributed in the hope that it will be useful, but WITHOUT
 * ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
 * FITNESS FOR A PARTICULAR PURPOSE.  See the GNU Affero General Public License
 * for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package main

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEngine() (*ScriptEngine, *Fixer) {
	fx := NewFixer(testFixConfig(), nil)
	return NewScriptEngine(fx, NewAlerter()), fx
}

func TestScriptAddFixRunsThroughPipeline(t *testing.T) {
	image := testImage()
	copy(image[0x150:], []byte{0xF3, 0x0F, 0x10, 0x05})

	eng, fx := newTestEngine()
	require.NoError(t, eng.Load(`
add_fix("pillarbox", "F3 0F 10 05", 1, func() {
	write_float(reg("esp") + 8, width)
	write_float(reg("esp") + 12, height)
})
`))
	require.Len(t, fx.fixes, fx.builtin+1)

	ft := newFakeTarget(image)
	require.NoError(t, fx.Apply(ft))

	r := resultByName(t, fx.Results(), "pillarbox")
	require.NoError(t, r.Err)
	require.Equal(t, uintptr(0x151), r.HookAt)

	ft.trigger(t, testBase+0x151, &RegisterContext{Esp: uint32(testBase + 0x160)})
	require.Equal(t, float32(3440), ft.floatAt(t, testBase+0x168))
	require.Equal(t, float32(1440), ft.floatAt(t, testBase+0x16C))
}

func TestScriptRegisterAndMemoryHelpers(t *testing.T) {
	image := testImage()
	copy(image[0x150:], []byte{0x66, 0x0F, 0xD6, 0x45, 0xF0})
	binary.LittleEndian.PutUint32(image[0x190:], 41)

	eng, fx := newTestEngine()
	require.NoError(t, eng.Load(`
add_fix("stash", "66 0F D6 45 ??", 2, func() {
	v = read_u32(reg("ebp") + 16)
	set_reg("eax", v + 1)
	write_u32(reg("ebp") + 16, 7)
})
`))

	ft := newFakeTarget(image)
	require.NoError(t, fx.Apply(ft))

	ctx := &RegisterContext{Ebp: uint32(testBase + 0x180)}
	ft.trigger(t, testBase+0x152, ctx)

	require.Equal(t, uint32(42), ctx.Eax)
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(image[0x190:]))
}

func TestScriptHelpersOutsideHookAreInert(t *testing.T) {
	eng, _ := newTestEngine()

	// No thread is stopped during Load, so the helpers turn into
	// no-ops instead of dereferencing a missing context.
	require.NoError(t, eng.Load(`
x = reg("eax")
set_reg("eax", 1)
write_float(4096, 1.5)
y = read_u32(4096)
`))
}

func TestScriptDynamicAddFixIsRejected(t *testing.T) {
	image := testImage()
	copy(image[0x150:], []byte{0xF3, 0x0F, 0x10, 0x05})

	eng, fx := newTestEngine()
	require.NoError(t, eng.Load(`
add_fix("outer", "F3 0F 10 05", 1, func() {
	add_fix("inner", "D9 46 64", 0, func() { })
})
`))

	ft := newFakeTarget(image)
	require.NoError(t, fx.Apply(ft))
	ft.trigger(t, testBase+0x151, &RegisterContext{})

	// The late add_fix is refused, only the load-time one stays.
	require.Len(t, fx.fixes, fx.builtin+1)
}

func TestScriptCallbackErrorIsContained(t *testing.T) {
	image := testImage()
	copy(image[0x150:], []byte{0xF3, 0x0F, 0x10, 0x05})

	eng, fx := newTestEngine()
	require.NoError(t, eng.Load(`
add_fix("boom", "F3 0F 10 05", 1, func() {
	no_such_helper()
})
`))

	ft := newFakeTarget(image)
	require.NoError(t, fx.Apply(ft))

	h := ft.hooks.Get(testBase + 0x151)
	require.NotNil(t, h)
	require.NotPanics(t, func() {
		ft.trigger(t, testBase+0x151, &RegisterContext{})
	})
	require.Equal(t, uint64(1), h.Hits())
}

func TestScriptReloadDropsOldFixes(t *testing.T) {
	eng, fx := newTestEngine()

	require.NoError(t, eng.Load(`add_fix("one", "F3 0F 10 05", 1, func() { })`))
	require.Len(t, fx.fixes, fx.builtin+1)

	require.NoError(t, eng.Load(`x = 1`))
	require.Len(t, fx.fixes, fx.builtin)

	require.NoError(t, eng.Load(`add_fix("two", "D9 46 64", 0, func() { })`))
	require.Len(t, fx.fixes, fx.builtin+1)
	require.Equal(t, "two", fx.fixes[fx.builtin].Name)
}

func TestScriptLoadReportsParseError(t *testing.T) {
	eng, _ := newTestEngine()
	require.Error(t, eng.Load(`add_fix(`))
}

func TestScriptAlertReachesSubscribers(t *testing.T) {
	eng, _ := newTestEngine()

	ch := eng.Alerter.Subscribe()
	eng.Alerter.Broadcast(Alert{Text: "sync"})
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		// The subscriber missed the sync event, it still sees
		// everything from here on.
	}

	require.NoError(t, eng.Load(`alert("letterbox gone")`))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Text == "sync" {
				continue
			}
			require.Equal(t, "script", ev.Fix)
			require.Equal(t, "letterbox gone", ev.Text)
			return
		case <-deadline:
			t.Fatal("no alert delivered")
		}
	}
}

// vim: ai:ts=8:sw=8:noet:syntax=go
