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
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Memory is the process-memory access a hook callback is allowed.
type Memory interface {
	ReadMem(addr uintptr, n int) ([]byte, error)
	WriteMem(addr uintptr, data []byte) error
}

// RegisterContext is the register file of a thread stopped at a hook
// site. Callbacks may overwrite any field; the mutated state is written
// back when the thread resumes, untouched fields keep their captured
// values. The context is only valid for the duration of the callback.
type RegisterContext struct {
	Eax    uint32
	Ebx    uint32
	Ecx    uint32
	Edx    uint32
	Esi    uint32
	Edi    uint32
	Ebp    uint32
	Esp    uint32
	Eip    uint32
	Eflags uint32

	mem Memory
}

func (ctx *RegisterContext) Reg(name string) (uint32, error) {
	switch strings.ToLower(name) {
	case "eax":
		return ctx.Eax, nil
	case "ebx":
		return ctx.Ebx, nil
	case "ecx":
		return ctx.Ecx, nil
	case "edx":
		return ctx.Edx, nil
	case "esi":
		return ctx.Esi, nil
	case "edi":
		return ctx.Edi, nil
	case "ebp":
		return ctx.Ebp, nil
	case "esp":
		return ctx.Esp, nil
	case "eip":
		return ctx.Eip, nil
	case "eflags":
		return ctx.Eflags, nil
	}

	return 0, fmt.Errorf("unknown register %q", name)
}

func (ctx *RegisterContext) SetReg(name string, value uint32) error {
	switch strings.ToLower(name) {
	case "eax":
		ctx.Eax = value
	case "ebx":
		ctx.Ebx = value
	case "ecx":
		ctx.Ecx = value
	case "edx":
		ctx.Edx = value
	case "esi":
		ctx.Esi = value
	case "edi":
		ctx.Edi = value
	case "ebp":
		ctx.Ebp = value
	case "esp":
		ctx.Esp = value
	case "eip":
		ctx.Eip = value
	case "eflags":
		ctx.Eflags = value
	default:
		return fmt.Errorf("unknown register %q", name)
	}

	return nil
}

func (ctx *RegisterContext) ReadU32(addr uintptr) (uint32, error) {
	buf, err := ctx.mem.ReadMem(addr, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf), nil
}

func (ctx *RegisterContext) WriteU32(addr uintptr, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)

	return ctx.mem.WriteMem(addr, buf[:])
}

func (ctx *RegisterContext) ReadFloat(addr uintptr) (float32, error) {
	value, err := ctx.ReadU32(addr)
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(value), nil
}

func (ctx *RegisterContext) WriteFloat(addr uintptr, value float32) error {
	return ctx.WriteU32(addr, math.Float32bits(value))
}

// MidCallback runs while the hooked thread is stopped at the hook site.
// It must not install or close hooks; the engine that would carry that
// out is the one waiting on the callback.
type MidCallback func(ctx *RegisterContext)

// Hook is one installed mid-hook. It owns the byte it displaced until
// Close puts it back; nothing closes a hook implicitly, one left open
// lives until the target exits.
type Hook struct {
	Addr uintptr

	mu     sync.Mutex
	orig   byte
	cb     MidCallback
	remove func() error
	closed bool
	hits   uint64
}

func (h *Hook) invoke(ctx *RegisterContext) {
	// A callback panic would strand the stopped target, so it stops here.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hook @ 0x%x: callback panic: %v", h.Addr, r)
		}
	}()

	atomic.AddUint64(&h.hits, 1)
	h.cb(ctx)
}

// Hits reports how many times the hooked site has been passed.
func (h *Hook) Hits() uint64 {
	return atomic.LoadUint64(&h.hits)
}

// Close restores the displaced byte and unregisters the hook. Closing
// twice is a no-op.
func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.remove == nil {
		return nil
	}

	return h.remove()
}

// HookRegistry tracks live hooks by site address. Entries stay until
// Close or CloseAll; nothing expires them.
type HookRegistry struct {
	mu    sync.Mutex
	hooks map[uintptr]*Hook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[uintptr]*Hook),
	}
}

func (r *HookRegistry) Add(h *Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hooks[h.Addr]; ok {
		return fmt.Errorf("%w @ 0x%x", ErrHookInstalled, h.Addr)
	}

	r.hooks[h.Addr] = h
	return nil
}

func (r *HookRegistry) Get(addr uintptr) *Hook {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hooks[addr]
}

func (r *HookRegistry) Remove(addr uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.hooks, addr)
}

func (r *HookRegistry) List() []*Hook {
	r.mu.Lock()
	defer r.mu.Unlock()

	hooks := make([]*Hook, 0, len(r.hooks))
	for _, h := range r.hooks {
		hooks = append(hooks, h)
	}
	sort.Slice(hooks, func(i, j int) bool {
		return hooks[i].Addr < hooks[j].Addr
	})

	return hooks
}

// CloseAll restores every registered site. The first failure is
// returned, the rest are logged; restoration is attempted for all.
func (r *HookRegistry) CloseAll() error {
	var first error
	for _, h := range r.List() {
		err := h.Close()
		if err == nil {
			continue
		}

		if first == nil {
			first = err
		} else {
			log.Printf("cannot close hook @ 0x%x: %s", h.Addr, err)
		}
	}

	return first
}

var ErrHookInstalled = fmt.Errorf("hook already installed")

// vim: ai:ts=8:sw=8:noet:syntax=go
