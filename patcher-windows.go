//go:build windows
// +build windows

/**
 * Copyright 2022 kmeaw
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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"unsafe"

	"github.com/yookoala/realpath"
	"golang.org/x/sys/windows"
)

var ERROR_OKAY syscall.Errno = 0
var ERROR_SEM_TIMEOUT syscall.Errno = 121

func S(input string) *uint16 {
	u, err := syscall.UTF16FromString(input)
	if err != nil {
		panic(err)
	}

	return &u[0]
}

const (
	EXCEPTION_DEBUG_EVENT      = 1
	CREATE_THREAD_DEBUG_EVENT  = 2
	CREATE_PROCESS_DEBUG_EVENT = 3
	EXIT_THREAD_DEBUG_EVENT    = 4
	EXIT_PROCESS_DEBUG_EVENT   = 5
	LOAD_DLL_DEBUG_EVENT       = 6
	UNLOAD_DLL_DEBUG_EVENT     = 7
	OUTPUT_DEBUG_STRING_EVENT  = 8
	RIP_EVENT                  = 9
)

const (
	DBG_CONTINUE              = 0x00010002
	DBG_EXCEPTION_NOT_HANDLED = 0x80010001
)

const (
	EXCEPTION_BREAKPOINT    = 0x80000003
	EXCEPTION_SINGLE_STEP   = 0x80000004
	STATUS_WX86_BREAKPOINT  = 0x4000001F
	STATUS_WX86_SINGLE_STEP = 0x4000001E
)

const (
	THREAD_GET_CONTEXT    = 0x0008
	THREAD_SET_CONTEXT    = 0x0010
	THREAD_SUSPEND_RESUME = 0x0002
)

const LIST_MODULES_ALL = 0x03

// The layouts below follow the 64-bit debugger ABI; a 64-bit build is
// what debugs the WOW64 game.

type exceptionRecord struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      uintptr
	ExceptionAddress     uintptr
	NumberParameters     uint32
	ExceptionInformation [15]uintptr
}

type exceptionDebugInfo struct {
	ExceptionRecord exceptionRecord
	FirstChance     uint32
}

type debugEvent struct {
	DebugEventCode uint32
	ProcessId      uint32
	ThreadId       uint32
	_dummy0        uint32
	Exception      exceptionDebugInfo
}

type wow64FloatingSaveArea struct {
	ControlWord   uint32
	StatusWord    uint32
	TagWord       uint32
	ErrorOffset   uint32
	ErrorSelector uint32
	DataOffset    uint32
	DataSelector  uint32
	RegisterArea  [80]byte
	Cr0NpxState   uint32
}

const WOW64_CONTEXT_FULL = 0x00010007

type wow64Context struct {
	ContextFlags uint32

	Dr0 uint32
	Dr1 uint32
	Dr2 uint32
	Dr3 uint32
	Dr6 uint32
	Dr7 uint32

	FloatSave wow64FloatingSaveArea

	SegGs uint32
	SegFs uint32
	SegEs uint32
	SegDs uint32

	Edi uint32
	Esi uint32
	Ebx uint32
	Edx uint32
	Ecx uint32
	Eax uint32

	Ebp    uint32
	Eip    uint32
	SegCs  uint32
	EFlags uint32
	Esp    uint32
	SegSs  uint32

	ExtendedRegisters [512]byte
}

const EFLAGS_TF = 0x100

type moduleInfo struct {
	BaseOfDll   uintptr
	SizeOfImage uint32
	EntryPoint  uintptr
}

// Patcher drives one attached process. The debug API wants its calls
// on the thread that attached, so the engine goroutine stays locked to
// its OS thread and everything else marshals to it through do.
type Patcher struct {
	ExeName  string
	pid      int
	hProcess windows.Handle
	Hooks    *HookRegistry

	ReadProcessMemory         *windows.LazyProc
	WriteProcessMemory        *windows.LazyProc
	VirtualProtectEx          *windows.LazyProc
	FlushInstructionCache     *windows.LazyProc
	WaitForDebugEventEx       *windows.LazyProc
	ContinueDebugEvent        *windows.LazyProc
	DebugActiveProcess        *windows.LazyProc
	DebugActiveProcessStop    *windows.LazyProc
	DebugSetProcessKillOnExit *windows.LazyProc
	Wow64GetThreadContext     *windows.LazyProc
	Wow64SetThreadContext     *windows.LazyProc
	EnumProcessModulesEx      *windows.LazyProc
	GetModuleInformation      *windows.LazyProc
	GetModuleFileNameEx       *windows.LazyProc

	cmds chan *engineCmd
	quit chan struct{}
	err  error

	// engine-side state, touched only on the engine thread
	stepping map[uint32]uintptr
}

type engineCmd struct {
	fn   func() error
	errc chan error
	last bool
}

func NewPatcher(pid int, exeName string) (*Patcher, error) {
	hProcess, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("cannot open pid %d: %w", pid, err)
	}

	var isWow64 bool
	err = windows.IsWow64Process(hProcess, &isWow64)
	if err != nil {
		windows.CloseHandle(hProcess)
		return nil, err
	}
	if !isWow64 {
		log.Printf("warning: pid %d does not look like a 32-bit x86 process", pid)
	}

	kernel32 := windows.NewLazySystemDLL("kernel32.dll")
	err = kernel32.Load()
	if err != nil {
		return nil, err
	}

	psapi := windows.NewLazySystemDLL("psapi.dll")
	err = psapi.Load()
	if err != nil {
		return nil, err
	}

	p := &Patcher{
		ExeName:  exeName,
		pid:      pid,
		hProcess: hProcess,
		Hooks:    NewHookRegistry(),

		ReadProcessMemory:         kernel32.NewProc("ReadProcessMemory"),
		WriteProcessMemory:        kernel32.NewProc("WriteProcessMemory"),
		VirtualProtectEx:          kernel32.NewProc("VirtualProtectEx"),
		FlushInstructionCache:     kernel32.NewProc("FlushInstructionCache"),
		WaitForDebugEventEx:       kernel32.NewProc("WaitForDebugEventEx"),
		ContinueDebugEvent:        kernel32.NewProc("ContinueDebugEvent"),
		DebugActiveProcess:        kernel32.NewProc("DebugActiveProcess"),
		DebugActiveProcessStop:    kernel32.NewProc("DebugActiveProcessStop"),
		DebugSetProcessKillOnExit: kernel32.NewProc("DebugSetProcessKillOnExit"),
		Wow64GetThreadContext:     kernel32.NewProc("Wow64GetThreadContext"),
		Wow64SetThreadContext:     kernel32.NewProc("Wow64SetThreadContext"),
		EnumProcessModulesEx:      psapi.NewProc("EnumProcessModulesEx"),
		GetModuleInformation:      psapi.NewProc("GetModuleInformation"),
		GetModuleFileNameEx:       psapi.NewProc("GetModuleFileNameExW"),

		cmds:     make(chan *engineCmd, 16),
		quit:     make(chan struct{}),
		stepping: map[uint32]uintptr{},
	}

	for _, proc := range []*windows.LazyProc{
		p.ReadProcessMemory,
		p.WriteProcessMemory,
		p.VirtualProtectEx,
		p.FlushInstructionCache,
		p.WaitForDebugEventEx,
		p.ContinueDebugEvent,
		p.DebugActiveProcess,
		p.DebugActiveProcessStop,
		p.DebugSetProcessKillOnExit,
		p.Wow64GetThreadContext,
		p.Wow64SetThreadContext,
		p.EnumProcessModulesEx,
		p.GetModuleInformation,
		p.GetModuleFileNameEx,
	} {
		err = proc.Find()
		if err != nil {
			windows.CloseHandle(hProcess)
			return nil, fmt.Errorf("cannot find %q: %w", proc.Name, err)
		}
	}

	ready := make(chan error)
	go p.run(ready)
	err = <-ready
	if err != nil {
		windows.CloseHandle(hProcess)
		return nil, err
	}

	log.Printf("Attached to pid %d", pid)
	return p, nil
}

func (p *Patcher) Pid() int {
	return p.pid
}

// run is the engine: it owns the debug session from attach to detach.
func (p *Patcher) run(ready chan error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	_, _, err := p.DebugActiveProcess.Call(uintptr(p.pid))
	if err != nil && err != ERROR_OKAY {
		ready <- fmt.Errorf("cannot attach debugger to pid %d: %w", p.pid, err)
		return
	}

	// The target must outlive its debugger.
	_, _, err = p.DebugSetProcessKillOnExit.Call(0)
	if err != nil && err != ERROR_OKAY {
		log.Printf("cannot clear kill-on-exit: %s", err)
	}

	ready <- nil

	var ev debugEvent
	saw_first_break := false
	for {
		if p.drain() {
			return
		}

		ret, _, err := p.WaitForDebugEventEx.Call(uintptr(unsafe.Pointer(&ev)), 50)
		if ret == 0 {
			if err == ERROR_SEM_TIMEOUT {
				continue
			}
			p.fail(fmt.Errorf("cannot wait for debug events: %w", err))
			return
		}

		quit := false
		status := uintptr(DBG_EXCEPTION_NOT_HANDLED)
		switch ev.DebugEventCode {
		case EXIT_PROCESS_DEBUG_EVENT:
			quit = true
			status = DBG_CONTINUE
		case EXCEPTION_DEBUG_EVENT:
			switch ev.Exception.ExceptionRecord.ExceptionCode {
			case EXCEPTION_BREAKPOINT, STATUS_WX86_BREAKPOINT:
				site := ev.Exception.ExceptionRecord.ExceptionAddress
				if p.handleTrap(ev.ThreadId, site) {
					status = DBG_CONTINUE
				} else if !saw_first_break {
					// the attach breakpoint from the loader
					status = DBG_CONTINUE
				}
				saw_first_break = true
			case EXCEPTION_SINGLE_STEP, STATUS_WX86_SINGLE_STEP:
				if p.finishStep(ev.ThreadId) {
					status = DBG_CONTINUE
				}
			}
		case CREATE_PROCESS_DEBUG_EVENT, LOAD_DLL_DEBUG_EVENT:
			// These events lead with a file handle the debugger owns.
			windows.CloseHandle(*(*windows.Handle)(unsafe.Pointer(&ev.Exception)))
			status = DBG_CONTINUE
		default:
			status = DBG_CONTINUE
		}

		_, _, err = p.ContinueDebugEvent.Call(uintptr(ev.ProcessId), uintptr(ev.ThreadId), status)
		if err != nil && err != ERROR_OKAY {
			log.Printf("cannot continue pid %d: %s", ev.ProcessId, err)
		}

		if quit {
			p.fail(fmt.Errorf("process %d has exited", p.pid))
			return
		}
	}
}

// handleTrap services one breakpoint pass: capture the WOW64 context,
// run the callback, write the mutated state back, restore the original
// byte and let the trap flag step it; finishStep re-arms afterwards.
func (p *Patcher) handleTrap(tid uint32, site uintptr) bool {
	h := p.Hooks.Get(site)
	if h == nil {
		return false
	}

	thread, err := windows.OpenThread(
		THREAD_GET_CONTEXT|THREAD_SET_CONTEXT|THREAD_SUSPEND_RESUME,
		false,
		tid,
	)
	if err != nil {
		log.Printf("cannot open thread %d: %s", tid, err)
		return false
	}
	defer windows.CloseHandle(thread)

	var wctx wow64Context
	wctx.ContextFlags = WOW64_CONTEXT_FULL
	_, _, err = p.Wow64GetThreadContext.Call(
		uintptr(thread),
		uintptr(unsafe.Pointer(&wctx)),
	)
	if err != nil && err != ERROR_OKAY {
		log.Printf("cannot read the context of thread %d: %s", tid, err)
		return false
	}

	ctx := &RegisterContext{
		Eax: wctx.Eax, Ebx: wctx.Ebx,
		Ecx: wctx.Ecx, Edx: wctx.Edx,
		Esi: wctx.Esi, Edi: wctx.Edi,
		Ebp: wctx.Ebp, Esp: wctx.Esp,
		Eip: uint32(site), Eflags: wctx.EFlags,
		mem: p,
	}
	h.invoke(ctx)

	wctx.Eax = ctx.Eax
	wctx.Ebx = ctx.Ebx
	wctx.Ecx = ctx.Ecx
	wctx.Edx = ctx.Edx
	wctx.Esi = ctx.Esi
	wctx.Edi = ctx.Edi
	wctx.Ebp = ctx.Ebp
	wctx.Esp = ctx.Esp
	wctx.Eip = ctx.Eip
	// TF steps the displaced original byte; it clears itself after one
	// instruction.
	wctx.EFlags = ctx.Eflags | EFLAGS_TF

	err = p.WriteMem(site, []byte{h.orig})
	if err != nil {
		log.Printf("cannot restore 0x%x: %s", site, err)
	}

	_, _, err = p.Wow64SetThreadContext.Call(
		uintptr(thread),
		uintptr(unsafe.Pointer(&wctx)),
	)
	if err != nil && err != ERROR_OKAY {
		log.Printf("cannot write the context of thread %d: %s", tid, err)
	}

	p.stepping[tid] = site
	return true
}

func (p *Patcher) finishStep(tid uint32) bool {
	site, ok := p.stepping[tid]
	if !ok {
		return false
	}
	delete(p.stepping, tid)

	// Do not re-arm a site whose hook went away mid-step.
	if p.Hooks.Get(site) == nil {
		return true
	}

	err := p.WriteMem(site, []byte{0xCC})
	if err != nil {
		log.Printf("cannot re-arm 0x%x: %s", site, err)
	}

	return true
}

// drain runs queued commands. Reports whether the engine should quit.
func (p *Patcher) drain() bool {
	for {
		select {
		case cmd := <-p.cmds:
			cmd.errc <- cmd.fn()
			if cmd.last {
				p.fail(fmt.Errorf("detached from pid %d", p.pid))
				return true
			}
		default:
			return false
		}
	}
}

// fail ends the session: every pending and future command gets err.
func (p *Patcher) fail(err error) {
	p.err = err
	close(p.quit)
	for {
		select {
		case cmd := <-p.cmds:
			cmd.errc <- err
		default:
			return
		}
	}
}

// do runs fn on the engine thread. The engine polls between debug
// events, so no kick is needed.
func (p *Patcher) do(fn func() error) error {
	return p.submit(&engineCmd{fn: fn, errc: make(chan error, 1)})
}

func (p *Patcher) submit(cmd *engineCmd) error {
	select {
	case p.cmds <- cmd:
	case <-p.quit:
		return p.err
	}

	select {
	case err := <-cmd.errc:
		return err
	case <-p.quit:
		return p.err
	}
}

// InstallHook arms a breakpoint at addr. The displaced byte lives in
// the returned Hook until Close puts it back.
func (p *Patcher) InstallHook(addr uintptr, cb MidCallback) (*Hook, error) {
	var h *Hook
	err := p.do(func() error {
		orig, err := p.ReadMem(addr, 1)
		if err != nil {
			return fmt.Errorf("cannot peek 0x%x: %w", addr, err)
		}

		h = &Hook{
			Addr: addr,
			orig: orig[0],
			cb:   cb,
			remove: func() error {
				return p.removeHook(addr)
			},
		}
		err = p.Hooks.Add(h)
		if err != nil {
			return err
		}

		err = p.WriteMem(addr, []byte{0xCC})
		if err != nil {
			p.Hooks.Remove(addr)
			return fmt.Errorf("cannot poke 0x%x: %w", addr, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return h, nil
}

func (p *Patcher) removeHook(addr uintptr) error {
	return p.do(func() error {
		h := p.Hooks.Get(addr)
		if h == nil {
			return nil
		}

		err := p.WriteMem(addr, []byte{h.orig})
		if err != nil {
			return fmt.Errorf("cannot restore 0x%x: %w", addr, err)
		}

		p.Hooks.Remove(addr)
		return nil
	})
}

// Detach restores every hooked site and lets the target run free.
func (p *Patcher) Detach() error {
	return p.submit(&engineCmd{
		last: true,
		errc: make(chan error, 1),
		fn: func() error {
			// Flush pending steps first so nobody traps without a
			// debugger around.
			var ev debugEvent
			for len(p.stepping) > 0 {
				ret, _, _ := p.WaitForDebugEventEx.Call(uintptr(unsafe.Pointer(&ev)), 100)
				if ret == 0 {
					break
				}
				if ev.DebugEventCode == EXCEPTION_DEBUG_EVENT {
					delete(p.stepping, ev.ThreadId)
				}
				p.ContinueDebugEvent.Call(uintptr(ev.ProcessId), uintptr(ev.ThreadId), DBG_CONTINUE)
			}

			for _, h := range p.Hooks.List() {
				err := p.WriteMem(h.Addr, []byte{h.orig})
				if err != nil {
					log.Printf("cannot restore 0x%x: %s", h.Addr, err)
				}
				p.Hooks.Remove(h.Addr)
			}

			_, _, err := p.DebugActiveProcessStop.Call(uintptr(p.pid))
			if err != nil && err != ERROR_OKAY {
				return fmt.Errorf("cannot detach from pid %d: %w", p.pid, err)
			}

			windows.CloseHandle(p.hProcess)
			log.Printf("Detached from pid %d", p.pid)
			return nil
		},
	})
}

func (p *Patcher) ReadMem(addr uintptr, size int) ([]byte, error) {
	buf := make([]byte, size)
	_, _, err := p.ReadProcessMemory.Call(
		uintptr(p.hProcess),
		addr,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		0,
	)
	if err != nil && err != ERROR_OKAY {
		return nil, fmt.Errorf(
			"ReadProcessMemory(%x, %x, nSize=%d) has failed: %w",
			p.hProcess,
			addr,
			len(buf),
			err,
		)
	}

	return buf, nil
}

func (p *Patcher) WriteMem(addr uintptr, buf []byte) error {
	var old_protect uint32
	_, _, err := p.VirtualProtectEx.Call(
		uintptr(p.hProcess),
		addr,
		uintptr(len(buf)),
		windows.PAGE_EXECUTE_READWRITE,
		uintptr(unsafe.Pointer(&old_protect)),
	)
	if err != nil && err != ERROR_OKAY {
		return fmt.Errorf(
			"VirtualProtectEx(%x, %x, nSize=%d) has failed: %w",
			p.hProcess,
			addr,
			len(buf),
			err,
		)
	}

	_, _, err = p.WriteProcessMemory.Call(
		uintptr(p.hProcess),
		addr,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		0,
	)
	if err != nil && err != ERROR_OKAY {
		return fmt.Errorf(
			"WriteProcessMemory(%x, %x, nSize=%d) has failed: %w",
			p.hProcess,
			addr,
			len(buf),
			err,
		)
	}

	p.VirtualProtectEx.Call(
		uintptr(p.hProcess),
		addr,
		uintptr(len(buf)),
		uintptr(old_protect),
		uintptr(unsafe.Pointer(&old_protect)),
	)
	p.FlushInstructionCache.Call(
		uintptr(p.hProcess),
		addr,
		uintptr(len(buf)),
	)

	return nil
}

// MainModule finds the game image. With no exe name configured the
// first enumerated module is the main image.
func (p *Patcher) MainModule() (Module, error) {
	hmods := make([]windows.Handle, 1024)
	var needed uint32
	ret, _, err := p.EnumProcessModulesEx.Call(
		uintptr(p.hProcess),
		uintptr(unsafe.Pointer(&hmods[0])),
		uintptr(len(hmods))*unsafe.Sizeof(hmods[0]),
		uintptr(unsafe.Pointer(&needed)),
		LIST_MODULES_ALL,
	)
	if ret == 0 {
		return Module{}, fmt.Errorf("EnumProcessModulesEx has failed: %w", err)
	}

	count := int(uintptr(needed) / unsafe.Sizeof(hmods[0]))
	if count > len(hmods) {
		count = len(hmods)
	}

	name_buf := make([]uint16, 260)
	for i := 0; i < count; i++ {
		ret, _, _ = p.GetModuleFileNameEx.Call(
			uintptr(p.hProcess),
			uintptr(hmods[i]),
			uintptr(unsafe.Pointer(&name_buf[0])),
			uintptr(len(name_buf)),
		)
		if ret == 0 {
			continue
		}

		path := windows.UTF16ToString(name_buf[:ret])
		if p.ExeName != "" && !strings.EqualFold(baseName(path), p.ExeName) {
			continue
		}

		var mi moduleInfo
		_, _, err = p.GetModuleInformation.Call(
			uintptr(p.hProcess),
			uintptr(hmods[i]),
			uintptr(unsafe.Pointer(&mi)),
			unsafe.Sizeof(mi),
		)
		if err != nil && err != ERROR_OKAY {
			return Module{}, fmt.Errorf("GetModuleInformation has failed: %w", err)
		}

		return Module{
			Path: path,
			Base: mi.BaseOfDll,
			Size: int(mi.SizeOfImage),
		}, nil
	}

	return Module{}, fmt.Errorf("%w: module %q in pid %d", ErrNotFound, p.ExeName, p.pid)
}

// FindProcess looks a process up by its executable name.
func FindProcess(name string) (int, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("cannot snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	err = windows.Process32First(snapshot, &pe)
	for err == nil {
		if strings.EqualFold(windows.UTF16ToString(pe.ExeFile[:]), name) {
			return int(pe.ProcessID), nil
		}
		err = windows.Process32Next(snapshot, &pe)
	}

	return 0, fmt.Errorf("%w: process %q", ErrNotFound, name)
}

// LaunchGame starts the game and reports its pid once it survives its
// first moments.
func LaunchGame(exe string, args []string) (int, error) {
	path, err := realpath.Realpath(exe)
	if err != nil {
		return 0, fmt.Errorf("cannot resolve %q: %w", exe, err)
	}

	dir, file := filepath.Split(path)
	if dir != "" {
		err = os.Chdir(dir)
		if err != nil {
			return 0, err
		}
	}

	var si windows.StartupInfo
	var pi windows.ProcessInformation
	err = windows.CreateProcess(
		nil,
		S(strings.Join(append([]string{file}, args...), " ")),
		nil, nil, false,
		windows.NORMAL_PRIORITY_CLASS|
			windows.CREATE_NEW_CONSOLE|
			windows.CREATE_NEW_PROCESS_GROUP,
		nil,
		nil,
		&si,
		&pi,
	)
	if err != nil {
		return 0, fmt.Errorf("cannot start %q: %w", path, err)
	}

	log.Printf("New process with %d has been created.", pi.ProcessId)

	ev, err := windows.WaitForSingleObject(pi.Process, 2000)
	windows.CloseHandle(pi.Thread)
	if err == nil && ev == windows.WAIT_OBJECT_0 {
		windows.CloseHandle(pi.Process)
		return 0, fmt.Errorf("%q: exited immediately", path)
	}
	windows.CloseHandle(pi.Process)

	return int(pi.ProcessId), nil
}

const (
	SM_CXSCREEN = 0
	SM_CYSCREEN = 1
)

func desktopResolution() Resolution {
	user32 := windows.NewLazySystemDLL("user32.dll")
	gsm := user32.NewProc("GetSystemMetrics")
	err := gsm.Find()
	if err == nil {
		w, _, _ := gsm.Call(SM_CXSCREEN)
		h, _, _ := gsm.Call(SM_CYSCREEN)
		if w != 0 && h != 0 {
			return Resolution{Width: int(w), Height: int(h)}
		}
	}

	log.Printf("cannot detect the desktop resolution, assuming 1920x1080")
	return Resolution{Width: 1920, Height: 1080}
}

// vim: ai:ts=8:sw=8:noet:syntax=go
