//go:build !windows
// +build !windows

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
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/yookoala/realpath"
)

// Patcher drives one attached process. All ptrace calls happen on the
// engine goroutine, which stays locked to its OS thread for the whole
// session; everything else marshals to it through do. Memory access
// goes through /proc and works from any goroutine.
type Patcher struct {
	ExeName string
	pid     int
	Hooks   *HookRegistry

	cmds chan *engineCmd
	quit chan struct{}
	err  error

	// engine-side state, touched only on the engine thread
	tids    map[int]bool
	stopped int
}

type engineCmd struct {
	fn   func() error
	errc chan error
	last bool
}

func NewPatcher(pid int, exeName string) (*Patcher, error) {
	p := &Patcher{
		ExeName: exeName,
		pid:     pid,
		Hooks:   NewHookRegistry(),
		cmds:    make(chan *engineCmd, 16),
		quit:    make(chan struct{}),
		tids:    map[int]bool{},
	}

	if !is32bit(pid) {
		log.Printf("warning: pid %d does not look like a 32-bit x86 process", pid)
	}

	ready := make(chan error)
	go p.run(ready)
	err := <-ready
	if err != nil {
		return nil, err
	}

	log.Printf("Attached to pid %d", pid)
	return p, nil
}

func (p *Patcher) Pid() int {
	return p.pid
}

// run is the engine: it owns the ptrace session from attach to detach.
func (p *Patcher) run(ready chan error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := p.attachAll()
	if err != nil {
		p.detachAll()
		ready <- err
		return
	}

	for tid := range p.tids {
		err = syscall.PtraceCont(tid, 0)
		if err != nil {
			log.Printf("cannot continue task %d: %s", tid, err)
		}
	}
	ready <- nil

	var wstatus syscall.WaitStatus
	for {
		wpid, err := wait4(-1, &wstatus)
		if err == syscall.ECHILD {
			p.fail(fmt.Errorf("process %d is gone", p.pid))
			return
		}
		if err != nil {
			p.fail(fmt.Errorf("cannot wait: %w", err))
			return
		}

		if wstatus.Exited() || wstatus.Signaled() {
			delete(p.tids, wpid)
			if wpid == p.pid {
				p.fail(fmt.Errorf("process %d has exited", p.pid))
				return
			}
			continue
		}

		if !wstatus.Stopped() {
			continue
		}
		p.tids[wpid] = true
		p.stopped = wpid

		switch {
		case wstatus.TrapCause() == syscall.PTRACE_EVENT_CLONE:
			// The new task is traced already; it reports its own
			// first stop and gets resumed there.
			err = syscall.PtraceCont(wpid, 0)
		case wstatus.StopSignal() == syscall.SIGTRAP:
			if p.handleTrap(wpid) {
				return
			}
			err = nil
		case wstatus.StopSignal() == syscall.SIGSTOP:
			// Either the command kick or a fresh task; the stop is
			// swallowed either way.
			if p.drain() {
				return
			}
			err = syscall.PtraceCont(wpid, 0)
		default:
			// Not ours, hand it to the target.
			err = syscall.PtraceCont(wpid, int(wstatus.StopSignal()))
		}
		if err != nil {
			log.Printf("cannot continue task %d: %s", wpid, err)
		}
	}
}

// attachAll attaches every task of the target, looping until no new
// tasks show up, and asks for clone events so later tasks are traced
// from birth.
func (p *Patcher) attachAll() error {
	for {
		tids, err := listTasks(p.pid)
		if err != nil {
			return err
		}

		more := false
		for _, tid := range tids {
			if p.tids[tid] {
				continue
			}

			err = syscall.PtraceAttach(tid)
			if err == syscall.ESRCH {
				continue // raced with task exit
			}
			if err != nil {
				return fmt.Errorf("cannot attach ptrace to task %d: %w", tid, err)
			}

			_, err = wait4(tid, nil)
			if err != nil {
				return fmt.Errorf("cannot wait for task %d: %w", tid, err)
			}

			err = syscall.PtraceSetOptions(tid, syscall.PTRACE_O_TRACECLONE)
			if err != nil {
				log.Printf("cannot set options on task %d: %s", tid, err)
			}

			p.tids[tid] = true
			more = true
		}

		if !more {
			return nil
		}
	}
}

// handleTrap services one breakpoint pass: capture registers, run the
// callback, write the mutated state back, step the displaced original
// byte in place and re-arm. Reports whether the engine should quit.
func (p *Patcher) handleTrap(tid int) bool {
	var regs syscall.PtraceRegs
	err := syscall.PtraceGetRegs(tid, &regs)
	if err != nil {
		log.Printf("cannot read regs of task %d: %s", tid, err)
		syscall.PtraceCont(tid, 0)
		return false
	}

	// int3 stops with the PC just past the trap byte.
	site := uintptr(regs.Rip) - 1
	h := p.Hooks.Get(site)
	if h == nil {
		err = syscall.PtraceCont(tid, int(syscall.SIGTRAP))
		if err != nil {
			log.Printf("cannot forward trap to task %d: %s", tid, err)
		}
		return false
	}

	ctx := &RegisterContext{
		Eax: uint32(regs.Rax), Ebx: uint32(regs.Rbx),
		Ecx: uint32(regs.Rcx), Edx: uint32(regs.Rdx),
		Esi: uint32(regs.Rsi), Edi: uint32(regs.Rdi),
		Ebp: uint32(regs.Rbp), Esp: uint32(regs.Rsp),
		Eip: uint32(site), Eflags: uint32(regs.Eflags),
		mem: p,
	}
	h.invoke(ctx)

	regs.Rax = uint64(ctx.Eax)
	regs.Rbx = uint64(ctx.Ebx)
	regs.Rcx = uint64(ctx.Ecx)
	regs.Rdx = uint64(ctx.Edx)
	regs.Rsi = uint64(ctx.Esi)
	regs.Rdi = uint64(ctx.Edi)
	regs.Rbp = uint64(ctx.Ebp)
	regs.Rsp = uint64(ctx.Esp)
	regs.Rip = uint64(ctx.Eip)
	regs.Eflags = uint64(ctx.Eflags)
	err = syscall.PtraceSetRegs(tid, &regs)
	if err != nil {
		log.Printf("cannot write regs back to task %d: %s", tid, err)
		syscall.PtraceCont(tid, 0)
		return false
	}

	err = p.WriteMem(site, []byte{h.orig})
	if err != nil {
		log.Printf("cannot restore 0x%x: %s", site, err)
		syscall.PtraceCont(tid, 0)
		return false
	}

	var wstatus syscall.WaitStatus
	for {
		err = syscall.PtraceSingleStep(tid)
		if err != nil {
			log.Printf("cannot step task %d: %s", tid, err)
			return false
		}

		_, err = wait4(tid, &wstatus)
		if err != nil || !wstatus.Stopped() {
			return false // thread died mid-step
		}
		if wstatus.StopSignal() == syscall.SIGTRAP {
			break
		}
		// A signal beat the step and gets swallowed here; the site
		// must be re-armed before the target runs free again.
		log.Printf("suppressing signal %d during step @ 0x%x", wstatus.StopSignal(), site)
	}

	err = p.WriteMem(site, []byte{0xCC})
	if err != nil {
		log.Printf("cannot re-arm 0x%x: %s", site, err)
	}

	if p.drain() {
		return true
	}

	err = syscall.PtraceCont(tid, 0)
	if err != nil {
		log.Printf("cannot continue task %d: %s", tid, err)
	}
	return false
}

// drain runs queued commands while the target is stopped. Reports
// whether the engine should quit.
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

// do runs fn on the engine thread while the target is stopped. The
// SIGSTOP kick bounces the engine out of its wait; the stop itself is
// never seen by the target.
func (p *Patcher) do(fn func() error) error {
	return p.submit(&engineCmd{fn: fn, errc: make(chan error, 1)})
}

func (p *Patcher) submit(cmd *engineCmd) error {
	select {
	case p.cmds <- cmd:
	case <-p.quit:
		return p.err
	}

	err := syscall.Kill(p.pid, syscall.SIGSTOP)
	if err != nil {
		log.Printf("cannot kick pid %d: %s", p.pid, err)
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
			for _, h := range p.Hooks.List() {
				err := p.WriteMem(h.Addr, []byte{h.orig})
				if err != nil {
					log.Printf("cannot restore 0x%x: %s", h.Addr, err)
				}
				p.Hooks.Remove(h.Addr)
			}

			p.detachAll()
			log.Printf("Detached from pid %d", p.pid)
			return nil
		},
	})
}

func (p *Patcher) detachAll() {
	for tid := range p.tids {
		if tid != p.stopped {
			// A tracee detaches only from a stop.
			err := syscall.Tgkill(p.pid, tid, syscall.SIGSTOP)
			if err != nil {
				continue
			}

			var wstatus syscall.WaitStatus
			for {
				_, err = wait4(tid, &wstatus)
				if err != nil || !wstatus.Stopped() {
					break
				}
				if wstatus.StopSignal() == syscall.SIGSTOP {
					break
				}
				syscall.PtraceCont(tid, 0)
			}
		}

		err := syscall.PtraceDetach(tid)
		if err != nil && err != syscall.ESRCH {
			log.Printf("cannot detach from task %d: %s", tid, err)
		}
		delete(p.tids, tid)
	}
}

func (p *Patcher) ReadMem(addr uintptr, size int) ([]byte, error) {
	buf := make([]byte, size)
	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", p.pid), os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	defer mem.Close()

	_, err = mem.Seek(int64(addr), io.SeekStart)
	if err != nil {
		log.Printf("read error %x %x seek %s", addr, size, err)
		return nil, err
	}
	_, err = io.ReadFull(mem, buf)
	if err != nil {
		log.Printf("read error %x %x read %s", addr, size, err)
		return nil, err
	}

	return buf, nil
}

func (p *Patcher) WriteMem(addr uintptr, buf []byte) error {
	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", p.pid), os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	defer mem.Close()

	_, err = mem.Seek(int64(addr), io.SeekStart)
	if err != nil {
		return err
	}
	for len(buf) > 0 {
		n, err := mem.Write(buf)
		if err != nil {
			return err
		}

		buf = buf[n:]
	}

	return nil
}

type mapping struct {
	from, to uintptr
	perms    string
	path     string
}

func (p *Patcher) mappings() ([]mapping, error) {
	mapsBuf, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return nil, err
	}

	var maps []mapping
	for _, line := range strings.Split(string(mapsBuf), "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		flds := strings.Fields(line)
		if len(flds) < 5 {
			continue
		}

		var m mapping
		_, err = fmt.Sscanf(flds[0], "%x-%x", &m.from, &m.to)
		if err != nil {
			continue
		}
		m.perms = flds[1]
		if len(flds) >= 6 {
			m.path = strings.Join(flds[5:], " ")
		}

		maps = append(maps, m)
	}

	return maps, nil
}

// MainModule finds the executable mapping of the game image. Every
// pattern the fix table carries lives in the text segment, so that one
// mapping is the scan region.
func (p *Patcher) MainModule() (Module, error) {
	maps, err := p.mappings()
	if err != nil {
		return Module{}, err
	}

	name := p.ExeName
	if name == "" {
		exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", p.pid))
		if err == nil {
			name = baseName(exe)
		}
	}

	for _, m := range maps {
		if !strings.Contains(m.perms, "x") {
			continue
		}
		if m.path == "" || !strings.EqualFold(baseName(m.path), name) {
			continue
		}

		return Module{
			Path: m.path,
			Base: m.from,
			Size: int(m.to - m.from),
		}, nil
	}

	return Module{}, fmt.Errorf("%w: module %q in pid %d", ErrNotFound, name, p.pid)
}

func wait4(pid int, wstatus *syscall.WaitStatus) (int, error) {
	for {
		wpid, err := syscall.Wait4(pid, wstatus, syscall.WALL, nil)
		if err != syscall.EINTR {
			return wpid, err
		}
	}
}

func listTasks(pid int) ([]int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, fmt.Errorf("cannot list tasks of %d: %w", pid, err)
	}

	tids := make([]int, 0, len(entries))
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}

	return tids, nil
}

func is32bit(pid int) bool {
	f, err := os.Open(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return true // cannot tell, assume the best
	}
	defer f.Close()

	hdr := make([]byte, 5)
	_, err = io.ReadFull(f, hdr)
	if err != nil {
		return true
	}

	return bytes.Equal(hdr[:4], []byte{0x7F, 'E', 'L', 'F'}) && hdr[4] == 1
}

// FindProcess looks a process up by its executable name.
func FindProcess(name string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		b, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil || len(b) == 0 {
			continue
		}

		argv0 := string(bytes.SplitN(b, []byte{0}, 2)[0])
		if strings.EqualFold(baseName(argv0), name) {
			return pid, nil
		}
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

	cmd := exec.Command(path, args...)
	cmd.Dir = filepath.Dir(path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err = cmd.Start()
	if err != nil {
		return 0, fmt.Errorf("cannot start %q: %w", path, err)
	}

	ch := make(chan error, 1)
	go func() {
		ch <- cmd.Wait()
	}()

	t := time.NewTimer(2 * time.Second)
	defer t.Stop()
	select {
	case err = <-ch:
		if err == nil {
			err = fmt.Errorf("exited immediately")
		}
		return 0, fmt.Errorf("%q: %w", path, err)
	case <-t.C:
	}

	return cmd.Process.Pid, nil
}

func desktopResolution() Resolution {
	paths, _ := filepath.Glob("/sys/class/drm/*/modes")
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var res Resolution
		_, err = fmt.Sscanf(strings.SplitN(string(b), "\n", 2)[0], "%dx%d", &res.Width, &res.Height)
		if err == nil && !res.IsAuto() {
			return res
		}
	}

	log.Printf("cannot detect the desktop resolution, assuming 1920x1080")
	return Resolution{Width: 1920, Height: 1080}
}

// vim: ai:ts=8:sw=8:noet:syntax=go
