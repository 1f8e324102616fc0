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
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Module is one executable image mapped in the target process.
type Module struct {
	Path string
	Base uintptr
	Size int
}

// baseName is filepath.Base for both path flavours; module paths cross
// the OS boundary under wine.
func baseName(path string) string {
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// Target is the process surface the fix pipeline runs against.
type Target interface {
	Memory
	MainModule() (Module, error)
	InstallHook(addr uintptr, cb MidCallback) (*Hook, error)
}

// Fix is one patch site: a pattern locating the site, an offset into
// the match where the hook goes, a gate deciding whether it applies,
// and a Prepare that builds the callback once the site is resolved.
// Prepare sees the image copy and the match offset in it, so it can
// pull operands out of the matched code.
type Fix struct {
	Name       string
	Pattern    string
	HookOffset uintptr
	Gate       func(c *Config) bool
	Prepare    func(t Target, res Resolution, image []byte, off int) (MidCallback, error)
}

// FixResult is the recorded outcome of one fix.
type FixResult struct {
	Name    string
	Enabled bool
	Site    uintptr // module-relative match address
	HookAt  uintptr // module-relative hook address
	Hook    *Hook
	Err     error
}

func masterGate(c *Config) bool {
	return c.MasterEnable
}

func centerHudGate(c *Config) bool {
	return c.MasterEnable && c.Fixes.CenterHud.Enable
}

// matchOne resolves a scan to exactly one match offset. Zero matches is
// ErrNotFound. Several matches is ErrAmbiguous with every address
// listed; the first one is never taken silently, a duplicated site
// means the signature no longer identifies the code it was made for.
func matchOne(name string, p Pattern, image []byte) (int, error) {
	offs := p.Find(image)
	switch len(offs) {
	case 0:
		return 0, fmt.Errorf("%s: %w: pattern '%s'", name, ErrNotFound, p)
	case 1:
		return offs[0], nil
	}

	addrs := make([]string, len(offs))
	for i, off := range offs {
		addrs[i] = fmt.Sprintf("0x%x", off)
	}

	return 0, fmt.Errorf("%s: %w: pattern '%s' @ %s", name, ErrAmbiguous, p,
		strings.Join(addrs, ", "))
}

// Fixer owns the fix table and runs it against an attached target.
type Fixer struct {
	Config  *Config
	Alerter *Alerter
	Desktop func() Resolution // overrides the OS lookup when set

	mu      sync.Mutex
	fixes   []Fix
	builtin int
	results []FixResult
}

func NewFixer(config *Config, alerter *Alerter) *Fixer {
	return &Fixer{
		Config:  config,
		Alerter: alerter,
		fixes:   append([]Fix(nil), builtinFixes...),
		builtin: len(builtinFixes),
	}
}

// AddFix registers an extra fix ahead of the next Apply. A nil gate
// means the fix follows masterEnable.
func (fx *Fixer) AddFix(f Fix) error {
	if f.Name == "" {
		return fmt.Errorf("fix needs a name")
	}
	if f.Prepare == nil {
		return fmt.Errorf("fix %q has no action", f.Name)
	}
	if _, err := ParsePattern(f.Pattern); err != nil {
		return err
	}

	fx.mu.Lock()
	defer fx.mu.Unlock()

	for _, old := range fx.fixes {
		if old.Name == f.Name {
			return fmt.Errorf("fix %q is already defined", f.Name)
		}
	}

	fx.fixes = append(fx.fixes, f)
	return nil
}

// ResetExtra drops every fix registered on top of the built-in table.
// Script reloads call this before re-registering.
func (fx *Fixer) ResetExtra() {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	fx.fixes = fx.fixes[:fx.builtin]
}

// Results returns the outcome of the last Apply.
func (fx *Fixer) Results() []FixResult {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	return append([]FixResult(nil), fx.results...)
}

func (fx *Fixer) resolveResolution() Resolution {
	res := fx.Config.Resolution
	if !res.IsAuto() {
		return res
	}

	if fx.Desktop != nil {
		res = fx.Desktop()
	} else {
		res = desktopResolution()
	}
	log.Printf("Desktop resolution: %s", res)

	return res
}

// Apply runs the whole fix table once: per fix, gate check, scan of the
// module image, resolve to a single site, hook install. A fix that
// cannot land is recorded and skipped, the rest still run. The returned
// error is only for target-level failures that stop the whole pass.
func (fx *Fixer) Apply(t Target) error {
	res := fx.resolveResolution()

	mod, err := t.MainModule()
	if err != nil {
		return fmt.Errorf("cannot find main module: %w", err)
	}

	log.Printf("Module Name: %s", baseName(mod.Path))
	log.Printf("Module Addr: 0x%x", mod.Base)

	image, err := t.ReadMem(mod.Base, mod.Size)
	if err != nil {
		return fmt.Errorf("cannot read module image: %w", err)
	}

	fx.mu.Lock()
	fixes := append([]Fix(nil), fx.fixes...)
	fx.mu.Unlock()

	results := make([]FixResult, 0, len(fixes))
	for _, fix := range fixes {
		results = append(results, fx.apply1(t, fix, res, mod, image))
	}

	fx.mu.Lock()
	fx.results = results
	fx.mu.Unlock()

	return nil
}

func (fx *Fixer) apply1(t Target, fix Fix, res Resolution, mod Module, image []byte) FixResult {
	r := FixResult{Name: fix.Name}

	gate := fix.Gate
	if gate == nil {
		gate = masterGate
	}
	r.Enabled = gate(fx.Config)
	if !r.Enabled {
		log.Printf("%s: Fix Disabled", fix.Name)
		return r
	}
	log.Printf("%s: Fix Enabled", fix.Name)

	pat, err := ParsePattern(fix.Pattern)
	if err != nil {
		r.Err = err
		log.Printf("%s: %s", fix.Name, err)
		return r
	}

	off, err := matchOne(fix.Name, pat, image)
	if err != nil {
		r.Err = err
		if errors.Is(err, ErrNotFound) {
			log.Printf("%s: Did not find '%s'", fix.Name, pat)
		} else {
			log.Printf("%s", err)
		}
		fx.alertf(fix.Name, "skipped: %s", err)
		return r
	}

	r.Site = uintptr(off)
	log.Printf("%s: Found '%s' @ 0x%x", fix.Name, pat, off)

	cb, err := fix.Prepare(t, res, image, off)
	if err != nil {
		r.Err = fmt.Errorf("cannot prepare %s: %w", fix.Name, err)
		log.Printf("%s", r.Err)
		fx.alertf(fix.Name, "skipped: %s", err)
		return r
	}

	hookAt := uintptr(off) + fix.HookOffset
	h, err := t.InstallHook(mod.Base+hookAt, cb)
	if err != nil {
		r.Err = fmt.Errorf("cannot hook %s: %w", fix.Name, err)
		log.Printf("%s", r.Err)
		fx.alertf(fix.Name, "hook failed: %s", err)
		return r
	}

	r.HookAt = hookAt
	r.Hook = h
	log.Printf("%s: Hooked @ 0x%x + 0x%x = 0x%x", fix.Name, r.Site, fix.HookOffset, hookAt)
	fx.alertf(fix.Name, "hooked @ 0x%x", hookAt)

	return r
}

func (fx *Fixer) alertf(fix string, format string, args ...interface{}) {
	if fx.Alerter == nil {
		return
	}

	fx.Alerter.Broadcast(Alert{
		Fix:  fix,
		Text: fmt.Sprintf(format, args...),
	})
}

// The built-in table mirrors the game's widescreen defects. The game is
// a PS3 port that bakes 1280 into its layout math; every fix below
// steers one of those sites back to the value the game expects for a
// centered 16:9 viewport.
var builtinFixes = []Fix{
	{
		// Player and enemy UI icons drift right past 16:9. The game
		// doubles the half-width here; 1280 is the stock half-width
		// it can actually lay out.
		Name:       "centerUiIcons",
		Pattern:    "D9 46 64 D9 5C 24 1C D9 46 68 D9 5C 24 14 D9 46 6C",
		HookOffset: 0,
		Gate:       centerHudGate,
		Prepare: func(t Target, res Resolution, image []byte, off int) (MidCallback, error) {
			return func(ctx *RegisterContext) {
				err := ctx.WriteFloat(uintptr(ctx.Esp)+0xC, 1280)
				if err != nil {
					log.Printf("centerUiIcons: cannot write: %s", err)
				}
			}, nil
		},
	},
	{
		// The UI scaler cell starts out as width/1280; wider than
		// 16:9 that overscales the whole UI. The FLD at the match
		// carries the cell's address as its m32 operand.
		Name:       "uiScaling",
		Pattern:    "D9 05 ?? ?? ?? ?? D9 98 88 00 00 00 D9 45 08",
		HookOffset: 0,
		Gate:       centerHudGate,
		Prepare: func(t Target, res Resolution, image []byte, off int) (MidCallback, error) {
			scaler := uintptr(binary.LittleEndian.Uint32(image[off+2 : off+6]))
			log.Printf("uiScaling: scalerAddr: 0x%x", scaler)
			if cur, err := t.ReadMem(scaler, 4); err == nil {
				log.Printf("uiScaling: scaler: 0x%x", binary.LittleEndian.Uint32(cur))
			}

			return func(ctx *RegisterContext) {
				err := ctx.WriteFloat(scaler, 2)
				if err != nil {
					log.Printf("uiScaling: cannot write scaler: %s", err)
				}
			}, nil
		},
	},
	{
		// Minimap overlay icons sit beside the map instead of on it.
		// The layout is 164 +/- 77 pixels around the icon center,
		// scaled by 2 and shifted to where the centered 16:9 viewport
		// starts; only the 77 needs rescaling to the real width.
		Name:       "minimapOverlay",
		Pattern:    "DE C1 DE C9 D9 98 9C 00 00 00",
		HookOffset: 0,
		Gate:       centerHudGate,
		Prepare: func(t Target, res Resolution, image []byte, off int) (MidCallback, error) {
			width := float32(res.Width)
			height := float32(res.Height)
			defaultWidth := height * 16.0 / 9.0
			pixelScaler := 77.0 * (width / defaultWidth)
			margin := (width - defaultWidth) / 2.0
			left := (164.0-pixelScaler)*2.0 + margin
			right := (164.0+pixelScaler)*2.0 + margin

			return func(ctx *RegisterContext) {
				err := ctx.WriteFloat(uintptr(ctx.Eax)+0x90, left)
				if err == nil {
					err = ctx.WriteFloat(uintptr(ctx.Eax)+0x98, right)
				}
				if err != nil {
					log.Printf("minimapOverlay: cannot write: %s", err)
				}
			}, nil
		},
	},
	{
		// Textbox backgrounds get offset clean off the screen past
		// 32:9. Stays on whenever the master switch is on, the other
		// toggles do not cover it.
		Name:       "textbox",
		Pattern:    "D9 5D F8 A8 04 74 0E",
		HookOffset: 3,
		Gate:       masterGate,
		Prepare: func(t Target, res Resolution, image []byte, off int) (MidCallback, error) {
			return func(ctx *RegisterContext) {
				err := ctx.WriteFloat(uintptr(ctx.Ebp)-0x8, 1280)
				if err != nil {
					log.Printf("textbox: cannot write: %s", err)
				}
			}, nil
		},
	},
}

var ErrNotFound = fmt.Errorf("not found")
var ErrAmbiguous = fmt.Errorf("ambiguous match")

// vim: ai:ts=8:sw=8:noet:syntax=go
