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
	"fmt"
	"log"
	"sync"

	"github.com/mattn/anko/env"
	"github.com/mattn/anko/vm"
)

// ScriptEngine runs the user script. Fixes registered by the script go
// through the same scan and hook pipeline as the built-in ones; the
// register and memory helpers act on the thread stopped at the hooked
// instruction. Every script execution happens with mu held, so the
// helpers read current without taking it again.
type ScriptEngine struct {
	Fixer   *Fixer
	Alerter *Alerter

	e       *env.Env
	current *RegisterContext
	mu      *sync.Mutex
}

func NewScriptEngine(fixer *Fixer, alerter *Alerter) *ScriptEngine {
	return &ScriptEngine{
		Fixer:   fixer,
		Alerter: alerter,
		mu:      new(sync.Mutex),
	}
}

// Load drops the fixes a previous script added and runs the new one.
// Hooks already installed keep their old callbacks until the next
// apply run.
func (s *ScriptEngine) Load(script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loading := true

	var errors []error

	s.Fixer.ResetExtra()

	s.e = env.NewEnv()
	errors = append(errors, s.e.Define("add_fix", func(name, pattern string, offset int64, fn func()) {
		if !loading {
			log.Println("dynamic add_fix is not allowed")
			return
		}

		err := s.Fixer.AddFix(Fix{
			Name:       name,
			Pattern:    pattern,
			HookOffset: uintptr(offset),
			Prepare: func(t Target, res Resolution, image []byte, off int) (MidCallback, error) {
				s.mu.Lock()
				defer s.mu.Unlock()

				err := s.e.Set("width", float64(res.Width))
				if err == nil {
					err = s.e.Set("height", float64(res.Height))
				}
				if err != nil {
					return nil, err
				}

				return s.bind(fn), nil
			},
		})
		if err != nil {
			log.Printf("add_fix %q: %s", name, err)
		}
	}))
	errors = append(errors, s.e.Define("reg", func(name string) int64 {
		if s.current == nil {
			log.Println("reg: no thread is stopped here")
			return 0
		}

		v, err := s.current.Reg(name)
		if err != nil {
			log.Printf("reg: %s", err)
			return 0
		}

		return int64(v)
	}))
	errors = append(errors, s.e.Define("set_reg", func(name string, value int64) {
		if s.current == nil {
			log.Println("set_reg: no thread is stopped here")
			return
		}

		err := s.current.SetReg(name, uint32(value))
		if err != nil {
			log.Printf("set_reg: %s", err)
		}
	}))
	errors = append(errors, s.e.Define("read_float", func(addr int64) float64 {
		if s.current == nil {
			log.Println("read_float: no thread is stopped here")
			return 0
		}

		v, err := s.current.ReadFloat(uintptr(addr))
		if err != nil {
			log.Printf("read_float: %s", err)
			return 0
		}

		return float64(v)
	}))
	errors = append(errors, s.e.Define("write_float", func(addr int64, value float64) {
		if s.current == nil {
			log.Println("write_float: no thread is stopped here")
			return
		}

		err := s.current.WriteFloat(uintptr(addr), float32(value))
		if err != nil {
			log.Printf("write_float: %s", err)
		}
	}))
	errors = append(errors, s.e.Define("read_u32", func(addr int64) int64 {
		if s.current == nil {
			log.Println("read_u32: no thread is stopped here")
			return 0
		}

		v, err := s.current.ReadU32(uintptr(addr))
		if err != nil {
			log.Printf("read_u32: %s", err)
			return 0
		}

		return int64(v)
	}))
	errors = append(errors, s.e.Define("write_u32", func(addr int64, value int64) {
		if s.current == nil {
			log.Println("write_u32: no thread is stopped here")
			return
		}

		err := s.current.WriteU32(uintptr(addr), uint32(value))
		if err != nil {
			log.Printf("write_u32: %s", err)
		}
	}))
	errors = append(errors, s.e.Define("alert", func(text string) {
		log.Printf("alert(%q)", text)
		s.Alerter.Broadcast(Alert{Fix: "script", Text: text})
	}))
	errors = append(errors, s.e.Define("log", func(format string, args ...interface{}) {
		log.Printf("script: "+format, args...)
	}))
	errors = append(errors, s.e.Define("sprintf", fmt.Sprintf))
	errors = append(errors, s.e.Define("width", float64(0)))
	errors = append(errors, s.e.Define("height", float64(0)))
	for _, err := range errors {
		if err != nil {
			return err
		}
	}

	_, err := vm.Execute(s.e, nil, script)
	if err != nil {
		return err
	}

	loading = false
	return nil
}

// bind wraps a script function as a hook callback.
func (s *ScriptEngine) bind(fn func()) MidCallback {
	return func(ctx *RegisterContext) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.current = ctx
		defer func() {
			s.current = nil
		}()

		fn()
	}
}

// vim: ai:ts=8:sw=8:noet:syntax=go
