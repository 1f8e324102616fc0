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
	"sync"
	"time"
)

// Alert is one patch event pushed to the panel: a fix landing, a fix
// being skipped, an attach or detach.
type Alert struct {
	Fix  string `json:"fix,omitempty"`
	Text string `json:"text"`
}

// Alerter fans patch events out to panel subscribers. A subscriber that
// stops draining is dropped after a second, late events are lost rather
// than queued.
type Alerter struct {
	lastEvent *Alert
	mu        *sync.Mutex
	cv        *sync.Cond
}

func NewAlerter() *Alerter {
	a := &Alerter{}
	a.mu = new(sync.Mutex)
	a.cv = sync.NewCond(a.mu)
	return a
}

func (a *Alerter) Broadcast(event Alert) {
	a.mu.Lock()
	a.lastEvent = &event
	a.mu.Unlock()

	a.cv.Broadcast()
}

func (a *Alerter) Subscribe() <-chan Alert {
	ch := make(chan Alert)
	go func(ch chan Alert) {
		a.mu.Lock()
		last_event := a.lastEvent
		a.mu.Unlock()

		running := true
		for running {
			a.mu.Lock()
			var event *Alert
			for {
				event = a.lastEvent
				if event != nil && event != last_event {
					break
				}
				a.cv.Wait()
			}
			a.mu.Unlock()

			last_event = event
			t := time.NewTimer(time.Second)
			select {
			case <-t.C:
				// timed out
				running = false
			case ch <- *event:
				// done
			}
			t.Stop()
		}
	}(ch)
	return ch
}

// vim: ai:ts=8:sw=8:noet:syntax=go
