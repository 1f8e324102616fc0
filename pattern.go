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
	"strconv"
	"strings"
)

// Pattern is a byte signature with optional wildcard positions, written
// in the usual "D9 46 64 ?? 5C" notation.
type Pattern struct {
	bytes []byte
	mask  []bool // false marks a wildcard position
}

func ParsePattern(s string) (Pattern, error) {
	flds := strings.Fields(s)
	if len(flds) == 0 {
		return Pattern{}, fmt.Errorf("empty pattern %q", s)
	}

	p := Pattern{
		bytes: make([]byte, len(flds)),
		mask:  make([]bool, len(flds)),
	}

	for i, tok := range flds {
		if tok == "?" || tok == "??" {
			continue
		}

		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("bad token %q in pattern %q", tok, s)
		}

		p.bytes[i] = byte(b)
		p.mask[i] = true
	}

	return p, nil
}

func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}

	return p
}

func (p Pattern) Len() int {
	return len(p.bytes)
}

// Bytes returns the pattern content with wildcard positions as zero.
func (p Pattern) Bytes() []byte {
	return append([]byte(nil), p.bytes...)
}

func (p Pattern) String() string {
	toks := make([]string, len(p.bytes))
	for i, b := range p.bytes {
		if p.mask[i] {
			toks[i] = fmt.Sprintf("%02X", b)
		} else {
			toks[i] = "??"
		}
	}

	return strings.Join(toks, " ")
}

// Find returns every offset in data where the pattern matches. Wildcard
// positions match any byte. Offsets too close to the end to fit the
// whole pattern are never candidates, so no read goes past len(data).
func (p Pattern) Find(data []byte) []int {
	if len(p.bytes) == 0 || len(data) < len(p.bytes) {
		return nil
	}

	var offs []int
	for i := 0; i <= len(data)-len(p.bytes); i++ {
		hit := true
		for j, b := range p.bytes {
			if p.mask[j] && data[i+j] != b {
				hit = false
				break
			}
		}

		if hit {
			offs = append(offs, i)
		}
	}

	return offs
}

// vim: ai:ts=8:sw=8:noet:syntax=go
