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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// The game computes its render size from the desktop very early, before
// a runtime hook can land, so this one site gets patched in the binary
// on disk instead. The stock sequence divides the width down to 16:9
// with magic-constant arithmetic.
const exePatchSearch = "B8 39 8E E3 38 F7 E3 8B FA B8 39 8E E3 38"

// exePatchReplacement builds the mov-immediate sequence that loads the
// wanted resolution outright. It covers the stock 31-byte arithmetic
// exactly. The viewport offset centers the image when the desktop is
// wider than the game.
func exePatchReplacement(res, desktop Resolution) string {
	le := func(v int) string {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		return fmt.Sprintf("%02X %02X %02X %02X", b[0], b[1], b[2], b[3])
	}

	width := le(res.Width)
	height := le(res.Height)
	shifted := le(res.Height << 4)
	offset := le((desktop.Width - res.Width) / 2)

	return fmt.Sprintf("B8 %s BB %s B9 %s BA %s BE %s BF %s 90",
		width, shifted, offset, width, height, width)
}

// PatchExe rewrites the resolution bootstrap of the game binary on
// disk. A sidecar patch.txt next to the binary remembers the bytes of
// the last patch, so a later run at a new resolution searches for those
// instead of the stock sequence.
func PatchExe(gamePath string, res, desktop Resolution) error {
	if res.IsAuto() {
		res = desktop
	}

	search := exePatchSearch
	sidecar := filepath.Join(filepath.Dir(gamePath), "patch.txt")
	b, err := os.ReadFile(sidecar)
	if err == nil {
		line := strings.TrimSpace(strings.SplitN(string(b), "\n", 2)[0])
		if line != "" {
			search = line
		}
		log.Printf("Will search for pattern: %s", search)
	} else {
		log.Printf("Will search using default pattern: %s", search)
	}

	pat, err := ParsePattern(search)
	if err != nil {
		return fmt.Errorf("cannot parse pattern from %s: %w", sidecar, err)
	}

	replace := exePatchReplacement(res, desktop)
	rp, err := ParsePattern(replace)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(gamePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", gamePath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", gamePath, err)
	}

	off, err := matchOne(filepath.Base(gamePath), pat, data)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("Cannot find: %s", pat)
		}
		return err
	}
	log.Printf("Found: %s @ 0x%x", pat, off)

	_, err = f.WriteAt(rp.Bytes(), int64(off))
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", gamePath, err)
	}
	log.Printf("Replaced with: %s @ 0x%x", replace, off)

	err = os.WriteFile(sidecar, []byte(replace+"\n"), 0666)
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", sidecar, err)
	}

	return nil
}

// vim: ai:ts=8:sw=8:noet:syntax=go
