// Package validator holds the pure path and word validation checks the
// session engine runs before a submitted word can be scored.
package validator

import (
	"strings"

	"spellcast/internal/dictionary"
	"spellcast/internal/gridgen"
)

// PathValid reports whether positions form a non-empty, in-bounds,
// non-repeating, 8-way-adjacent path.
func PathValid(positions []gridgen.Position) bool {
	if len(positions) == 0 {
		return false
	}

	seen := make(map[gridgen.Position]struct{}, len(positions))
	for i, p := range positions {
		if !p.InBounds() {
			return false
		}
		if _, dup := seen[p]; dup {
			return false
		}
		seen[p] = struct{}{}

		if i == 0 {
			continue
		}
		if !adjacent(positions[i-1], p) {
			return false
		}
	}

	return true
}

// adjacent reports whether a and b are 8-way neighbors (and not the same cell).
func adjacent(a, b gridgen.Position) bool {
	dr := a.Row - b.Row
	dc := a.Col - b.Col
	if dr < 0 {
		dr = -dr
	}
	if dc < 0 {
		dc = -dc
	}
	if dr == 0 && dc == 0 {
		return false
	}
	return dr <= 1 && dc <= 1
}

// InDictionary reports whether word is a member of d (case-insensitive).
func InDictionary(d *dictionary.Dictionary, word string) bool {
	return d.Contains(word)
}

// LettersMatch reports whether word's characters equal, in order and
// case-insensitively, the letters at positions on grid. The server must
// run this check itself: clients are not trusted to keep word and
// positions consistent (see spec §9's open question on this).
func LettersMatch(grid *gridgen.Grid, word string, positions []gridgen.Position) bool {
	word = strings.ToUpper(strings.TrimSpace(word))
	if len(word) != len(positions) {
		return false
	}
	for i, p := range positions {
		if !p.InBounds() {
			return false
		}
		if word[i] != grid.At(p).Letter {
			return false
		}
	}
	return true
}
