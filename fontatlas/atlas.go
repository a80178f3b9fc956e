// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fontatlas bakes a fixed-cell ASCII glyph coverage atlas for the
// fonts auxiliary resource. Kernels index the atlas as a flat byte array:
// one coverage byte per texel, glyphs laid out on a regular cell grid in
// code-point order starting at First.
package fontatlas

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Atlas grid layout. 95 printable ASCII glyphs on a 16-column grid.
const (
	// First is the first baked code point (space).
	First rune = 0x20

	// Last is the last baked code point (tilde).
	Last rune = 0x7E

	// Columns is the number of glyph cells per atlas row.
	Columns = 16
)

// Atlas holds a baked coverage atlas: one byte per texel, row-major.
type Atlas struct {
	// Pix is the coverage data, Width*Height bytes.
	Pix []byte

	// Width and Height are the atlas dimensions in texels.
	Width, Height int

	// CellWidth and CellHeight are the fixed glyph cell dimensions.
	CellWidth, CellHeight int
}

// Bake rasterizes the printable ASCII range with the built-in fixed-width
// face and packs the coverage into a cell grid. The result is deterministic;
// callers typically bake once and upload the packed bytes to a storage
// buffer.
func Bake() *Atlas {
	face := basicfont.Face7x13
	cellW := face.Advance
	cellH := face.Height

	count := int(Last-First) + 1
	rows := (count + Columns - 1) / Columns
	w := Columns * cellW
	h := rows * cellH

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	drawer := &font.Drawer{
		Dst:  mask,
		Src:  image.White,
		Face: face,
	}

	for i := 0; i < count; i++ {
		col := i % Columns
		row := i / Columns
		// Dot sits on the baseline at the cell's left edge.
		drawer.Dot = fixed.P(col*cellW, row*cellH+face.Ascent)
		drawer.DrawString(string(First + rune(i)))
	}

	return &Atlas{
		Pix:        mask.Pix,
		Width:      w,
		Height:     h,
		CellWidth:  cellW,
		CellHeight: cellH,
	}
}

// Cell returns the top-left texel coordinate of a code point's cell, and
// false for code points outside the baked range.
func (a *Atlas) Cell(r rune) (x, y int, ok bool) {
	if r < First || r > Last {
		return 0, 0, false
	}
	i := int(r - First)
	return (i % Columns) * a.CellWidth, (i / Columns) * a.CellHeight, true
}

// Packed returns the coverage bytes padded to a 4-byte multiple, ready for
// upload as a storage buffer of u32 words.
func (a *Atlas) Packed() []byte {
	n := len(a.Pix)
	padded := (n + 3) &^ 3
	out := make([]byte, padded)
	copy(out, a.Pix)
	return out
}
