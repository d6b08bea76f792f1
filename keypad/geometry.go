// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package keypad

import (
	"errors"
	"fmt"

	"github.com/schmidtw/matrix-keypad/gpio"
)

var ErrGeometry = errors.New("invalid keypad geometry")

// Geometry is the wiring of a keypad: the row lines, the column lines and
// the key code of every intersection in row-major order.
type Geometry struct {
	rows     []gpio.Line
	cols     []gpio.Line
	keycodes []Keycode
}

// NewGeometry validates that there is exactly one key code per
// intersection.
func NewGeometry(rows, cols []gpio.Line, keycodes []Keycode) (*Geometry, error) {
	if len(rows) == 0 || len(cols) == 0 {
		return nil, fmt.Errorf("%w: %d rows and %d columns", ErrGeometry, len(rows), len(cols))
	}

	if want := len(rows) * len(cols); len(keycodes) != want {
		return nil, fmt.Errorf("%w: keypad has %d rows and %d columns but %d keycodes, expected %d",
			ErrGeometry, len(rows), len(cols), len(keycodes), want)
	}

	for i, l := range append(append([]gpio.Line{}, rows...), cols...) {
		if l == nil {
			return nil, fmt.Errorf("%w: line %d is nil", ErrGeometry, i)
		}
	}

	return &Geometry{
		rows:     append([]gpio.Line{}, rows...),
		cols:     append([]gpio.Line{}, cols...),
		keycodes: append([]Keycode{}, keycodes...),
	}, nil
}

func (g *Geometry) Rows() []gpio.Line { return g.rows }

func (g *Geometry) Cols() []gpio.Line { return g.cols }

// Keycodes returns the row-major key code table.
func (g *Geometry) Keycodes() []Keycode { return g.keycodes }

// Size is the number of keys.
func (g *Geometry) Size() int { return len(g.keycodes) }

// Index returns the row-major position of the key at the intersection.
func (g *Geometry) Index(row, col int) int {
	return row*len(g.cols) + col
}
