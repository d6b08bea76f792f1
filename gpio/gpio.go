// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

// Package gpio provides the line handles a keypad matrix is wired to.
//
// A line is addressed through three attributes (value, direction and edge)
// the same way the Linux sysfs interface exposes them.  Two backends are
// provided: the sysfs files under /sys/class/gpio and the gpio character
// device.
package gpio

import (
	"context"
	"errors"
	"time"

	periph "periph.io/x/conn/v3/gpio"
)

var (
	ErrOpen  = errors.New("gpio open failed")
	ErrRead  = errors.New("gpio read failed")
	ErrWrite = errors.New("gpio write failed")
	ErrWait  = errors.New("gpio wait failed")

	errInvalidToken = errors.New("invalid token")
)

// Attribute names one of the independently addressable parts of a line.
type Attribute string

const (
	Value     Attribute = "value"
	Direction Attribute = "direction"
	Edge      Attribute = "edge"
)

// Tokens accepted by the attributes.
const (
	In   = "in"
	Out  = "out"
	None = "none"
	Both = "both"
	High = "1"
	Low  = "0"
)

// Forever makes Poller.Wait block until a line becomes ready.
const Forever time.Duration = -1

// Line is a single acquired GPIO line.
type Line interface {
	// Number returns the line number the line was acquired with.
	Number() int

	// Read returns the current level of the value attribute.
	Read() (periph.Level, error)

	// Write stores the token in the attribute.  The whole token is accepted
	// or ErrWrite is returned.
	Write(a Attribute, token string) error
}

// Poller waits for edge triggered activity on a fixed set of lines.
type Poller interface {
	// Wait blocks until at least one line is ready, the timeout elapses or
	// the context is done.  The indexes of the ready lines are returned; no
	// indexes means the timeout elapsed.  A timeout of Forever never
	// elapses.  When the context is done its error is returned unwrapped.
	Wait(ctx context.Context, timeout time.Duration) ([]int, error)

	Close() error
}

// Lines converts a slice of concrete lines into a slice of Line.
func Lines[T Line](in []T) []Line {
	out := make([]Line, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}

// level converts the text of a value attribute into a level.
func level(b byte) periph.Level {
	return b == '1'
}
