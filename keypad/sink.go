// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package keypad

import "errors"

var ErrSink = errors.New("event sink rejected batch")

// Transition is a change of one key.
type Transition struct {
	Keycode Keycode
	Pressed bool
}

func (t Transition) String() string {
	if t.Pressed {
		return t.Keycode.String() + " down"
	}
	return t.Keycode.String() + " up"
}

// Sink receives the transitions found by one stable scan.  The batch is
// delivered as a unit; the receiver terminates it the way its transport
// expects.  Emit is never called concurrently.
type Sink interface {
	Emit(batch []Transition) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func([]Transition) error

func (f SinkFunc) Emit(batch []Transition) error {
	return f(batch)
}

type multi []Sink

// Multi delivers every batch to each sink in order, stopping at the first
// failure.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(batch []Transition) error {
	for _, s := range m {
		if err := s.Emit(batch); err != nil {
			return err
		}
	}
	return nil
}
