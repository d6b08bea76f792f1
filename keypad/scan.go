// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package keypad

import (
	"fmt"
	"time"

	"github.com/schmidtw/matrix-keypad/gpio"
	"go.uber.org/zap"
)

// cycle runs one stable scan: disarm, scan, report, re-arm.
func (e *Engine) cycle() (outcome, error) {
	if !e.firstEvent.IsZero() {
		e.metrics.Settle.Observe(e.clock.Since(e.firstEvent).Seconds())
		e.firstEvent = time.Time{}
	}

	for _, r := range e.geometry.rows {
		if err := r.Write(gpio.Edge, gpio.None); err != nil {
			return 0, err
		}
	}

	if err := e.scan(); err != nil {
		return 0, err
	}
	e.scans++
	e.metrics.Scans.Inc()

	if err := e.report(e.diff()); err != nil {
		return 0, err
	}

	e.bounces = noActivity
	if err := e.arm(); err != nil {
		return 0, err
	}

	return scanned, nil
}

// scan drives one column at a time while every other column floats, then
// reads each row.  A row reads high when the key joining it to the driven
// column is pressed.
func (e *Engine) scan() error {
	rows, cols := e.geometry.rows, e.geometry.cols

	for c := range cols {
		for other, col := range cols {
			dir := gpio.In
			if other == c {
				dir = gpio.Out
			}
			if err := col.Write(gpio.Direction, dir); err != nil {
				return err
			}
		}

		for r, row := range rows {
			v, err := row.Read()
			if err != nil {
				return err
			}
			e.current[e.geometry.Index(r, c)] = bool(v)
		}
	}

	return nil
}

// diff records every key whose state changed, in row-major order, and
// takes the new state as the reported one.
func (e *Engine) diff() []Transition {
	var batch []Transition

	for i, now := range e.current {
		if now == e.previous[i] {
			continue
		}
		batch = append(batch, Transition{
			Keycode: e.geometry.keycodes[i],
			Pressed: now,
		})
		e.previous[i] = now
		if now {
			e.pressed++
		} else {
			e.pressed--
		}
	}

	return batch
}

func (e *Engine) report(batch []Transition) error {
	if len(batch) == 0 {
		e.metrics.Spurious.Inc()
		e.logger.Info("spurious bounce",
			zap.Int("scan", e.scans),
			zap.Int("bounces", e.bounces))
		return nil
	}

	if err := e.sink.Emit(batch); err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}

	e.metrics.Batches.Inc()
	e.metrics.Transitions.Add(float64(len(batch)))
	e.metrics.Pressed.Set(float64(e.pressed))

	for _, t := range batch {
		state := "up"
		if t.Pressed {
			state = "down"
		}
		e.logger.Info("key",
			zap.Int("scan", e.scans),
			zap.Stringer("key", t.Keycode),
			zap.Uint16("code", uint16(t.Keycode)),
			zap.String("state", state),
			zap.Int("bounces", e.bounces))
	}

	return nil
}

// arm drives every column and turns on edge notifications for the rows so
// any key press wakes the poller.
func (e *Engine) arm() error {
	for _, c := range e.geometry.cols {
		if err := c.Write(gpio.Direction, gpio.Out); err != nil {
			return err
		}
	}

	for _, r := range e.geometry.rows {
		if err := r.Write(gpio.Edge, gpio.Both); err != nil {
			return err
		}
	}

	return nil
}
