// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

// Package keypad debounces and scans a row/column key matrix.
//
// The engine alternates between two phases.  While awaiting quiet the row
// lines are armed for edge notifications and every notification restarts
// the debounce timer.  Once a full debounce interval passes without a
// notification the matrix is scanned one column at a time, the result is
// compared with the last reported state and the differences are handed to
// the sink as a single batch.
package keypad

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/schmidtw/matrix-keypad/gpio"
	"go.uber.org/zap"
)

var ErrInvalidParameter = errors.New("invalid parameter")

// noActivity is the bounce count before the first readiness event of a
// cycle.
const noActivity = -1

type phase int

const (
	awaitingQuiet phase = iota
	stableScan
)

func (p phase) String() string {
	switch p {
	case awaitingQuiet:
		return "awaiting-quiet"
	case stableScan:
		return "stable-scan"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// outcome is how a phase ended.
type outcome int

const (
	bounced outcome = iota // readiness event seen
	quiet                  // the wait elapsed without an event
	scanned                // scan, diff and emit completed
)

var transitions = map[phase]map[outcome]phase{
	awaitingQuiet: {
		bounced: awaitingQuiet,
		quiet:   stableScan,
	},
	stableScan: {
		scanned: awaitingQuiet,
	},
}

func next(p phase, o outcome) phase {
	n, ok := transitions[p][o]
	if !ok {
		panic(fmt.Sprintf("keypad: no transition from %s on outcome %d", p, o))
	}
	return n
}

// State is a copy of the debounce state of an engine.
type State struct {
	// Stable is true while nothing has happened since the last scan.
	Stable bool

	// Bounces counts readiness events since the cycle began, starting at -1.
	// It is diagnostic only.
	Bounces int

	// Scans counts the completed stable scans.
	Scans int

	// Previous is the last reported key state in row-major order.
	Previous []bool

	// Current is the result of the last scan in row-major order.
	Current []bool
}

type Option interface {
	apply(e *Engine)
}

// Engine owns the control loop of one keypad.
type Engine struct {
	geometry *Geometry
	poller   gpio.Poller
	sink     Sink
	debounce time.Duration
	logger   *zap.Logger
	metrics  *Metrics
	clock    clock.Clock

	phase      phase
	stable     bool
	bounces    int
	scans      int
	pressed    int
	firstEvent time.Time
	previous   []bool
	current    []bool
}

// New makes an engine for the geometry.  The poller must watch the row
// lines of the geometry in the same order.
func New(g *Geometry, p gpio.Poller, s Sink, debounce time.Duration, opts ...Option) (*Engine, error) {
	if g == nil || p == nil || s == nil {
		return nil, fmt.Errorf("%w: geometry, poller and sink are required", ErrInvalidParameter)
	}
	if debounce <= 0 {
		return nil, fmt.Errorf("%w: debounce must be positive, got %s", ErrInvalidParameter, debounce)
	}

	e := Engine{
		geometry: g,
		poller:   p,
		sink:     s,
		debounce: debounce,
		logger:   zap.NewNop(),
		clock:    clock.New(),
		phase:    awaitingQuiet,
		stable:   true,
		bounces:  noActivity,
		previous: make([]bool, g.Size()),
		current:  make([]bool, g.Size()),
	}

	for _, opt := range opts {
		opt.apply(&e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics("")
	}

	return &e, nil
}

// Setup puts the lines into their idle configuration: rows are inputs,
// columns drive high and the rows are armed for edge notifications.
func (e *Engine) Setup() error {
	for _, r := range e.geometry.rows {
		if err := r.Write(gpio.Direction, gpio.In); err != nil {
			return err
		}
	}

	for _, c := range e.geometry.cols {
		if err := c.Write(gpio.Direction, gpio.Out); err != nil {
			return err
		}
		if err := c.Write(gpio.Value, gpio.High); err != nil {
			return err
		}
	}

	return e.arm()
}

// Run processes the keypad until ctx is done or a line, the poller or the
// sink fails.  Cancellation is honored between phases only, so a scan is
// never abandoned half way.  A done context makes Run return nil.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("keypad running",
		zap.Int("rows", len(e.geometry.rows)),
		zap.Int("cols", len(e.geometry.cols)),
		zap.Duration("debounce", e.debounce))

	for {
		if ctx.Err() != nil {
			return nil
		}

		var o outcome
		var err error

		switch e.phase {
		case awaitingQuiet:
			o, err = e.await(ctx)
		case stableScan:
			o, err = e.cycle()
		}

		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}

		e.phase = next(e.phase, o)
	}
}

// Snapshot copies the debounce state.
func (e *Engine) Snapshot() State {
	return State{
		Stable:   e.stable,
		Bounces:  e.bounces,
		Scans:    e.scans,
		Previous: append([]bool{}, e.previous...),
		Current:  append([]bool{}, e.current...),
	}
}

// await waits for the rows to go quiet.  Without activity since the last
// scan there is nothing to debounce so the wait has no timeout.
func (e *Engine) await(ctx context.Context) (outcome, error) {
	timeout := e.debounce
	if e.stable {
		timeout = gpio.Forever
	}

	ready, err := e.poller.Wait(ctx, timeout)
	if err != nil {
		return 0, err
	}

	if len(ready) == 0 {
		e.stable = true
		return quiet, nil
	}

	if e.stable {
		e.firstEvent = e.clock.Now()
	}
	e.stable = false
	e.bounces++
	e.metrics.Bounces.Inc()

	// Reading clears the pending notification so the next wait doesn't
	// return immediately.
	for _, i := range ready {
		if _, err := e.geometry.rows[i].Read(); err != nil {
			return 0, err
		}
	}

	if ce := e.logger.Check(zap.DebugLevel, "bounce"); ce != nil {
		ce.Write(zap.Ints("rows", ready), zap.Int("bounces", e.bounces))
	}

	return bounced, nil
}

func withOption(fn func(*Engine)) Option {
	return optionFunc(fn)
}

type optionFunc func(*Engine)

func (f optionFunc) apply(e *Engine) { f(e) }

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return withOption(func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	})
}

// WithMetrics sets the metrics to update.
func WithMetrics(m *Metrics) Option {
	return withOption(func(e *Engine) {
		e.metrics = m
	})
}

// UseClock provides a way to set the clock used.  This is used for testing.
func UseClock(c clock.Clock) Option {
	return &clockOption{clk: c}
}

type clockOption struct {
	clk clock.Clock
}

func (c clockOption) apply(e *Engine) {
	e.clock = c.clk
}
