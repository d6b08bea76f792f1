// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package keypad

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/schmidtw/matrix-keypad/gpio"
	"github.com/stretchr/testify/mock"
	periph "periph.io/x/conn/v3/gpio"
)

// Simulated matrix.  A row reads high when a pressed key joins it to a
// column whose direction is out.

type scanRead struct {
	row    int
	driven []int
}

type simMatrix struct {
	clk     *clock.Mock
	start   time.Time
	rows    []*simLine
	cols    []*simLine
	pressed []bool

	// Reads made while the rows were disarmed, and when each scan began.
	scanReads []scanRead
	scanAt    []time.Duration
}

type simLine struct {
	m        *simMatrix
	number   int
	row      int
	col      int
	attrs    map[gpio.Attribute]string
	writes   []string
	readErr  func() error
	writeErr func(a gpio.Attribute, token string) error
}

func newSimMatrix(rows, cols int) *simMatrix {
	m := simMatrix{
		clk:     clock.NewMock(),
		pressed: make([]bool, rows*cols),
	}
	m.start = m.clk.Now()

	for r := 0; r < rows; r++ {
		m.rows = append(m.rows, m.newLine(10+r, r, -1))
	}
	for c := 0; c < cols; c++ {
		m.cols = append(m.cols, m.newLine(20+c, -1, c))
	}
	return &m
}

func (m *simMatrix) newLine(number, row, col int) *simLine {
	return &simLine{
		m:      m,
		number: number,
		row:    row,
		col:    col,
		attrs:  map[gpio.Attribute]string{},
	}
}

func (m *simMatrix) elapsed() time.Duration {
	return m.clk.Now().Sub(m.start)
}

func (m *simMatrix) rowLines() []gpio.Line { return gpio.Lines(m.rows) }
func (m *simMatrix) colLines() []gpio.Line { return gpio.Lines(m.cols) }

func (m *simMatrix) driven() []int {
	var out []int
	for c, l := range m.cols {
		if l.attrs[gpio.Direction] == gpio.Out {
			out = append(out, c)
		}
	}
	return out
}

func (m *simMatrix) rowLevel(r int) periph.Level {
	for _, c := range m.driven() {
		if m.pressed[r*len(m.cols)+c] {
			return periph.High
		}
	}
	return periph.Low
}

func (l *simLine) Number() int { return l.number }

func (l *simLine) Read() (periph.Level, error) {
	if l.readErr != nil {
		if err := l.readErr(); err != nil {
			return periph.Low, err
		}
	}

	if l.row < 0 {
		return l.attrs[gpio.Value] == gpio.High, nil
	}

	if l.attrs[gpio.Edge] == gpio.None {
		l.m.scanReads = append(l.m.scanReads, scanRead{
			row:    l.row,
			driven: l.m.driven(),
		})
	}

	return l.m.rowLevel(l.row), nil
}

func (l *simLine) Write(a gpio.Attribute, token string) error {
	if l.writeErr != nil {
		if err := l.writeErr(a, token); err != nil {
			return err
		}
	}

	if l.row == 0 && a == gpio.Edge && token == gpio.None {
		l.m.scanAt = append(l.m.scanAt, l.m.elapsed())
	}

	l.attrs[a] = token
	l.writes = append(l.writes, string(a)+"="+token)
	return nil
}

// Simulated poller.  Events are scheduled relative to the start of the
// mock clock; a wait either jumps to the next event or runs out its
// timeout.  Waiting forever with nothing scheduled ends the run.

type simEvent struct {
	at    time.Duration
	rows  []int
	press map[int]bool
}

type simPoller struct {
	m        *simMatrix
	events   []simEvent
	timeouts []time.Duration
	cancel   context.CancelFunc
	err      error
}

func (p *simPoller) Wait(ctx context.Context, timeout time.Duration) ([]int, error) {
	p.timeouts = append(p.timeouts, timeout)

	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := p.m.elapsed()

	if len(p.events) == 0 || (timeout != gpio.Forever && p.events[0].at > now+timeout) {
		if timeout == gpio.Forever {
			p.cancel()
			return nil, ctx.Err()
		}
		p.m.clk.Add(timeout)
		return nil, nil
	}

	ev := p.events[0]
	p.events = p.events[1:]

	if ev.at > now {
		p.m.clk.Add(ev.at - now)
	}
	for i, v := range ev.press {
		p.m.pressed[i] = v
	}

	return ev.rows, nil
}

func (p *simPoller) Close() error { return nil }

// Mocking Sink

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Emit(batch []Transition) error {
	a := m.Called(batch)
	return a.Error(0)
}
