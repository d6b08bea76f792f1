// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package gpio

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	periph "periph.io/x/conn/v3/gpio"
)

const consumer = "matrix-keypad"

// CdevChip hands out lines of one gpio character device.  Edge events of
// all the lines it hands out are funneled into a single channel that the
// poller reads.
type CdevChip struct {
	m      sync.Mutex
	name   string
	lines  []*CdevLine
	events chan int
}

// NewCdevChip prepares to request lines from the named chip, for example
// "gpiochip0".
func NewCdevChip(name string) *CdevChip {
	return &CdevChip{
		name:   name,
		events: make(chan int, 64),
	}
}

// CdevLine is a line requested from a gpio character device.  The sysfs
// attribute tokens are translated into line reconfigurations.
type CdevLine struct {
	m      sync.Mutex
	chip   string
	number int
	line   *gpiocdev.Line
	output bool
	value  int
}

var _ Line = (*CdevLine)(nil)

// Line requests the line at the offset as an input without edge detection.
func (c *CdevChip) Line(offset int) (*CdevLine, error) {
	c.m.Lock()
	defer c.m.Unlock()

	l, err := gpiocdev.RequestLine(c.name, offset,
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(c.notify),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrOpen, c.name, offset, err)
	}

	cl := &CdevLine{
		chip:   c.name,
		number: offset,
		line:   l,
	}
	c.lines = append(c.lines, cl)

	return cl, nil
}

// Lines requests every line or none of them.
func (c *CdevChip) Lines(offsets []int) ([]*CdevLine, error) {
	lines := make([]*CdevLine, 0, len(offsets))
	for _, o := range offsets {
		l, err := c.Line(o)
		if err != nil {
			c.release(lines)
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// release closes the lines and forgets them so Close doesn't see them again.
func (c *CdevChip) release(lines []*CdevLine) {
	c.m.Lock()
	defer c.m.Unlock()

	kept := c.lines[:0]
	for _, l := range c.lines {
		if slices.Contains(lines, l) {
			_ = l.line.Close()
			continue
		}
		kept = append(kept, l)
	}
	c.lines = kept
}

// notify never blocks; one queued event is enough to wake the poller.
func (c *CdevChip) notify(evt gpiocdev.LineEvent) {
	select {
	case c.events <- evt.Offset:
	default:
	}
}

// Poller returns a poller reporting events for the given lines.  Events for
// other lines of the chip are discarded.
func (c *CdevChip) Poller(lines []*CdevLine) *CdevPoller {
	index := make(map[int]int, len(lines))
	for i, l := range lines {
		index[l.number] = i
	}
	return &CdevPoller{
		events: c.events,
		index:  index,
	}
}

// Close releases every line handed out.
func (c *CdevChip) Close() (err error) {
	c.m.Lock()
	defer c.m.Unlock()

	for _, l := range c.lines {
		if e := l.line.Close(); e != nil && err == nil {
			err = e
		}
	}
	c.lines = nil

	return err
}

func (l *CdevLine) Number() int { return l.number }

func (l *CdevLine) String() string { return l.chip + ":" + strconv.Itoa(l.number) }

func (l *CdevLine) Read() (periph.Level, error) {
	v, err := l.line.Value()
	if err != nil {
		return periph.Low, fmt.Errorf("%w: %s: %w", ErrRead, l, err)
	}
	return v == 1, nil
}

func (l *CdevLine) Write(a Attribute, token string) error {
	l.m.Lock()
	defer l.m.Unlock()

	var err error
	switch a {
	case Value:
		err = l.setValue(token)
	case Direction:
		err = l.setDirection(token)
	case Edge:
		err = l.setEdge(token)
	default:
		err = fmt.Errorf("unknown attribute '%s'", a)
	}

	if err != nil {
		return fmt.Errorf("%w: %s %s=%s: %w", ErrWrite, l, a, token, err)
	}
	return nil
}

func (l *CdevLine) setValue(token string) error {
	switch token {
	case High:
		l.value = 1
	case Low:
		l.value = 0
	default:
		return errInvalidToken
	}
	if !l.output {
		return nil
	}
	return l.line.SetValue(l.value)
}

func (l *CdevLine) setDirection(token string) error {
	switch token {
	case In:
		l.output = false
		return l.line.Reconfigure(gpiocdev.AsInput)
	case Out:
		l.output = true
		return l.line.Reconfigure(gpiocdev.AsOutput(l.value))
	}
	return errInvalidToken
}

func (l *CdevLine) setEdge(token string) error {
	switch token {
	case None:
		return l.line.Reconfigure(gpiocdev.WithoutEdges)
	case Both:
		return l.line.Reconfigure(gpiocdev.WithBothEdges)
	}
	return errInvalidToken
}

// CdevPoller waits for edge events delivered by the chip's event handler.
type CdevPoller struct {
	events <-chan int
	index  map[int]int
}

var _ Poller = (*CdevPoller)(nil)

func (p *CdevPoller) Wait(ctx context.Context, timeout time.Duration) ([]int, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expired:
			return nil, nil
		case offset := <-p.events:
			i, ok := p.index[offset]
			if !ok {
				continue
			}
			return p.collect(i), nil
		}
	}
}

// collect gathers the events that are already queued so lines bouncing
// together are reported together.
func (p *CdevPoller) collect(first int) []int {
	seen := map[int]bool{first: true}
	ready := []int{first}
	for {
		select {
		case offset := <-p.events:
			if i, ok := p.index[offset]; ok && !seen[i] {
				seen[i] = true
				ready = append(ready, i)
			}
		default:
			return ready
		}
	}
}

// Close is a no-op; the chip owns the event channel.
func (p *CdevPoller) Close() error { return nil }
