// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"time"

	periph "periph.io/x/conn/v3/gpio"
)

// DefaultSysfsRoot is where the kernel exposes the legacy GPIO interface.
const DefaultSysfsRoot = "/sys/class/gpio"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// SysfsLine is not available on non-Linux platforms.
type SysfsLine struct{ number int }

func OpenSysfs(root string, number int) (*SysfsLine, error) {
	return nil, fmt.Errorf("%w: %w", ErrOpen, errUnsupported)
}

func OpenSysfsLines(root string, numbers []int) ([]*SysfsLine, error) {
	return nil, fmt.Errorf("%w: %w", ErrOpen, errUnsupported)
}

func (l *SysfsLine) Number() int                          { return l.number }
func (l *SysfsLine) Read() (periph.Level, error)          { return periph.Low, ErrRead }
func (l *SysfsLine) Write(a Attribute, token string) error { return ErrWrite }
func (l *SysfsLine) Close() error                         { return nil }

// SysfsPoller is not available on non-Linux platforms.
type SysfsPoller struct{}

func NewSysfsPoller(lines []*SysfsLine) (*SysfsPoller, error) {
	return nil, fmt.Errorf("%w: %w", ErrWait, errUnsupported)
}

func (p *SysfsPoller) Wait(ctx context.Context, timeout time.Duration) ([]int, error) {
	return nil, ErrWait
}

func (p *SysfsPoller) Close() error { return nil }

// CdevChip is not available on non-Linux platforms.
type CdevChip struct{}

// CdevLine is not available on non-Linux platforms.
type CdevLine = SysfsLine

// CdevPoller is not available on non-Linux platforms.
type CdevPoller = SysfsPoller

func NewCdevChip(name string) *CdevChip { return &CdevChip{} }

func (c *CdevChip) Lines(offsets []int) ([]*CdevLine, error) {
	return nil, fmt.Errorf("%w: %w", ErrOpen, errUnsupported)
}

func (c *CdevChip) Poller(lines []*CdevLine) *CdevPoller { return &CdevPoller{} }

func (c *CdevChip) Close() error { return nil }
