// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	periph "periph.io/x/conn/v3/gpio"
)

// DefaultSysfsRoot is where the kernel exposes the legacy GPIO interface.
const DefaultSysfsRoot = "/sys/class/gpio"

// SysfsLine is a line exported through the sysfs interface.  Each attribute
// is kept open for the lifetime of the line.
type SysfsLine struct {
	number    int
	value     *os.File
	edge      *os.File
	direction *os.File
}

var _ Line = (*SysfsLine)(nil)

// OpenSysfs exports the line if needed and opens its attributes.
func OpenSysfs(root string, number int) (*SysfsLine, error) {
	dir := filepath.Join(root, "gpio"+strconv.Itoa(number))

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := export(root, number); err != nil {
			return nil, err
		}
	}

	l := SysfsLine{number: number}

	var err error
	if l.value, err = openAttr(dir, Value, os.O_RDWR); err != nil {
		return nil, err
	}
	if l.edge, err = openAttr(dir, Edge, os.O_WRONLY); err != nil {
		_ = l.Close()
		return nil, err
	}
	if l.direction, err = openAttr(dir, Direction, os.O_WRONLY); err != nil {
		_ = l.Close()
		return nil, err
	}

	return &l, nil
}

// OpenSysfsLines opens every line or none of them.
func OpenSysfsLines(root string, numbers []int) ([]*SysfsLine, error) {
	lines := make([]*SysfsLine, 0, len(numbers))
	for _, n := range numbers {
		l, err := OpenSysfs(root, n)
		if err != nil {
			for _, opened := range lines {
				_ = opened.Close()
			}
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func export(root string, number int) error {
	name := filepath.Join(root, "export")
	f, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpen, name, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(number)); err != nil {
		return fmt.Errorf("%w: export gpio%d: %w", ErrOpen, number, err)
	}
	return nil
}

func openAttr(dir string, a Attribute, flag int) (*os.File, error) {
	name := filepath.Join(dir, string(a))
	f, err := os.OpenFile(name, flag|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, name, err)
	}
	return f, nil
}

func (l *SysfsLine) Number() int { return l.number }

func (l *SysfsLine) String() string { return "gpio" + strconv.Itoa(l.number) }

// Read rewinds the value attribute and reads the level character and the
// line terminator.  The kernel only produces new data after a rewind.
func (l *SysfsLine) Read() (periph.Level, error) {
	var buf [2]byte

	if _, err := l.value.Seek(0, io.SeekStart); err != nil {
		return periph.Low, fmt.Errorf("%w: %s seek: %w", ErrRead, l, err)
	}

	n, err := l.value.Read(buf[:])
	if err != nil {
		return periph.Low, fmt.Errorf("%w: %s: %w", ErrRead, l, err)
	}
	if n != len(buf) {
		return periph.Low, fmt.Errorf("%w: %s: read %d bytes, expected %d", ErrRead, l, n, len(buf))
	}

	return level(buf[0]), nil
}

func (l *SysfsLine) Write(a Attribute, token string) error {
	var f *os.File
	switch a {
	case Value:
		f = l.value
	case Edge:
		f = l.edge
	case Direction:
		f = l.direction
	default:
		return fmt.Errorf("%w: %s unknown attribute '%s'", ErrWrite, l, a)
	}

	b := []byte(token + "\n")
	n, err := f.WriteAt(b, 0)
	if err != nil {
		return fmt.Errorf("%w: %s %s=%s: %w", ErrWrite, l, a, token, err)
	}
	if n != len(b) {
		return fmt.Errorf("%w: %s %s=%s: short write", ErrWrite, l, a, token)
	}
	return nil
}

// Close releases the attribute files.  The line stays exported.
func (l *SysfsLine) Close() (err error) {
	for _, f := range []*os.File{l.value, l.edge, l.direction} {
		if f == nil {
			continue
		}
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// SysfsPoller waits for POLLPRI on the value attribute of a set of lines.
// An eventfd is polled along with the lines so a blocked Wait returns as
// soon as its context is done.
type SysfsPoller struct {
	m     sync.Mutex
	lines []*SysfsLine
	fds   []unix.PollFd
	wake  int
}

var _ Poller = (*SysfsPoller)(nil)

// NewSysfsPoller prepares the poll set.  Every line is read once since the
// kernel reports a pending event until the value has been read.
func NewSysfsPoller(lines []*SysfsLine) (*SysfsPoller, error) {
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("%w: eventfd: %w", ErrWait, err)
	}

	p := SysfsPoller{
		lines: lines,
		fds:   make([]unix.PollFd, len(lines)+1),
		wake:  wake,
	}

	for i, l := range lines {
		if _, err := l.Read(); err != nil {
			_ = unix.Close(wake)
			return nil, err
		}
		p.fds[i] = unix.PollFd{
			Fd:     int32(l.value.Fd()),
			Events: unix.POLLPRI | unix.POLLERR,
		}
	}
	p.fds[len(lines)] = unix.PollFd{
		Fd:     int32(wake),
		Events: unix.POLLIN,
	}

	return &p, nil
}

func (p *SysfsPoller) Wait(ctx context.Context, timeout time.Duration) ([]int, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, p.interrupt)
	defer stop()

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		ms := -1
		if timeout >= 0 {
			ms = int(time.Until(deadline).Milliseconds())
			if ms < 0 {
				ms = 0
			}
		}

		n, err := unix.Poll(p.fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: poll: %w", ErrWait, err)
		}
		if n == 0 {
			return nil, nil
		}

		if p.fds[len(p.lines)].Revents&unix.POLLIN != 0 {
			p.drain()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var ready []int
		for i := range p.lines {
			if p.fds[i].Revents&(unix.POLLPRI|unix.POLLERR) != 0 {
				ready = append(ready, i)
			}
		}
		if len(ready) > 0 {
			return ready, nil
		}
	}
}

func (p *SysfsPoller) interrupt() {
	var one [8]byte
	one[0] = 1
	_, _ = unix.Write(p.wake, one[:])
}

func (p *SysfsPoller) drain() {
	var buf [8]byte
	_, _ = unix.Read(p.wake, buf[:])
}

// Close releases the eventfd.  The lines are owned by the caller.
func (p *SysfsPoller) Close() error {
	return unix.Close(p.wake)
}
