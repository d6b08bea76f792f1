// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package uinput

import (
	"fmt"
	"os"
	"unsafe"

	evdev "github.com/holoplot/go-evdev"
	"github.com/schmidtw/matrix-keypad/keypad"
	"golang.org/x/sys/unix"
)

// ioctl request encoding, the _IOC macro.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
)

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

var (
	uiDevCreate  = ioc(iocNone, 'U', 1, 0)
	uiDevDestroy = ioc(iocNone, 'U', 2, 0)
	uiSetEvBit   = ioc(iocWrite, 'U', 100, uint32(unsafe.Sizeof(int32(0))))
	uiSetKeyBit  = ioc(iocWrite, 'U', 101, uint32(unsafe.Sizeof(int32(0))))
)

func ioctl(f *os.File, req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// Open registers a virtual keyboard able to report the key codes.
func Open(path string, info Info, keycodes []keypad.Keycode) (*Device, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegister, err)
	}

	if err := register(f, info, keycodes); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrRegister, path, err)
	}

	return &Device{
		name: info.Name,
		f:    f,
	}, nil
}

func register(f *os.File, info Info, keycodes []keypad.Keycode) error {
	for _, ev := range []uintptr{uintptr(evdev.EV_KEY), uintptr(evdev.EV_SYN)} {
		if err := ioctl(f, uiSetEvBit, ev); err != nil {
			return fmt.Errorf("setting device flags: %w", err)
		}
	}

	for _, k := range keycodes {
		if err := k.Validate(); err != nil {
			return err
		}
		if err := ioctl(f, uiSetKeyBit, uintptr(k)); err != nil {
			return fmt.Errorf("registering %s: %w", k, err)
		}
	}

	buf, err := info.encode()
	if err != nil {
		return fmt.Errorf("encoding device description: %w", err)
	}
	if n, err := f.Write(buf); err != nil || n != len(buf) {
		return fmt.Errorf("writing device description: %d of %d bytes: %v", n, len(buf), err)
	}

	if err := ioctl(f, uiDevCreate, 0); err != nil {
		return fmt.Errorf("creating device: %w", err)
	}

	return nil
}

// Close removes the virtual keyboard.
func (d *Device) Close() error {
	d.m.Lock()
	defer d.m.Unlock()

	if d.f == nil {
		return nil
	}

	err := ioctl(d.f, uiDevDestroy, 0)
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	d.f = nil

	return err
}
