// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

// Package uinput registers a virtual keyboard with the Linux input layer and
// reports key batches through it.
package uinput

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	evdev "github.com/holoplot/go-evdev"
	"github.com/schmidtw/matrix-keypad/keypad"
	"github.com/temoto/inputevent-go"
)

// DefaultPath is where the uinput device is usually found.
const DefaultPath = "/dev/uinput"

var (
	ErrRegister = errors.New("uinput registration failed")
	ErrClosed   = errors.New("uinput device closed")
)

// maxNameSize is UINPUT_MAX_NAME_SIZE, including the terminating NUL.
const maxNameSize = 80

// Info identifies the virtual device to the input layer.
type Info struct {
	Name    string
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

func (i Info) validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: a device name is required", ErrRegister)
	}
	if len(i.Name) >= maxNameSize {
		return fmt.Errorf("%w: device name is longer than %d bytes", ErrRegister, maxNameSize-1)
	}
	return nil
}

// userDev is struct uinput_user_dev.
type userDev struct {
	Name         [maxNameSize]byte
	Bustype      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	AbsMax       [64]int32
	AbsMin       [64]int32
	AbsFuzz      [64]int32
	AbsFlat      [64]int32
}

func (i Info) encode() ([]byte, error) {
	dev := userDev{
		Bustype: i.Bustype,
		Vendor:  i.Vendor,
		Product: i.Product,
		Version: i.Version,
	}
	copy(dev.Name[:], i.Name)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, &dev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Device is a registered virtual keyboard.  It is a keypad.Sink.
type Device struct {
	m    sync.Mutex
	name string
	f    *os.File
}

var _ keypad.Sink = (*Device)(nil)

// Emit reports the batch as one key event per transition followed by a
// single synchronization event, all in one write.
func (d *Device) Emit(batch []keypad.Transition) error {
	if len(batch) == 0 {
		return nil
	}

	d.m.Lock()
	defer d.m.Unlock()

	if d.f == nil {
		return ErrClosed
	}

	buf, err := encode(batch)
	if err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}

	n, err := d.f.Write(buf)
	if err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%s: wrote %d of %d bytes: %w", d.name, n, len(buf), io.ErrShortWrite)
	}

	return nil
}

func (d *Device) String() string { return d.name }

// encode lays the batch out as struct input_event records.  The kernel
// stamps the time of events written to uinput so it is left zero.
func encode(batch []keypad.Transition) ([]byte, error) {
	events := make([]inputevent.InputEvent, 0, len(batch)+1)

	for _, t := range batch {
		state := inputevent.KeyStateUp
		if t.Pressed {
			state = inputevent.KeyStateDown
		}
		events = append(events, inputevent.InputEvent{
			Type:  uint16(evdev.EV_KEY),
			Code:  uint16(t.Keycode),
			Value: int32(state),
		})
	}

	events = append(events, inputevent.InputEvent{
		Type: uint16(evdev.EV_SYN),
		Code: uint16(evdev.SYN_REPORT),
	})

	var buf bytes.Buffer
	buf.Grow(len(events) * inputevent.EventSizeof)
	if err := binary.Write(&buf, binary.NativeEndian, events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
