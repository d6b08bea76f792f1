// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package uinput

import (
	"fmt"

	"github.com/schmidtw/matrix-keypad/keypad"
)

func Open(path string, info Info, keycodes []keypad.Keycode) (*Device, error) {
	return nil, fmt.Errorf("%w: uinput is only available on linux", ErrRegister)
}

func (d *Device) Close() error {
	return nil
}
