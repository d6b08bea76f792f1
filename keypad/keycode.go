// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package keypad

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// KeyMax is the largest key code the Linux input layer accepts.
const KeyMax = Keycode(evdev.KEY_MAX)

var ErrInvalidKeycode = errors.New("invalid keycode")

// Keycode is a Linux input key code (KEY_*).
type Keycode uint16

// ParseKeycode accepts a KEY_* name or a decimal, 0x hex or 0 octal number.
func ParseKeycode(s string) (Keycode, error) {
	s = strings.TrimSpace(s)

	if code, ok := evdev.KEYFromString[strings.ToUpper(s)]; ok {
		k := Keycode(code)
		if err := k.Validate(); err != nil {
			return 0, err
		}
		return k, nil
	}

	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s'", ErrInvalidKeycode, s)
	}

	code := Keycode(n)
	if err := code.Validate(); err != nil {
		return 0, err
	}
	return code, nil
}

// Validate checks the code is one the input layer can report.
func (k Keycode) Validate() error {
	if k == 0 || k > KeyMax {
		return fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidKeycode, k, KeyMax)
	}
	return nil
}

func (k Keycode) String() string {
	if name, ok := evdev.KEYToString[evdev.EvCode(k)]; ok {
		return name
	}
	return strconv.Itoa(int(k))
}
