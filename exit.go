// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"

	"github.com/schmidtw/matrix-keypad/gpio"
	"github.com/schmidtw/matrix-keypad/keypad"
	"github.com/schmidtw/matrix-keypad/mqttsink"
	"github.com/schmidtw/matrix-keypad/uinput"
)

// Process exit codes.  They are part of the command line interface and do
// not change between releases.
const (
	exitOK      = 0
	exitGeneric = 1 // anything not listed below
	exitUsage   = 2 // bad command line
	exitConfig  = 3 // bad configuration or key table
	exitOpen    = 4 // a gpio line, the uinput device or the broker could not be acquired
	exitRead    = 5 // reading a gpio line failed
	exitWrite   = 6 // writing a gpio line or the event sink failed
	exitWait    = 7 // waiting for gpio activity failed
)

var exitCodes = []struct {
	err  error
	code int
}{
	{err: errUsage, code: exitUsage},
	{err: errConfig, code: exitConfig},
	{err: keypad.ErrGeometry, code: exitConfig},
	{err: keypad.ErrInvalidKeycode, code: exitConfig},
	{err: mqttsink.ErrInvalidConfig, code: exitConfig},
	{err: gpio.ErrOpen, code: exitOpen},
	{err: uinput.ErrRegister, code: exitOpen},
	{err: mqttsink.ErrConnect, code: exitOpen},
	{err: keypad.ErrSink, code: exitWrite},
	{err: gpio.ErrRead, code: exitRead},
	{err: gpio.ErrWrite, code: exitWrite},
	{err: gpio.ErrWait, code: exitWait},
}

// exitCode maps an error to the process exit code.  The first matching
// entry wins, so a sink failure is reported as a write failure whatever
// caused it.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	for _, ec := range exitCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}

	return exitGeneric
}
