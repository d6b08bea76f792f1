// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package uinput

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/schmidtw/matrix-keypad/keypad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/inputevent-go"
)

var (
	evKey     = int(evdev.EV_KEY)
	evSyn     = int(evdev.EV_SYN)
	synReport = int(evdev.SYN_REPORT)
)

func decode(t *testing.T, b []byte) []inputevent.InputEvent {
	t.Helper()
	require.Zero(t, len(b)%inputevent.EventSizeof)

	var events []inputevent.InputEvent
	r := bytes.NewReader(b)
	for r.Len() > 0 {
		ev, err := inputevent.ReadOne(r)
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestEncode(t *testing.T) {
	tests := []struct {
		description string
		batch       []keypad.Transition
		expected    [][3]int
	}{
		{
			description: "one press",
			batch:       []keypad.Transition{{Keycode: 2, Pressed: true}},
			expected: [][3]int{
				{evKey, 2, 1},
				{evSyn, synReport, 0},
			},
		}, {
			description: "press and release keep their order",
			batch: []keypad.Transition{
				{Keycode: 79, Pressed: false},
				{Keycode: 80, Pressed: true},
				{Keycode: 0x20b, Pressed: true},
			},
			expected: [][3]int{
				{evKey, 79, 0},
				{evKey, 80, 1},
				{evKey, 0x20b, 1},
				{evSyn, synReport, 0},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			assert := assert.New(t)

			b, err := encode(tc.batch)
			require.NoError(t, err)
			events := decode(t, b)

			got := make([][3]int, 0, len(events))
			for _, ev := range events {
				got = append(got, [3]int{int(ev.Type), int(ev.Code), int(ev.Value)})
				assert.Zero(ev.Time.Sec)
			}
			assert.Equal(tc.expected, got)
		})
	}
}

func TestInfoEncode(t *testing.T) {
	assert := assert.New(t)

	b, err := Info{
		Name:    "Matrix Keypad",
		Bustype: 0x19,
		Vendor:  0x1,
		Product: 0x2,
		Version: 3,
	}.encode()
	require.NoError(t, err)

	// char name[80], struct input_id, __u32 ff_effects_max and four
	// arrays of ABS_CNT __s32.
	assert.Len(b, 80+8+4+4*64*4)
	assert.Equal([]byte("Matrix Keypad\x00"), b[:14])
	assert.Equal(make([]byte, 80-14), b[14:80])
	assert.Equal(make([]byte, 4+4*64*4), b[88:])
}

func TestInfoValidate(t *testing.T) {
	assert := assert.New(t)

	assert.ErrorIs(Info{}.validate(), ErrRegister)
	assert.ErrorIs(Info{Name: string(bytes.Repeat([]byte("k"), 80))}.validate(), ErrRegister)
	assert.NoError(Info{Name: string(bytes.Repeat([]byte("k"), 79))}.validate())
}

func TestDeviceEmit(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "events")
	f, err := os.Create(path)
	require.NoError(err)
	t.Cleanup(func() { _ = f.Close() })

	d := Device{name: "test", f: f}
	assert.Equal("test", d.String())

	assert.NoError(d.Emit(nil))
	assert.NoError(d.Emit([]keypad.Transition{{Keycode: 30, Pressed: true}}))
	assert.NoError(d.Emit([]keypad.Transition{{Keycode: 30}}))

	b, err := os.ReadFile(path)
	require.NoError(err)

	events := decode(t, b)
	require.Len(events, 4)
	assert.Equal(int32(inputevent.KeyStateDown), events[0].Value)
	assert.Equal(uint16(evSyn), events[1].Type)
	assert.Equal(int32(inputevent.KeyStateUp), events[2].Value)
	assert.Equal(uint16(evSyn), events[3].Type)

	d.f = nil
	assert.ErrorIs(d.Emit([]keypad.Transition{{Keycode: 30}}), ErrClosed)
}
