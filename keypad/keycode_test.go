// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package keypad

import (
	"strconv"
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
)

func TestParseKeycode(t *testing.T) {
	tests := []struct {
		description string
		in          string
		expected    Keycode
		str         string
		expectedErr error
	}{
		{
			description: "name",
			in:          "KEY_KP5",
			expected:    76,
			str:         "KEY_KP5",
		}, {
			description: "lower case name with spaces",
			in:          "  key_numeric_pound ",
			expected:    0x20b,
			str:         "KEY_NUMERIC_POUND",
		}, {
			description: "decimal",
			in:          "28",
			expected:    28,
			str:         "KEY_ENTER",
		}, {
			description: "function key",
			in:          "KEY_F1",
			expected:    59,
			str:         "KEY_F1",
		}, {
			description: "navigation key",
			in:          "key_home",
			expected:    102,
			str:         "KEY_HOME",
		}, {
			description: "hex",
			in:          "0x2ff",
			expected:    KeyMax,
		}, {
			description: "unnamed number",
			in:          "84",
			expected:    84,
			str:         "84",
		}, {
			description: "reserved name",
			in:          "KEY_RESERVED",
			expectedErr: ErrInvalidKeycode,
		}, {
			description: "zero is reserved",
			in:          "0",
			expectedErr: ErrInvalidKeycode,
		}, {
			description: "too large",
			in:          "0x300",
			expectedErr: ErrInvalidKeycode,
		}, {
			description: "does not fit",
			in:          "70000",
			expectedErr: ErrInvalidKeycode,
		}, {
			description: "unknown name",
			in:          "KEY_HYPERSPACE",
			expectedErr: ErrInvalidKeycode,
		}, {
			description: "empty",
			expectedErr: ErrInvalidKeycode,
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			assert := assert.New(t)

			k, err := ParseKeycode(tc.in)

			if tc.expectedErr != nil {
				assert.ErrorIs(err, tc.expectedErr)
				assert.Zero(k)
				return
			}

			assert.NoError(err)
			assert.Equal(tc.expected, k)
			if tc.str != "" {
				assert.Equal(tc.str, k.String())
			}
			assert.NoError(k.Validate())
		})
	}
}

func TestEveryKeyNameParses(t *testing.T) {
	assert := assert.New(t)

	for name, code := range evdev.KEYFromString {
		k, err := ParseKeycode(name)

		if code == 0 || Keycode(code) > KeyMax {
			assert.ErrorIs(err, ErrInvalidKeycode, name)
			continue
		}

		assert.NoError(err, name)
		assert.Equal(Keycode(code), k, name)
		assert.NotEqual(strconv.Itoa(int(k)), k.String(), name)
	}
}
