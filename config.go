// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/goschtalt/casemapper"
	"github.com/goschtalt/goschtalt"
	_ "github.com/goschtalt/yaml-decoder"
	_ "github.com/goschtalt/yaml-encoder"
	"github.com/mitchellh/mapstructure"
	"github.com/schmidtw/matrix-keypad/gpio"
	"github.com/schmidtw/matrix-keypad/httpserver"
	"github.com/schmidtw/matrix-keypad/keypad"
	"github.com/schmidtw/matrix-keypad/mqttsink"
	"github.com/schmidtw/matrix-keypad/uinput"
	"github.com/xmidt-org/sallust"
)

var errConfig = errors.New("configuration error")

const (
	backendSysfs = "sysfs"
	backendCdev  = "cdev"

	defaultChip = "gpiochip0"
)

// Config is the whole configuration.  Keys are written in two_words case,
// for example sysfs_root and debounce_ms.
type Config struct {
	GPIO    GPIOConfig
	Input   InputConfig
	Logging sallust.Config
	Metrics httpserver.Config
	MQTT    mqttsink.Config
}

type GPIOConfig struct {
	// Backend is either sysfs or cdev.
	Backend string

	// SysfsRoot is the directory holding export and the gpioN directories.
	SysfsRoot string

	// Chip is the character device used by the cdev backend.
	Chip string

	// Rows and Cols are the line numbers, in matrix order.
	Rows []int
	Cols []int

	DebounceMs int
}

type InputConfig struct {
	// Uinput is the path of the uinput device node.
	Uinput string

	// The device ids.  Quoted values are hex with or without the 0x prefix,
	// so "1d6b" and 0x1d6b are the same vendor.  A bare number such as 10 is
	// decimal.
	Name    string
	Bustype hexID
	Vendor  hexID
	Product hexID
	Version hexID

	// Keycodes are listed in row-major order, numbers or KEY_* names.
	Keycodes []keypad.Keycode
}

// loadConfig merges the files.  goschtalt orders them by file name and
// later files win, so 10-local.yml overrides 00-keypad.yml.
func loadConfig(files []string) (*goschtalt.Config, error) {
	opts := []goschtalt.Option{
		goschtalt.AutoCompile(),
	}

	for _, file := range files {
		opts = append(opts, goschtalt.AddFile(os.DirFS(filepath.Dir(file)), filepath.Base(file)))
	}

	g, err := goschtalt.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	return g, nil
}

// decodeConfig unmarshals, defaults and validates the merged configuration.
func decodeConfig(g *goschtalt.Config) (Config, error) {
	cfg, err := goschtalt.Unmarshal[Config](g, "",
		casemapper.ConfigStoredAs("two_words"),
		goschtalt.Keymap(map[string]string{
			"QoS": "qos",
		}),
		goschtalt.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				keycodeHook,
				hexIDHook,
			),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", errConfig, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var keycodeType = reflect.TypeOf(keypad.Keycode(0))

// keycodeHook accepts KEY_* names as well as numbers for key codes.
func keycodeHook(from, to reflect.Type, data any) (any, error) {
	if to != keycodeType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		return keypad.ParseKeycode(v)
	case int:
		return checkKeycode(int64(v))
	case int64:
		return checkKeycode(v)
	case uint64:
		if v > uint64(keypad.KeyMax) {
			return nil, fmt.Errorf("%w: %d", keypad.ErrInvalidKeycode, v)
		}
		return checkKeycode(int64(v))
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("%w: %v", keypad.ErrInvalidKeycode, v)
		}
		return checkKeycode(int64(v))
	}

	return data, nil
}

func checkKeycode(n int64) (keypad.Keycode, error) {
	if n <= 0 || n > int64(keypad.KeyMax) {
		return 0, fmt.Errorf("%w: %d is outside 1..%d", keypad.ErrInvalidKeycode, n, keypad.KeyMax)
	}
	return keypad.Keycode(n), nil
}

// hexID is a 16 bit input device id.
type hexID uint16

var hexIDType = reflect.TypeOf(hexID(0))

func hexIDHook(from, to reflect.Type, data any) (any, error) {
	if to != hexIDType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		n, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid device id '%s': %w", v, err)
		}
		return hexID(n), nil
	case int:
		return checkHexID(int64(v))
	case int64:
		return checkHexID(v)
	case uint64:
		if v > 0xffff {
			return nil, fmt.Errorf("invalid device id %d", v)
		}
		return hexID(v), nil
	}

	return data, nil
}

func checkHexID(n int64) (hexID, error) {
	if n < 0 || n > 0xffff {
		return 0, fmt.Errorf("invalid device id %d", n)
	}
	return hexID(n), nil
}

func (c *Config) applyDefaults() {
	if c.GPIO.Backend == "" {
		c.GPIO.Backend = backendSysfs
	}
	if c.GPIO.SysfsRoot == "" {
		c.GPIO.SysfsRoot = gpio.DefaultSysfsRoot
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = defaultChip
	}
	if c.Input.Uinput == "" {
		c.Input.Uinput = uinput.DefaultPath
	}
	if c.Input.Name == "" {
		c.Input.Name = applicationName
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stderr"}
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		c.Logging.ErrorOutputPaths = []string{"stderr"}
	}
	if c.Metrics.Address != "" && c.Metrics.Path == "" {
		c.Metrics.Path = httpserver.DefaultPath
	}
}

// validate catches every configuration mistake before any hardware is
// touched.
func (c Config) validate() error {
	switch c.GPIO.Backend {
	case backendSysfs, backendCdev:
	default:
		return fmt.Errorf("%w: unknown gpio backend '%s'", errConfig, c.GPIO.Backend)
	}

	if len(c.GPIO.Rows) == 0 || len(c.GPIO.Cols) == 0 {
		return fmt.Errorf("%w: gpio rows and cols are required", errConfig)
	}

	if c.GPIO.DebounceMs <= 0 {
		return fmt.Errorf("%w: gpio debounce_ms must be positive, got %d", errConfig, c.GPIO.DebounceMs)
	}

	seen := make(map[int]bool, len(c.GPIO.Rows)+len(c.GPIO.Cols))
	for _, n := range append(append([]int{}, c.GPIO.Rows...), c.GPIO.Cols...) {
		if n < 0 {
			return fmt.Errorf("%w: gpio line %d is negative", errConfig, n)
		}
		if seen[n] {
			return fmt.Errorf("%w: gpio line %d is used more than once", errConfig, n)
		}
		seen[n] = true
	}

	want := len(c.GPIO.Rows) * len(c.GPIO.Cols)
	if len(c.Input.Keycodes) != want {
		return fmt.Errorf("%w: keypad has %d rows and %d columns but %d keycodes, expected %d",
			errConfig, len(c.GPIO.Rows), len(c.GPIO.Cols), len(c.Input.Keycodes), want)
	}

	for _, k := range c.Input.Keycodes {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("%w: %w", errConfig, err)
		}
	}

	return nil
}
