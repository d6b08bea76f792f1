// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schmidtw/matrix-keypad/gpio"
	"github.com/schmidtw/matrix-keypad/httpserver"
	"github.com/schmidtw/matrix-keypad/keypad"
	"github.com/schmidtw/matrix-keypad/mqttsink"
	"github.com/schmidtw/matrix-keypad/uinput"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const metricsNamespace = "matrix_keypad"

// hardware acquires the configured gpio lines and registers the sinks.
var hardware = fx.Provide(
	provideMatrix,
	provideSink,
)

func provideMetrics() (*keypad.Metrics, prometheus.Gatherer, error) {
	m := keypad.NewMetrics(metricsNamespace)

	reg := prometheus.NewRegistry()
	collectors := append(m.Collectors(),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, nil, err
		}
	}

	return m, reg, nil
}

// provideMatrix acquires the row and column lines from the configured
// backend.  The lines are released when the application stops.
func provideMatrix(lc fx.Lifecycle, cfg Config) (*keypad.Geometry, gpio.Poller, error) {
	var rows, cols []gpio.Line
	var poller gpio.Poller
	var release func() error

	switch cfg.GPIO.Backend {
	case backendCdev:
		chip := gpio.NewCdevChip(cfg.GPIO.Chip)
		r, err := chip.Lines(cfg.GPIO.Rows)
		if err != nil {
			return nil, nil, err
		}
		c, err := chip.Lines(cfg.GPIO.Cols)
		if err != nil {
			_ = chip.Close()
			return nil, nil, err
		}
		rows, cols = gpio.Lines(r), gpio.Lines(c)
		poller = chip.Poller(r)
		release = chip.Close

	default:
		r, err := gpio.OpenSysfsLines(cfg.GPIO.SysfsRoot, cfg.GPIO.Rows)
		if err != nil {
			return nil, nil, err
		}
		c, err := gpio.OpenSysfsLines(cfg.GPIO.SysfsRoot, cfg.GPIO.Cols)
		if err != nil {
			closeSysfs(r)
			return nil, nil, err
		}
		p, err := gpio.NewSysfsPoller(r)
		if err != nil {
			closeSysfs(r)
			closeSysfs(c)
			return nil, nil, err
		}
		rows, cols = gpio.Lines(r), gpio.Lines(c)
		poller = p
		release = func() error {
			err := p.Close()
			closeSysfs(r)
			closeSysfs(c)
			return err
		}
	}

	g, err := keypad.NewGeometry(rows, cols, cfg.Input.Keycodes)
	if err != nil {
		_ = release()
		return nil, nil, err
	}

	lc.Append(stopHook(release))

	return g, poller, nil
}

func stopHook(fn func() error) fx.Hook {
	return fx.Hook{
		OnStop: func(context.Context) error {
			return fn()
		},
	}
}

func closeSysfs(lines []*gpio.SysfsLine) {
	for _, l := range lines {
		_ = l.Close()
	}
}

// provideSink registers the virtual keyboard and, when a broker is
// configured, mirrors every batch to MQTT after it.
func provideSink(lc fx.Lifecycle, cfg Config, log *zap.Logger) (keypad.Sink, error) {
	dev, err := uinput.Open(cfg.Input.Uinput, uinput.Info{
		Name:    cfg.Input.Name,
		Bustype: uint16(cfg.Input.Bustype),
		Vendor:  uint16(cfg.Input.Vendor),
		Product: uint16(cfg.Input.Product),
		Version: uint16(cfg.Input.Version),
	}, cfg.Input.Keycodes)
	if err != nil {
		return nil, err
	}
	lc.Append(stopHook(dev.Close))

	log.Info("uinput device registered",
		zap.String("path", cfg.Input.Uinput),
		zap.String("name", cfg.Input.Name))

	if cfg.MQTT.Broker == "" {
		return dev, nil
	}

	mq, err := mqttsink.New(cfg.MQTT, log)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	lc.Append(stopHook(mq.Close))

	return keypad.Multi(dev, mq), nil
}

func provideEngine(cfg Config, g *keypad.Geometry, p gpio.Poller, s keypad.Sink, m *keypad.Metrics, log *zap.Logger) (*keypad.Engine, error) {
	return keypad.New(g, p, s,
		time.Duration(cfg.GPIO.DebounceMs)*time.Millisecond,
		keypad.WithLogger(log),
		keypad.WithMetrics(m),
	)
}

func invokeMetricsServer(lc fx.Lifecycle, cfg Config, g prometheus.Gatherer, log *zap.Logger) error {
	if cfg.Metrics.Address == "" {
		return nil
	}
	_, err := httpserver.New(lc, g, cfg.Metrics, log)
	return err
}

// runner drives the engine from the application lifecycle.  When the
// engine stops on its own the application is shut down.
type runner struct {
	engine   *keypad.Engine
	shutdown fx.Shutdowner
	log      *zap.Logger
	notify   func(state string)

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newRunner(lc fx.Lifecycle, sd fx.Shutdowner, e *keypad.Engine, log *zap.Logger) *runner {
	r := runner{
		engine:   e,
		shutdown: sd,
		log:      log,
		notify:   sdNotify(log),
		done:     make(chan struct{}),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return r.start()
		},
		OnStop: r.stop,
	})

	return &r
}

func (r *runner) start() error {
	if err := r.engine.Setup(); err != nil {
		r.err = err
		close(r.done)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.run(ctx)

	r.notify(sdReady)
	return nil
}

func (r *runner) run(ctx context.Context) {
	defer close(r.done)

	r.err = r.engine.Run(ctx)
	if r.err != nil {
		r.log.Error("keypad stopped", zap.Error(r.err))
	}

	if ctx.Err() == nil {
		_ = r.shutdown.Shutdown()
	}
}

func (r *runner) stop(ctx context.Context) error {
	r.notify(sdStopping)

	if r.cancel != nil {
		r.cancel()
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the reason the engine stopped, nil after a graceful stop.
func (r *runner) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}
