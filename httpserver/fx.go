// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

// Package httpserver runs the optional diagnostics server.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoAddress = errors.New("no listen address")

// New builds the metrics server and ties it to the lifecycle.  The listener
// is opened when the application starts so a busy port fails the start.
func New(lc fx.Lifecycle, g prometheus.Gatherer, cfg Config, log *zap.Logger) (*http.Server, error) {
	if cfg.Address == "" {
		return nil, ErrNoAddress
	}

	srv, err := cfg.Handler(Metrics(g))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lc := net.ListenConfig{
				KeepAlive: cfg.KeepAlive,
			}
			ln, err := lc.Listen(ctx, "tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
			go func() {
				var err error
				if srv.TLSConfig != nil {
					err = srv.ServeTLS(ln, "", "")
				} else {
					err = srv.Serve(ln)
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping HTTP server", zap.String("addr", srv.Addr))
			return srv.Shutdown(ctx)
		},
	})
	return srv, nil
}
