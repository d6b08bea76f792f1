// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func registry(t *testing.T) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "test",
		Name:      "presses_total",
		Help:      "Presses.",
	})
	c.Add(3)
	require.NoError(t, reg.Register(c))
	return reg
}

func TestHandler(t *testing.T) {
	tests := []struct {
		description string
		cfg         Config
		target      string
		status      int
		header      string
	}{
		{
			description: "default path",
			target:      "/metrics",
			status:      http.StatusOK,
		}, {
			description: "configured path and headers",
			cfg: Config{
				Path:    "/keypad/metrics",
				Headers: http.Header{"X-Keypad": []string{"front-door"}},
			},
			target: "/keypad/metrics",
			status: http.StatusOK,
			header: "front-door",
		}, {
			description: "unknown path",
			target:      "/other",
			status:      http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			srv, err := tc.cfg.Handler(Metrics(registry(t)))
			require.NoError(err)
			require.NotNil(srv)
			assert.Nil(srv.TLSConfig)

			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.target, nil))

			assert.Equal(tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Contains(rec.Body.String(), "test_presses_total 3")
			}
			assert.Equal(tc.header, rec.Header().Get("X-Keypad"))
		})
	}
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	lc := fxtest.NewLifecycle(t)
	srv, err := New(lc, registry(t), Config{Address: "127.0.0.1:0"}, zap.NewNop())
	assert.NoError(err)
	assert.NotNil(srv)

	lc.RequireStart()
	lc.RequireStop()
}

func TestNewWithoutAddress(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	srv, err := New(lc, registry(t), Config{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Nil(t, srv)
}
