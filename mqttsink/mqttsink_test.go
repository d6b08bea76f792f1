// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package mqttsink

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/schmidtw/matrix-keypad/keypad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeClient struct {
	token        *fakeToken
	published    []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  string(payload.([]byte)),
	})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestFormatPayload(t *testing.T) {
	assert := assert.New(t)

	at := time.Date(2023, 4, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))
	b, err := FormatPayload(at, []keypad.Transition{
		{Keycode: 2, Pressed: true},
		{Keycode: 84},
	})

	assert.NoError(err)
	assert.JSONEq(`{"keypad":{"timestamp":"2023-04-01T11:30:00Z","keys":[`+
		`{"key":"KEY_1","code":2,"state":"down"},`+
		`{"key":"84","code":84,"state":"up"}]}}`, string(b))
}

func TestConfigDefaults(t *testing.T) {
	tests := []struct {
		description string
		cfg         Config
		expected    Config
		expectedErr error
	}{
		{
			description: "defaults",
			cfg:         Config{Broker: "tcp://localhost:1883"},
			expected: Config{
				Broker:   "tcp://localhost:1883",
				Topic:    DefaultTopic,
				ClientID: DefaultClientID,
				Timeout:  DefaultTimeout,
			},
		}, {
			description: "everything set",
			cfg: Config{
				Broker:   "ssl://broker:8883",
				Topic:    "house/keypad",
				ClientID: "front-door",
				QoS:      1,
				Retain:   true,
				Timeout:  time.Second,
			},
			expected: Config{
				Broker:   "ssl://broker:8883",
				Topic:    "house/keypad",
				ClientID: "front-door",
				QoS:      1,
				Retain:   true,
				Timeout:  time.Second,
			},
		}, {
			description: "no broker",
			expectedErr: ErrInvalidConfig,
		}, {
			description: "bad qos",
			cfg:         Config{Broker: "tcp://localhost:1883", QoS: 3},
			expectedErr: ErrInvalidConfig,
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			assert := assert.New(t)

			got, err := tc.cfg.withDefaults()
			if tc.expectedErr != nil {
				assert.ErrorIs(err, tc.expectedErr)
				return
			}

			assert.NoError(err)
			assert.Equal(tc.expected, got)
		})
	}
}

func TestEmit(t *testing.T) {
	batch := []keypad.Transition{{Keycode: 28, Pressed: true}}

	tests := []struct {
		description string
		batch       []keypad.Transition
		token       *fakeToken
		published   int
		logged      string
	}{
		{
			description: "published",
			batch:       batch,
			token:       &fakeToken{done: true},
			published:   1,
		}, {
			description: "empty batch",
			token:       &fakeToken{done: true},
		}, {
			description: "timeout is logged",
			batch:       batch,
			token:       &fakeToken{},
			published:   1,
			logged:      "mqtt publish timeout",
		}, {
			description: "failure is logged",
			batch:       batch,
			token:       &fakeToken{done: true, err: errors.New("not connected")},
			published:   1,
			logged:      "mqtt publish failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			core, logs := observer.New(zap.InfoLevel)
			mclock := clock.NewMock()
			client := &fakeClient{token: tc.token}

			cfg, err := Config{Broker: "tcp://localhost:1883", QoS: 1}.withDefaults()
			require.NoError(err)

			s := newSink(cfg, client, zap.New(core), mclock)

			assert.NoError(s.Emit(tc.batch))
			require.Len(client.published, tc.published)

			if tc.published > 0 {
				p := client.published[0]
				assert.Equal(DefaultTopic, p.topic)
				assert.Equal(byte(1), p.qos)
				assert.False(p.retained)
				assert.JSONEq(`{"keypad":{"timestamp":"1970-01-01T00:00:00Z","keys":[`+
					`{"key":"KEY_ENTER","code":28,"state":"down"}]}}`, p.payload)
			}

			if tc.logged == "" {
				assert.Zero(logs.Len())
			} else {
				assert.Equal(1, logs.FilterMessage(tc.logged).Len())
			}

			assert.NoError(s.Close())
			assert.True(client.disconnected)
		})
	}
}

func TestNewRequiresBroker(t *testing.T) {
	s, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Nil(t, s)
}
