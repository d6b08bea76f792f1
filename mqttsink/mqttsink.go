// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

// Package mqttsink mirrors key batches to an MQTT broker.
//
// The mirror is best effort: a broker that is slow or gone is logged and
// never stops the keypad.
package mqttsink

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/schmidtw/matrix-keypad/keypad"
	"go.uber.org/zap"
)

const (
	DefaultTopic    = "keypad/events"
	DefaultClientID = "matrix-keypad"
	DefaultTimeout  = 5 * time.Second

	connectTimeout = 10 * time.Second
	retryInterval  = 5 * time.Second
	quiesce        = 1000 // ms
)

var (
	ErrInvalidConfig = errors.New("invalid mqtt configuration")
	ErrConnect       = errors.New("mqtt connect failed")
)

type Config struct {
	// Broker is the broker url, for example tcp://localhost:1883.  The sink
	// is disabled when it is empty.
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Retain   bool

	// Timeout bounds how long a publish may block the keypad.
	Timeout time.Duration
}

func (c Config) withDefaults() (Config, error) {
	if c.Broker == "" {
		return c, fmt.Errorf("%w: broker is required", ErrInvalidConfig)
	}
	if c.QoS > 2 {
		return c, fmt.Errorf("%w: qos must be 0, 1 or 2, got %d", ErrInvalidConfig, c.QoS)
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c, nil
}

// publisher is the part of paho.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Sink publishes every batch as one JSON message.
type Sink struct {
	cfg    Config
	client publisher
	logger *zap.Logger
	clock  clock.Clock
}

var _ keypad.Sink = (*Sink)(nil)

// New connects to the broker.  A broker that does not answer in time is not
// an error; connecting and reconnecting continue in the background.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// The client keeps retrying in the background.
		logger.Warn("mqtt broker not reachable yet",
			zap.String("broker", cfg.Broker),
			zap.Duration("waited", connectTimeout))
	} else if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, cfg.Broker, err)
	}

	return newSink(cfg, client, logger, clock.New()), nil
}

func newSink(cfg Config, client publisher, logger *zap.Logger, clk clock.Clock) *Sink {
	return &Sink{
		cfg:    cfg,
		client: client,
		logger: logger,
		clock:  clk,
	}
}

// Emit publishes the batch.  Failures are logged, never returned.
func (s *Sink) Emit(batch []keypad.Transition) error {
	if len(batch) == 0 {
		return nil
	}

	payload, err := FormatPayload(s.clock.Now(), batch)
	if err != nil {
		s.logger.Error("mqtt payload", zap.Error(err))
		return nil
	}

	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, s.cfg.Retain, payload)
	if !token.WaitTimeout(s.cfg.Timeout) {
		s.logger.Warn("mqtt publish timeout",
			zap.String("topic", s.cfg.Topic),
			zap.Duration("timeout", s.cfg.Timeout))
		return nil
	}
	if err := token.Error(); err != nil {
		s.logger.Warn("mqtt publish failed",
			zap.String("topic", s.cfg.Topic),
			zap.Error(err))
	}

	return nil
}

// Close disconnects from the broker.
func (s *Sink) Close() error {
	s.client.Disconnect(quiesce)
	return nil
}

// Payload is the message published for a batch.
type Payload struct {
	Keypad BatchPayload `json:"keypad"`
}

type BatchPayload struct {
	Timestamp string       `json:"timestamp"`
	Keys      []KeyPayload `json:"keys"`
}

type KeyPayload struct {
	Key   string `json:"key"`
	Code  uint16 `json:"code"`
	State string `json:"state"`
}

// FormatPayload creates the JSON payload for a batch, keeping the order of
// the transitions.
func FormatPayload(at time.Time, batch []keypad.Transition) ([]byte, error) {
	keys := make([]KeyPayload, 0, len(batch))
	for _, t := range batch {
		state := "up"
		if t.Pressed {
			state = "down"
		}
		keys = append(keys, KeyPayload{
			Key:   t.Keycode.String(),
			Code:  uint16(t.Keycode),
			State: state,
		})
	}

	return json.Marshal(Payload{
		Keypad: BatchPayload{
			Timestamp: at.UTC().Format(time.RFC3339Nano),
			Keys:      keys,
		},
	})
}
