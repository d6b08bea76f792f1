// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package keypad

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the diagnostic counters of an engine.  They are not
// registered; use Collectors with the registry of your choice.
type Metrics struct {
	Bounces     prometheus.Counter
	Scans       prometheus.Counter
	Spurious    prometheus.Counter
	Batches     prometheus.Counter
	Transitions prometheus.Counter
	Pressed     prometheus.Gauge
	Settle      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Bounces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypad",
			Name:      "bounces_total",
			Help:      "Readiness events seen on the row lines.",
		}),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypad",
			Name:      "scans_total",
			Help:      "Completed stable scans of the matrix.",
		}),
		Spurious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypad",
			Name:      "spurious_bounces_total",
			Help:      "Stable scans that found no key change.",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypad",
			Name:      "batches_total",
			Help:      "Batches of key transitions delivered to the sink.",
		}),
		Transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypad",
			Name:      "transitions_total",
			Help:      "Key presses and releases delivered to the sink.",
		}),
		Pressed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keypad",
			Name:      "pressed_keys",
			Help:      "Keys held down as of the last stable scan.",
		}),
		Settle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "keypad",
			Name:      "settle_seconds",
			Help:      "Time from the first bounce until the matrix was stable.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Bounces,
		m.Scans,
		m.Spurious,
		m.Batches,
		m.Transitions,
		m.Pressed,
		m.Settle,
	}
}
