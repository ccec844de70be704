//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package simbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transfer results recorded in simload_transfers_total.
const (
	ResultComplete = "complete"
	ResultOpenFail = "open_failed"
	ResultReadFail = "read_failed"
	ResultEmpty    = "empty"
)

// Metrics tracks loader activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// TransfersTotal counts finished transfers by result.
	TransfersTotal *prometheus.CounterVec

	// BytesTotal counts bytes accepted by the design, by target index.
	BytesTotal *prometheus.CounterVec

	// StallCycles counts post-cycle hooks that observed wait.
	StallCycles prometheus.Counter

	// QueueDepth is the number of requests waiting behind the active one.
	QueueDepth prometheus.Gauge
}

// NewMetrics creates loader metrics and registers them with reg.
// Panics if registration fails.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simload_transfers_total",
				Help: "Finished transfers by result",
			},
			[]string{"result"},
		),
		BytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simload_bytes_total",
				Help: "Bytes accepted by the design, by ioctl index",
			},
			[]string{"index"},
		),
		StallCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "simload_stall_cycles_total",
				Help: "Cycles in which the design held ioctl_wait",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "simload_queue_depth",
				Help: "Downloads queued behind the active one",
			},
		),
	}

	reg.MustRegister(
		m.TransfersTotal,
		m.BytesTotal,
		m.StallCycles,
		m.QueueDepth,
	)

	return m
}

func (m *Metrics) recordTransfer(result string) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordByte(index string) {
	if m == nil {
		return
	}
	m.BytesTotal.WithLabelValues(index).Inc()
}

func (m *Metrics) recordStall() {
	if m == nil {
		return
	}
	m.StallCycles.Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
