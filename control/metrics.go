// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package control exposes the runtime's operational surface: Prometheus
// counters/gauges for the runtime's operational quantities (fd count,
// dropped packets, script failures, I/O errors) and the toggles the
// "debug_output"/"debug_input" settings gate, built on
// prometheus/client_golang.
package control

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the process-wide metrics surface, registered once against a
// prometheus.Registerer at startup.
type Metrics struct {
	FDsRegistered  prometheus.Gauge
	ClientsOnline  prometheus.Gauge
	PacketsDropped prometheus.Counter
	ScriptFailures prometheus.Counter
	IOErrors       prometheus.Counter
}

// NewMetrics constructs and registers every gauge/counter against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FDsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bsp", Name: "fds_registered", Help: "Descriptors currently live in the fd registry.",
		}),
		ClientsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bsp", Name: "clients_online", Help: "Entries currently in the online registry.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bsp", Name: "packets_dropped_total", Help: "Frames discarded by the packet codec (oversized, malformed, unknown type).",
		}),
		ScriptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bsp", Name: "script_failures_total", Help: "Interpreter calls that returned CallFailed.",
		}),
		IOErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bsp", Name: "io_errors_total", Help: "read/write/accept/connect syscall failures surfaced as PRE-CLOSE.",
		}),
	}
	reg.MustRegister(m.FDsRegistered, m.ClientsOnline, m.PacketsDropped, m.ScriptFailures, m.IOErrors)
	return m
}
