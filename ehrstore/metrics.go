// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package ehrstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors for the store API.
type Metrics struct {
	RecordCreates   *prometheus.CounterVec
	RecordLists     *prometheus.CounterVec
	PatientUpdates  prometheus.Counter
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec
}

// NewMetrics registers the store collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordCreates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ehrstore_record_creates_total",
			Help: "Clinical records created, by record type",
		}, []string{"record_type"}),
		RecordLists: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ehrstore_record_lists_total",
			Help: "Record list queries served, by record type",
		}, []string{"record_type"}),
		PatientUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "ehrstore_patient_updates_total",
			Help: "Patient aggregate field updates applied",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "ehrstore_request_duration_seconds",
			Help: "HTTP request handling time, by handler",
		}, []string{"handler"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ehrstore_request_errors_total",
			Help: "HTTP requests answered with an error envelope, by handler and code",
		}, []string{"handler", "code"}),
	}
}
