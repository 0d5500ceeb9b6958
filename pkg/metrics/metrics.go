/*
 * Copyright (c) 2026, The Covault Authors.
 *
 * The Covault Authors license this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package metrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "covault"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	SecretOperationsTotal          CounterVec
	SecretOperationDurationSeconds HistogramVec
	SecretsActive                  Gauge

	AuditEntriesTotal CounterVec

	StorageErrorsTotal CounterVec
	RetriesTotal       CounterVec

	Up         Gauge
	Goroutines GaugeFunc
)

// initMetrics initializes all metric variables.
// This must be called after SetEnabled() to ensure proper noop behavior when disabled.
func initMetrics() {
	SecretOperationsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secret_operations_total",
			Help:      "Total number of secret lifecycle operations",
		},
		[]string{"operation", "status"},
	)

	SecretOperationDurationSeconds = newHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "secret_operation_duration_seconds",
			Help:      "Duration of secret lifecycle operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"operation"},
	)

	SecretsActive = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "secrets_active",
			Help:      "Live secrets created minus deleted since process start",
		},
	)

	AuditEntriesTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Total number of audit entries recorded",
		},
		[]string{"action"},
	)

	StorageErrorsTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of storage errors",
		},
		[]string{"backend"},
	)

	RetriesTotal = newCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retried operations",
		},
		[]string{"operation"},
	)

	Up = newGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Vault service liveness indicator (1=up, 0=down)",
		},
	)

	Goroutines = newGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
		func() float64 {
			return float64(runtime.NumGoroutine())
		},
	)
}

func registerCounterVec(v CounterVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*counterVecWrapper); ok {
		_ = registry.Register(wrapper.CounterVec)
	}
}

func registerHistogramVec(v HistogramVec) {
	if !Enabled {
		return
	}
	if wrapper, ok := v.(*histogramVecWrapper); ok {
		_ = registry.Register(wrapper.HistogramVec)
	}
}

func registerGauge(v Gauge) {
	if !Enabled {
		return
	}
	if g, ok := v.(prometheus.Gauge); ok {
		_ = registry.Register(g)
	}
}

func registerGaugeFunc(v GaugeFunc) {
	if !Enabled || v == nil {
		return
	}
	_ = registry.Register(v)
}

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registerCounterVec(SecretOperationsTotal)
	registerHistogramVec(SecretOperationDurationSeconds)
	registerGauge(SecretsActive)

	registerCounterVec(AuditEntriesTotal)

	registerCounterVec(StorageErrorsTotal)
	registerCounterVec(RetriesTotal)

	registerGauge(Up)
	registerGaugeFunc(Goroutines)

	Up.Set(1)
}

// Init initializes the metrics registry with all collectors.
// This must be called after SetEnabled() has been called.
func Init() *prometheus.Registry {
	once.Do(func() {
		initMetrics()

		if !Enabled {
			registry = prometheus.NewRegistry()
			return
		}
		initRegistry()
	})

	return registry
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}
