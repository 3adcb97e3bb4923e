// Copyright 2025 PolyCrypt GmbH
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

package channel

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "adjudicator"

// Metrics contains metrics exposed by the adjudicator.
type Metrics struct {
	// Number of adjudicator operations by operation and result.
	Operations metrics.Counter
	// Amount of funds paid out of custody, summed over all assets.
	PaidOut metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// The collectors are registered with the default registerer.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "operations_total",
			Help:      "Number of adjudicator operations.",
		}, []string{"op", "result"}),
		PaidOut: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "paid_out_total",
			Help:      "Amount of funds paid out of custody.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Operations: discard.NewCounter(),
		PaidOut:    discard.NewCounter(),
	}
}
