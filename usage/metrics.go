// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usage

import (
	"github.com/prometheus/client_golang/prometheus"

	"ustatproc/record"
)

const metricsNamespace = "ustatproc"

// Metrics counts ingested events by their statistics type.
// A nil *Metrics is a valid no-op instance.
type Metrics struct {
	posted  *prometheus.CounterVec
	dropped *prometheus.CounterVec
	failed  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	ans := &Metrics{
		posted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_posted_total",
				Help:      "Number of usage events written to the statistics store",
			},
			[]string{"statistics_type"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_dropped_total",
				Help:      "Number of usage events dropped as coming from bots",
			},
			[]string{"statistics_type"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_failed_total",
				Help:      "Number of usage events lost due to errors",
			},
			[]string{"statistics_type"},
		),
	}
	for _, c := range []prometheus.Collector{ans.posted, ans.dropped, ans.failed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return ans, nil
}

func (m *Metrics) incPosted(st record.StatisticsType) {
	if m != nil {
		m.posted.WithLabelValues(string(st)).Inc()
	}
}

func (m *Metrics) incDropped(st record.StatisticsType) {
	if m != nil {
		m.dropped.WithLabelValues(string(st)).Inc()
	}
}

func (m *Metrics) incFailed(st record.StatisticsType) {
	if m != nil {
		m.failed.WithLabelValues(string(st)).Inc()
	}
}
