package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
)

const metricNamespace = "mergegate_reconciler"

const (
	pushEventsMetricName  = "processed_push_events_total"
	transitionsMetricName = "status_transitions_total"
)

const (
	repositoryLabel = "repository"
	statusLabel     = "status"
)

type metricCollector struct {
	logger          *zap.Logger
	processedPushes prometheus.Counter
	transitions     *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		processedPushes: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      pushEventsMetricName,
				Help:      "count of reconciled push events",
			},
		),
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      transitionsMetricName,
				Help:      "count of pull request status transitions",
			},
			[]string{repositoryLabel, statusLabel},
		),
	}
}

func (m *metricCollector) ProcessedPushesInc() {
	m.processedPushes.Inc()
}

func (m *metricCollector) TransitionsInc(repository, status string) {
	cnt, err := m.transitions.GetMetricWith(prometheus.Labels{
		repositoryLabel: repository,
		statusLabel:     status,
	})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", transitionsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)

		return
	}

	cnt.Inc()
}
