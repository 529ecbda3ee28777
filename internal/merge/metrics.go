package merge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/logfields"
)

const metricNamespace = "mergegate_merges"

const (
	mergesMetricName        = "performed_total"
	blockedMergesMetricName = "blocked_total"
)

const repositoryLabel = "repository"

type metricCollector struct {
	logger  *zap.Logger
	merges  *prometheus.CounterVec
	blocked *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		merges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      mergesMetricName,
				Help:      "count of performed pull request merges",
			},
			[]string{repositoryLabel},
		),
		blocked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      blockedMergesMetricName,
				Help:      "count of merges blocked by obstacles",
			},
			[]string{repositoryLabel},
		),
	}
}

func (m *metricCollector) inc(vec *prometheus.CounterVec, metricName, repository string) {
	cnt, err := vec.GetMetricWith(prometheus.Labels{repositoryLabel: repository})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", metricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)

		return
	}

	cnt.Inc()
}

func (m *metricCollector) MergesInc(repository string) {
	m.inc(m.merges, mergesMetricName, repository)
}

func (m *metricCollector) BlockedMergesInc(repository string) {
	m.inc(m.blocked, blockedMergesMetricName, repository)
}
