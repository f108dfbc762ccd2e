package telemetry

import (
	"sync"
	"syscall"

	"github.com/RyanBlaney/magictales/configs"
	"github.com/RyanBlaney/magictales/emotion"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/tunein/go-logging/v7/pkg/logger"
	"github.com/tunein/go-logging/v7/pkg/logger/logtypes"
	"github.com/tunein/go-logging/v7/pkg/rootcollector"
	"github.com/tunein/go-logging/v7/pkg/rootlogger"
)

// Metric names sent through rootcollector.
const (
	MetricDuration = "magictales.analysis.duration.ms"
	MetricDetected = "magictales.emotion.detected"
	MetricError    = "magictales.analysis.error"
)

// MetricFunc matches rootcollector.Metric.
type MetricFunc func(name string, value int64, tags []string)

// Collector forwards analysis outcomes to the root collector.
type Collector struct {
	tags   []string
	metric MetricFunc
}

var configureOnce sync.Once

// NewCollector configures the root logger writer once and returns a
// collector tagging every metric with cfg.Tags.
func NewCollector(cfg configs.TelemetryConfig) *Collector {
	configureOnce.Do(func() {
		err := rootlogger.Configure(logger.LogOptions{
			Out:          cfg.LogFile,
			ReopenSignal: syscall.SIGHUP,
			Level:        logtypes.InfoLevel,
		})
		if err != nil {
			logging.Error(err, "Failed configuring metrics log writer", logging.Fields{
				"component": "telemetry",
				"log_file":  cfg.LogFile,
			})
		}
	})
	return NewCollectorWith(cfg.Tags, rootcollector.Metric)
}

// NewCollectorWith sends metrics through fn.
func NewCollectorWith(tags []string, fn MetricFunc) *Collector {
	return &Collector{tags: append([]string(nil), tags...), metric: fn}
}

func (c *Collector) with(extra ...string) []string {
	tags := make([]string, 0, len(c.tags)+len(extra))
	tags = append(tags, c.tags...)
	return append(tags, extra...)
}

func (c *Collector) ObserveAnalysis(a *emotion.Analysis) {
	tags := c.with("label:"+string(a.Label), "variant:"+a.Variant, "format:"+a.Format)
	c.metric(MetricDuration, a.Elapsed.Milliseconds(), tags)
	c.metric(MetricDetected, 1, tags)
}

func (c *Collector) ObserveError(stage string) {
	c.metric(MetricError, 1, c.with("stage:"+stage))
}
