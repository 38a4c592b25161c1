package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the counters of a single ingestion run. Every Collector
// uses its own registry so runs and tests do not share state.
type Collector struct {
	registry *prometheus.Registry

	MessagesTotal    prometheus.Counter
	FeedbacksTotal   prometheus.Counter
	RecordsTotal     prometheus.Counter
	DiagnosticsTotal *prometheus.CounterVec
	ParseDuration    prometheus.Histogram
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		MessagesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dmarcmbox_messages_total",
				Help: "Total number of messages read from the mailbox",
			},
		),
		FeedbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dmarcmbox_feedbacks_total",
				Help: "Total number of successfully parsed aggregate reports",
			},
		),
		RecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dmarcmbox_records_total",
				Help: "Total number of records in parsed reports",
			},
		),
		DiagnosticsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmarcmbox_diagnostics_total",
				Help: "Total number of skipped messages by failure kind",
			},
			[]string{"kind"},
		),
		ParseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dmarcmbox_message_duration_seconds",
				Help:    "Duration of processing a single message, skipped messages included",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	c.registry.MustRegister(c.MessagesTotal, c.FeedbacksTotal, c.RecordsTotal, c.DiagnosticsTotal, c.ParseDuration)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteToTextfile writes the metrics in the text exposition format used by
// the node exporter textfile collector
func (c *Collector) WriteToTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, c.registry); err != nil {
		return fmt.Errorf("could not write metrics to %s: %w", filename, err)
	}
	return nil
}
