package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	collections      *prometheus.CounterVec
	categories       *prometheus.CounterVec
	entries          *prometheus.HistogramVec
	factsUpserted    *prometheus.CounterVec
	rankingConflicts *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a recorder registered on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		collections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscollect_collections_total",
				Help: "Collections completed by market and final status",
			},
			[]string{"market", "status"},
		),
		categories: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscollect_category_runs_total",
				Help: "Category runs inside collections by outcome",
			},
			[]string{"category", "outcome"},
		),
		entries: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hiscollect_category_entries",
				Help:    "Ranked entries produced per category run",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"category"},
		),
		factsUpserted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscollect_facts_upserted_total",
				Help: "Facts written to the fact store",
			},
			[]string{"category"},
		),
		rankingConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscollect_ranking_conflicts_total",
				Help: "Ranking scope lock conflicts",
			},
			[]string{"category"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hiscollect_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hiscollect_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCollection(market, status string) {
	r.collections.WithLabelValues(market, status).Inc()
}

// RecordCategory counts one category run and observes its entry count.
func (r *Recorder) RecordCategory(category, outcome string, entries int) {
	r.categories.WithLabelValues(category, outcome).Inc()
	r.entries.WithLabelValues(category).Observe(float64(entries))
}

func (r *Recorder) RecordFactUpserted(category string) {
	r.factsUpserted.WithLabelValues(category).Inc()
}

func (r *Recorder) RecordRankingConflict(category string) {
	r.rankingConflicts.WithLabelValues(category).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordCollection(string, string)    {}
func (Nop) RecordCategory(string, string, int) {}
func (Nop) RecordFactUpserted(string)          {}
func (Nop) RecordRankingConflict(string)       {}
func (Nop) RecordError(string)                 {}
func (Nop) RecordLatency(string, float64)      {}
