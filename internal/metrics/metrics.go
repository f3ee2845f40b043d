// Package metrics exposes the service's Prometheus collectors.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kotoba"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	reviews        *prometheus.CounterVec
	masteryLevel   prometheus.Histogram
	diversityScore *prometheus.GaugeVec
	guidance       *prometheus.CounterVec
	syncCards      *prometheus.CounterVec
}

// New registers the collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Flashcard study answers recorded, by correctness.",
		}, []string{"correct"}),
		masteryLevel: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mastery_level",
			Help:      "Mastery level assigned after each review.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		diversityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "diversity_score",
			Help:      "Latest answer diversity score per Eiken grade.",
		}, []string{"grade"}),
		guidance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diversity_guidance_total",
			Help:      "Diversity guidance given to generated prompts, by tier.",
		}, []string{"tier"}),
		syncCards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cards_total",
			Help:      "Cards processed by source sync, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reviews,
		m.masteryLevel,
		m.diversityScore,
		m.guidance,
		m.syncCards,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveReview records one study answer and the level it produced.
func (m *Metrics) ObserveReview(correct bool, level int) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(strconv.FormatBool(correct)).Inc()
	m.masteryLevel.Observe(float64(level))
}

// SetDiversityScore records a grade's current diversity score.
func (m *Metrics) SetDiversityScore(grade string, score float64) {
	if m == nil {
		return
	}
	m.diversityScore.WithLabelValues(grade).Set(score)
}

// ObserveGuidance counts guidance of the given tier handed to a prompt.
func (m *Metrics) ObserveGuidance(tier string) {
	if m == nil {
		return
	}
	m.guidance.WithLabelValues(tier).Inc()
}

// AddSyncCards counts n cards with the given result ("inserted", "orphaned",
// "unchanged").
func (m *Metrics) AddSyncCards(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncCards.WithLabelValues(result).Add(float64(n))
}
