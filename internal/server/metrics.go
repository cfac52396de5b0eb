package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metrics for the web server. Each instance owns its
// registry so servers can be created more than once per process.
//
// Metrics:
//   - pdfqa_http_requests_total{route,code}
//   - pdfqa_uploaded_pdfs_total
//   - pdfqa_questions_total{result}
//   - pdfqa_processing_duration_seconds
//   - pdfqa_imports_total{result}
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	UploadedPDFsTotal  prometheus.Counter
	QuestionsTotal     *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	ImportsTotal       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfqa_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		UploadedPDFsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pdfqa_uploaded_pdfs_total",
			Help: "PDF files saved from uploads",
		}),
		QuestionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfqa_questions_total",
				Help: "Questions by outcome",
			},
			[]string{"result"}, // "answered", "no_index", "error"
		),
		ProcessingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdfqa_processing_duration_seconds",
			Help:    "Time spent rebuilding the embeddings file",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ImportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfqa_imports_total",
				Help: "Embeddings file imports by outcome",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
