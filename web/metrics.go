package web

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicsync",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total number of API requests broken down by endpoint and result.",
	}, []string{"endpoint", "result"})

	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clinicsync",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "Latency distribution for API requests.",
		Buckets: []float64{
			0.005, 0.01, 0.05,
			0.1, 0.5, 1,
			5, 15, 60, 300,
		},
	}, []string{"endpoint", "result"})
)

type statusRecordingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecordingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecordingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecordingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecordingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		result := "2xx"
		switch {
		case rec.status >= 500:
			result = "5xx"
		case rec.status >= 400:
			result = "4xx"
		}

		elapsed := time.Since(start)
		apiRequests.WithLabelValues(endpoint, result).Inc()
		apiLatency.WithLabelValues(endpoint, result).Observe(elapsed.Seconds())
		s.log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   rec.status,
			"elapsed":  elapsed,
		}).Debug("api request")
	}
}
