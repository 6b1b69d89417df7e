package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	recordsCreatedTotal  atomic.Uint64
	persistFailedTotal   atomic.Uint64
	recordsDeletedTotal  atomic.Uint64
	favoriteToggledTotal atomic.Uint64
	touchFailedTotal     atomic.Uint64
	refreshFailedTotal   atomic.Uint64
	rateLimitedTotal     atomic.Uint64
	panicsTotal          atomic.Uint64

	storeDuration = newHistogram([]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000})
)

// IncRecordsCreated increments the persisted-records counter.
func IncRecordsCreated() {
	recordsCreatedTotal.Add(1)
}

// IncPersistFailed increments the failed-create counter.
func IncPersistFailed() {
	persistFailedTotal.Add(1)
}

func IncRecordsDeleted() {
	recordsDeletedTotal.Add(1)
}

func IncFavoriteToggled() {
	favoriteToggledTotal.Add(1)
}

func IncTouchFailed() {
	touchFailedTotal.Add(1)
}

func IncRefreshFailed() {
	refreshFailedTotal.Add(1)
}

func IncRateLimited() {
	rateLimitedTotal.Add(1)
}

func IncPanics() {
	panicsTotal.Add(1)
}

// ObserveStoreDurationMs records a store round-trip in milliseconds.
func ObserveStoreDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	storeDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_records_created_total", "Analysis records persisted", recordsCreatedTotal.Load())
	writeCounter(&buf, "analysis_persist_failed_total", "Analysis creates that fell back to a local id", persistFailedTotal.Load())
	writeCounter(&buf, "analysis_records_deleted_total", "Analysis records deleted", recordsDeletedTotal.Load())
	writeCounter(&buf, "analysis_favorite_toggled_total", "Favorite toggles applied", favoriteToggledTotal.Load())
	writeCounter(&buf, "analysis_touch_failed_total", "Last-accessed updates dropped", touchFailedTotal.Load())
	writeCounter(&buf, "selection_refresh_failed_total", "Repository list refreshes that failed", refreshFailedTotal.Load())
	writeCounter(&buf, "http_rate_limited_total", "Requests rejected by the rate limiter", rateLimitedTotal.Load())
	writeCounter(&buf, "http_panics_total", "Handler panics recovered", panicsTotal.Load())
	writeHistogram(&buf, "analysis_store_duration_ms", "Store create latency in milliseconds", storeDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts value in the first bucket that holds it; Render accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
