// Package metrics provides Prometheus metrics for the audio backend.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "backend",
		Name:      "active_streams",
		Help:      "Number of open audio streams",
	})

	globalLatencyFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "backend",
		Name:      "global_latency_frames",
		Help:      "Latency in frames shared by running streams",
	})

	enumerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "devices",
		Name:      "enumerations_total",
		Help:      "Device enumerations by direction and result",
	}, []string{"direction", "result"})

	collectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "devices",
		Name:      "collection_changes_total",
		Help:      "Device collection changes delivered to listeners",
	}, []string{"direction"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "streams",
		Name:      "notifications_total",
		Help:      "Hardware notifications received by streams",
	}, []string{"selector"})

	coalescedNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "streams",
		Name:      "coalesced_notifications_total",
		Help:      "Notifications dropped because a reinitialization was already in flight",
	})

	reinits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "streams",
		Name:      "reinit_total",
		Help:      "Stream reinitializations by result",
	}, []string{"result"})

	framesRendered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audionode",
		Subsystem: "streams",
		Name:      "frames_rendered",
		Help:      "Frames exchanged with the data callback",
	}, []string{"stream_id"})

	droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audionode",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events dropped because a subscriber channel was full",
	}, []string{"event"})

	// Local cache for SSE exporter access.
	streamCache   = make(map[string]*StreamMetrics)
	streamCacheMu sync.RWMutex
)

// StreamMetrics holds current metric values for a stream.
type StreamMetrics struct {
	FramesRendered uint64
	Reinits        uint64
	Coalesced      uint64
}

// SetActiveStreams sets the number of open streams.
func SetActiveStreams(n int) {
	activeStreams.Set(float64(n))
}

// SetGlobalLatency sets the shared latency in frames.
func SetGlobalLatency(frames uint32) {
	globalLatencyFrames.Set(float64(frames))
}

// RecordEnumeration counts one device enumeration.
func RecordEnumeration(direction string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	enumerations.WithLabelValues(direction, result).Inc()
}

// RecordCollectionChange counts one collection-changed delivery.
func RecordCollectionChange(direction string) {
	collectionChanges.WithLabelValues(direction).Inc()
}

// RecordNotification counts one hardware notification.
func RecordNotification(selector string) {
	notifications.WithLabelValues(selector).Inc()
}

// RecordDroppedEvent counts one event a slow subscriber missed.
func RecordDroppedEvent(event string) {
	droppedEvents.WithLabelValues(event).Inc()
}

// RecordCoalesced counts a notification dropped during reinitialization.
func RecordCoalesced(streamID string) {
	coalescedNotifications.Inc()
	updateCache(streamID, func(m *StreamMetrics) { m.Coalesced++ })
}

// RecordReinit counts one reinitialization outcome.
func RecordReinit(streamID string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	reinits.WithLabelValues(result).Inc()
	updateCache(streamID, func(m *StreamMetrics) { m.Reinits++ })
}

// SetFramesRendered sets the frame position of a stream.
func SetFramesRendered(streamID string, frames uint64) {
	framesRendered.WithLabelValues(streamID).Set(float64(frames))
	updateCache(streamID, func(m *StreamMetrics) { m.FramesRendered = frames })
}

// DeleteStreamMetrics removes all metrics for a stream.
func DeleteStreamMetrics(streamID string) {
	framesRendered.DeleteLabelValues(streamID)

	streamCacheMu.Lock()
	delete(streamCache, streamID)
	streamCacheMu.Unlock()
}

// GetStreamMetrics returns current metric values for a stream.
func GetStreamMetrics(streamID string) *StreamMetrics {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	if m, ok := streamCache[streamID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllStreamMetrics returns metrics for all open streams.
func GetAllStreamMetrics() map[string]*StreamMetrics {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	result := make(map[string]*StreamMetrics, len(streamCache))
	for id, m := range streamCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(streamID string, update func(*StreamMetrics)) {
	streamCacheMu.Lock()
	defer streamCacheMu.Unlock()
	m, ok := streamCache[streamID]
	if !ok {
		m = &StreamMetrics{}
		streamCache[streamID] = m
	}
	update(m)
}
