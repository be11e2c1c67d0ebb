package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/bridge"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                   `json:"timestamp"`
	Version       string                   `json:"version"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	Runtime       RuntimeMetrics           `json:"runtime"`
	WebSocket     WSMetrics                `json:"websocket"`
	MQTT          *MQTTMetrics             `json:"mqtt,omitempty"`
	Bridge        *bridge.BridgeStatistics `json:"bridge,omitempty"`
	Devices       DeviceMetrics            `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics counts provisioned devices.
type DeviceMetrics struct {
	Total       int            `json:"total"`
	Available   int            `json:"available"`
	ByKind      map[string]int `json:"by_kind"`
	Covers      int            `json:"covers"`
	RoomsKnown  int            `json:"rooms_known"`
	SensorCount int            `json:"sensors"`
}

// handleMetrics returns runtime, transport and registry statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Devices: s.deviceMetrics(),
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.bridge != nil {
		stats := s.bridge.Stats()
		metrics.Bridge = &stats
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) deviceMetrics() DeviceMetrics {
	m := DeviceMetrics{ByKind: make(map[string]int)}
	for _, e := range s.registry.Entities() {
		m.Total++
		m.ByKind[string(e.Kind())]++
		if e.Available() {
			m.Available++
		}
		m.SensorCount += len(s.registry.Sensors(e.MAC()))
	}
	m.Covers = len(s.registry.Covers())
	m.RoomsKnown = len(s.registry.Modes())
	return m
}
