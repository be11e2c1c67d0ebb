package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the part of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// TokenSource exposes the cloud token state. *cloud.Client satisfies it.
type TokenSource interface {
	AccessToken() string
	TokenExpiresAt() (time.Time, bool)
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Topic is where health is published, retained at QoS 1.
	Topic string

	// Interval defaults to 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// Cloud is optional. Without it the cloud section is omitted.
	Cloud TokenSource

	// Stats is optional.
	Stats func() BridgeStatistics
}

// HealthReporter publishes the bridge's health on a fixed interval.
type HealthReporter struct {
	bridgeID  string
	version   string
	topic     string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	cloud     TokenSource
	stats     func() BridgeStatistics
	now       func() time.Time

	deviceCount   int
	deviceCountMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		topic:     cfg.Topic,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		cloud:     cfg.Cloud,
		stats:     cfg.Stats,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start publishes immediately and then on every tick until ctx is done or
// Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends the loop and publishes a final "stopping" status.
// Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetDeviceCount records how many devices the bridge manages.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.deviceCountMu.Lock()
	h.deviceCount = count
	h.deviceCountMu.Unlock()
}

// SetLogger sets the logger for publish failures.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus: a missing cloud token is unhealthy; a lost broker or an
// expired token is degraded.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cloud != nil && h.cloud.AccessToken() == "" {
		return HealthUnhealthy, "cloud token not set"
	}
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if cs := h.cloudStatus(); cs != nil && cs.TokenExpired {
		return HealthDegraded, "cloud token expired"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) cloudStatus() *CloudStatus {
	if h.cloud == nil {
		return nil
	}

	cs := &CloudStatus{TokenSet: h.cloud.AccessToken() != ""}
	if exp, ok := h.cloud.TokenExpiresAt(); ok {
		exp = exp.UTC()
		cs.TokenExpiresAt = &exp
		cs.TokenExpired = !h.now().Before(exp)
	}
	return cs
}

// buildMessage assembles the health payload for status.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	h.deviceCountMu.RLock()
	deviceCount := h.deviceCount
	h.deviceCountMu.RUnlock()

	msg := HealthMessage{
		Bridge:         h.bridgeID,
		Timestamp:      h.now().UTC(),
		Status:         status,
		Version:        h.version,
		UptimeSeconds:  max(0, int64(h.now().Sub(h.startTime).Seconds())),
		Cloud:          h.cloudStatus(),
		DevicesManaged: deviceCount,
		Reason:         reason,
	}
	if h.stats != nil {
		stats := h.stats()
		msg.Statistics = &stats
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
