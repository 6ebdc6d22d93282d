package isy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthReporter publishes the bridge's health to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID  string
	version   string
	address   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	probe     healthProbe

	nodeCount   int
	nodeCountMu sync.RWMutex

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// healthProbe supplies the live state a health message reports.
type healthProbe interface {
	controllerConnected() (bool, time.Time)
	eventStreamState() string
	statistics() BridgeStatistics
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID is the controller identifier used in the health topic.
	BridgeID string

	// Version is the service version.
	Version string

	// Address is the controller base URL reported in the connection block.
	Address string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher
}

// NewHealthReporter creates a new health reporter.
func NewHealthReporter(cfg HealthReporterConfig, probe healthProbe) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		address:   cfg.Address,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		probe:     probe,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops health reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetNodeCount updates the managed node count.
func (h *HealthReporter) SetNodeCount(count int) {
	h.nodeCountMu.Lock()
	h.nodeCount = count
	h.nodeCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// GetLWTPayload returns the Last Will and Testament message payload.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.bridgeID))
}

// GetLWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) GetLWTTopic() string {
	return mqtt.Topics{}.BridgeHealth(h.bridgeID)
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

// determineStatus evaluates the current bridge status.
//
// The controller link decides between healthy and unhealthy; a missing
// broker or a dropped event stream only degrades the bridge, because
// polling keeps the tree current without them.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.probe != nil {
		if ok, _ := h.probe.controllerConnected(); !ok {
			return HealthUnhealthy, "controller unreachable"
		}
		if h.probe.eventStreamState() == "disconnected" {
			return HealthDegraded, "event stream disconnected"
		}
	}

	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	return HealthHealthy, ""
}

// buildMessage assembles the health message for status.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	msg := NewHealthMessage(h.bridgeID, h.version, status, h.startTime)
	msg.Reason = reason

	h.nodeCountMu.RLock()
	msg.NodesManaged = h.nodeCount
	h.nodeCountMu.RUnlock()

	if h.probe != nil {
		conn := &ConnectionStatus{
			Status:      "disconnected",
			Address:     h.address,
			EventStream: h.probe.eventStreamState(),
		}
		if ok, last := h.probe.controllerConnected(); ok {
			conn.Status = "connected"
			conn.LastSuccess = &last
		}
		msg.Connection = conn

		stats := h.probe.statistics()
		msg.Statistics = &stats
	}

	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	return h.publisher.PublishJSON(mqtt.Topics{}.BridgeHealth(h.bridgeID), h.buildMessage(status, reason), true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
