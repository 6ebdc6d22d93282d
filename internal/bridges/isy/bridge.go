package isy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-isy/internal/nodes"
)

// Bridge operation constants.
const (
	// defaultPollInterval applies when Options.PollInterval is zero.
	defaultPollInterval = 30 * time.Second

	// sinkTimeout bounds the history write for one status change.
	sinkTimeout = 5 * time.Second

	// ChannelStatusChanged is the websocket channel carrying status changes.
	ChannelStatusChanged = "node.status_changed"
)

// Bridge keeps a node registry in step with one controller.
//
// It handles:
//   - Loading the configuration payload into the registry
//   - Periodic status snapshots (Registry.Update)
//   - Event-stream fragments, direct or relayed over MQTT (Registry.ApplyEventMessage)
//   - Fan-out of every status change to the configured sinks
//   - Health reporting
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id       string
	registry *nodes.Registry

	controller Controller
	events     EventSource
	mqtt       MQTTClient
	telemetry  TelemetryWriter
	history    StatusRecorder
	hub        Broadcaster
	health     *HealthReporter

	pollInterval time.Duration
	pollWait     time.Duration
	eventRelay   bool

	stats bridgeCounters

	started   atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctxCancel context.CancelFunc

	logger Logger
}

type bridgeCounters struct {
	polls          atomic.Uint64
	pollFailures   atomic.Uint64
	eventsReceived atomic.Uint64
	eventsApplied  atomic.Uint64
	eventErrors    atomic.Uint64
	statusChanges  atomic.Uint64
	nodesInserted  atomic.Uint64
}

// Controller is the REST side of the controller.
type Controller interface {
	nodes.StateFetcher

	// FetchNodes returns the full configuration payload.
	FetchNodes(ctx context.Context) ([]byte, error)

	// IsConnected reports whether the last request succeeded.
	IsConnected() bool
}

// EventSource delivers raw event-stream fragments.
type EventSource interface {
	Run(ctx context.Context, handler func(data []byte)) error
	IsConnected() bool
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// TelemetryWriter records status changes as time series.
type TelemetryWriter interface {
	WriteNodeStatus(nodeID string, value int, source string)
	WritePollStats(controllerID string, changes, inserted int, duration time.Duration)
}

// StatusRecorder persists status changes.
type StatusRecorder interface {
	RecordStatusChange(ctx context.Context, nodeID string, value int, source string) error
}

// Broadcaster pushes status changes to websocket subscribers of
// ChannelStatusChanged.
type Broadcaster interface {
	BroadcastStatus(msg StateMessage)
}

// Options configures a Bridge. Only Controller is required.
type Options struct {
	// ControllerID names the controller in topics and health messages.
	// Default: "isy"
	ControllerID string

	// Version is reported in health messages.
	Version string

	// Address is the controller base URL reported in health messages.
	Address string

	Controller Controller
	Events     EventSource
	MQTT       MQTTClient
	Telemetry  TelemetryWriter
	History    StatusRecorder
	Hub        Broadcaster
	Logger     Logger

	PollInterval   time.Duration
	PollWait       time.Duration
	HealthInterval time.Duration

	// EventRelay subscribes to graylogic/event/{controller} for event
	// fragments published by another process.
	EventRelay bool
}

// NewBridge creates a new bridge and its empty registry.
//
// Returns:
//   - *Bridge: Ready to Load and Start
//   - error: ErrNotConfigured if no controller is given
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("%w: controller is required", ErrNotConfigured)
	}

	id := opts.ControllerID
	if id == "" {
		id = "isy"
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	b := &Bridge{
		id:           id,
		registry:     nodes.NewRegistry(opts.Controller, logger),
		controller:   opts.Controller,
		events:       opts.Events,
		mqtt:         opts.MQTT,
		telemetry:    opts.Telemetry,
		history:      opts.History,
		hub:          opts.Hub,
		pollInterval: interval,
		pollWait:     opts.PollWait,
		eventRelay:   opts.EventRelay,
		done:         make(chan struct{}),
		logger:       logger,
	}

	var publisher HealthPublisher
	if opts.MQTT != nil {
		publisher = opts.MQTT
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  id,
		Version:   opts.Version,
		Address:   opts.Address,
		Interval:  opts.HealthInterval,
		Publisher: publisher,
	}, b)
	b.health.SetLogger(logger)

	return b, nil
}

// Registry returns the bridge's node registry.
func (b *Bridge) Registry() *nodes.Registry {
	return b.registry
}

// ID returns the controller identifier.
func (b *Bridge) ID() string {
	return b.id
}

// Load fetches the configuration payload and parses it into the registry.
// The resulting state of every node is published retained to MQTT.
func (b *Bridge) Load(ctx context.Context) error {
	data, err := b.controller.FetchNodes(ctx)
	if err != nil {
		return fmt.Errorf("fetching node configuration: %w", err)
	}
	if err := b.registry.Parse(data); err != nil {
		return fmt.Errorf("loading node configuration: %w", err)
	}

	stats := b.registry.GetStats()
	b.health.SetNodeCount(stats.Total)
	b.publishAllStates()

	b.logger.Info("node tree loaded",
		"controller", b.id,
		"folders", stats.Folders,
		"groups", stats.Groups,
		"nodes", stats.Nodes)
	return nil
}

// Start begins polling, event handling and health reporting.
// Call Load first; Start does not fetch the configuration payload.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	b.ctxCancel = cancel

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	if b.eventRelay && b.mqtt != nil {
		topic := mqtt.Topics{}.NodeEvents(b.id)
		if err := b.mqtt.Subscribe(topic, 1, b.handleRelayMessage); err != nil {
			cancel()
			return fmt.Errorf("subscribe to event relay: %w", err)
		}
		b.logger.Info("subscribed to event relay", "topic", topic)
	}

	b.wg.Add(1)
	go b.pollLoop(ctx)

	if b.events != nil {
		b.wg.Add(1)
		go b.eventLoop(ctx)
	}

	b.health.Start(ctx)

	b.logger.Info("bridge started",
		"controller", b.id,
		"poll_interval", b.pollInterval,
		"event_stream", b.events != nil,
		"event_relay", b.eventRelay)
	return nil
}

// Stop gracefully shuts down the bridge. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.ctxCancel != nil {
			b.ctxCancel()
		}

		b.health.Stop()
		b.wg.Wait()

		b.logger.Info("bridge stopped", "controller", b.id)
	})
}

// Poll runs one status snapshot and dispatches the resulting changes.
func (b *Bridge) Poll(ctx context.Context) ([]nodes.StatusChange, error) {
	start := time.Now()
	b.stats.polls.Add(1)

	changes, err := b.registry.Update(ctx, b.pollWait)
	if err != nil {
		b.stats.pollFailures.Add(1)
		return nil, err
	}

	inserted := 0
	for _, c := range changes {
		if c.Inserted {
			inserted++
		}
	}
	if inserted > 0 {
		b.health.SetNodeCount(b.registry.Len())
	}

	b.dispatch(ctx, changes)

	if b.telemetry != nil {
		b.telemetry.WritePollStats(b.id, len(changes), inserted, time.Since(start))
	}
	return changes, nil
}

// HandleEvent applies one event-stream fragment.
//
// Fragments that are not node status changes are ignored and return false.
// An event that repeats the node's current value is applied (it still
// clears a pending value) but is not dispatched, so sinks only see changes.
//
// Returns:
//   - bool: whether the fragment changed a node's value
//   - error: nodes.ErrUnknownID for a node missing from the tree, or
//     nodes.ErrMalformedPayload
func (b *Bridge) HandleEvent(ctx context.Context, data []byte) (bool, error) {
	b.stats.eventsReceived.Add(1)

	if _, ok := StatusEvent(data); !ok {
		return false, nil
	}

	change, err := b.registry.ApplyEventMessage(data)
	if err != nil {
		b.stats.eventErrors.Add(1)
		return false, err
	}
	b.stats.eventsApplied.Add(1)

	if change.Old == change.New {
		return false, nil
	}

	b.dispatch(ctx, []nodes.StatusChange{change})
	return true, nil
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() BridgeStatistics {
	return b.statistics()
}

// IsConnected reports whether the controller answered the last request.
func (b *Bridge) IsConnected() bool {
	return b.controller.IsConnected()
}

func (b *Bridge) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			// Update already logs transport and payload failures.
			if _, err := b.Poll(ctx); err != nil && ctx.Err() == nil {
				b.logger.Debug("status poll failed", "controller", b.id, "error", err)
			}
		}
	}
}

func (b *Bridge) eventLoop(ctx context.Context) {
	defer b.wg.Done()

	err := b.events.Run(ctx, func(data []byte) {
		b.handleFrame(ctx, data)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warn("event stream stopped", "error", err)
	}
}

// handleRelayMessage receives fragments relayed over MQTT.
func (b *Bridge) handleRelayMessage(_ string, payload []byte) {
	b.handleFrame(context.Background(), payload)
}

func (b *Bridge) handleFrame(ctx context.Context, data []byte) {
	_, err := b.HandleEvent(ctx, data)
	switch {
	case err == nil:
	case errors.Is(err, nodes.ErrUnknownID):
		b.logger.Debug("event for node outside the tree", "error", err)
	default:
		b.logger.Warn("failed to apply event", "error", err)
	}
}

// dispatch fans status changes out to every configured sink.
func (b *Bridge) dispatch(ctx context.Context, changes []nodes.StatusChange) {
	for _, change := range changes {
		b.stats.statusChanges.Add(1)
		if change.Inserted {
			b.stats.nodesInserted.Add(1)
		}

		name := ""
		if rec, ok := b.registry.Record(change.ID); ok {
			name = rec.Name
		}
		msg := NewStateMessage(b.id, name, change)

		b.publishState(msg)

		if b.telemetry != nil {
			b.telemetry.WriteNodeStatus(change.ID, change.New, change.Source)
		}

		if b.history != nil {
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
			if err := b.history.RecordStatusChange(hctx, change.ID, change.New, change.Source); err != nil {
				b.logger.Warn("failed to record status history", "node_id", change.ID, "error", err)
			}
			cancel()
		}

		if b.hub != nil {
			b.hub.BroadcastStatus(msg)
		}
	}
}

// publishState publishes one state message retained.
func (b *Bridge) publishState(msg StateMessage) {
	if b.mqtt == nil || !b.mqtt.IsConnected() {
		return
	}
	topic := mqtt.Topics{}.NodeState(b.id, msg.NodeID)
	if err := b.mqtt.PublishJSON(topic, msg, true); err != nil {
		b.logger.Warn("failed to publish node state", "topic", topic, "error", err)
	}
}

// publishAllStates publishes the current status of every node.
func (b *Bridge) publishAllStates() {
	if b.mqtt == nil {
		return
	}
	for _, rec := range b.registry.Records() {
		node, ok := rec.Leaf.(*nodes.Node)
		if !ok {
			continue
		}
		value := node.Status().Value()
		b.publishState(NewStateMessage(b.id, rec.Name, nodes.StatusChange{
			ID:     rec.ID,
			Old:    value,
			New:    value,
			Source: SourceLoad,
		}))
	}
}

// controllerConnected implements healthProbe.
func (b *Bridge) controllerConnected() (bool, time.Time) {
	if s, ok := b.controller.(interface{ Stats() ClientStats }); ok {
		st := s.Stats()
		return st.Reachable, st.LastSuccess
	}
	return b.controller.IsConnected(), time.Time{}
}

// eventStreamState implements healthProbe.
func (b *Bridge) eventStreamState() string {
	switch {
	case b.events == nil:
		return "disabled"
	case b.events.IsConnected():
		return "connected"
	default:
		return "disconnected"
	}
}

// statistics implements healthProbe.
func (b *Bridge) statistics() BridgeStatistics {
	return BridgeStatistics{
		Polls:          b.stats.polls.Load(),
		PollFailures:   b.stats.pollFailures.Load(),
		EventsReceived: b.stats.eventsReceived.Load(),
		EventsApplied:  b.stats.eventsApplied.Load(),
		EventErrors:    b.stats.eventErrors.Load(),
		StatusChanges:  b.stats.statusChanges.Load(),
		NodesInserted:  b.stats.nodesInserted.Load(),
	}
}
