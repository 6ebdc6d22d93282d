package isy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-isy/internal/nodes"
)

func TestNewBridge_RequiresController(t *testing.T) {
	if _, err := NewBridge(Options{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewBridge() error = %v, want ErrNotConfigured", err)
	}
}

func TestNewBridge_Defaults(t *testing.T) {
	b, err := NewBridge(Options{Controller: newFakeController()})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if b.ID() != "isy" {
		t.Errorf("ID() = %q, want isy", b.ID())
	}
	if b.pollInterval != defaultPollInterval {
		t.Errorf("pollInterval = %v, want %v", b.pollInterval, defaultPollInterval)
	}
	if b.Registry().Len() != 0 {
		t.Errorf("registry has %d records before Load", b.Registry().Len())
	}
}

func TestLoad(t *testing.T) {
	client := NewMockMQTTClient()
	b, err := loadedBridge(Options{MQTT: client})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := b.Registry().GetStats(); got.Total != 4 || got.Nodes != 2 {
		t.Errorf("GetStats() = %+v", got)
	}

	// One retained state message per node.
	topic := mqtt.Topics{}.NodeState("isy", "14 A7 3B 1")
	msgs := client.publishedTo(topic)
	if len(msgs) != 1 {
		t.Fatalf("published %d messages to %s, want 1", len(msgs), topic)
	}
	if !msgs[0].Retained {
		t.Error("state message not retained")
	}
	var state StateMessage
	if err := json.Unmarshal(msgs[0].Payload, &state); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if state.Status != 255 || state.Name != "Floor Lamp" || state.Source != SourceLoad {
		t.Errorf("state = %+v", state)
	}
	if len(client.GetPublished()) != 2 {
		t.Errorf("published %d messages, want 2 (nodes only)", len(client.GetPublished()))
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		ctrl := newFakeController()
		ctrl.err = errors.New("connection refused")
		if _, err := loadedBridge(Options{Controller: ctrl}); err == nil {
			t.Error("Load() error = nil, want fetch failure")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		ctrl := newFakeController()
		ctrl.nodes = []byte("<nodes><folder>")
		_, err := loadedBridge(Options{Controller: ctrl})
		if !errors.Is(err, nodes.ErrMalformedPayload) {
			t.Errorf("Load() error = %v, want ErrMalformedPayload", err)
		}
	})
}

func TestPoll_DispatchesToSinks(t *testing.T) {
	client := NewMockMQTTClient()
	telemetry := &fakeTelemetry{}
	history := &fakeHistory{}
	hub := &fakeHub{}

	b, err := loadedBridge(Options{MQTT: client, Telemetry: telemetry, History: history, Hub: hub})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	changes, err := b.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	// Porch 0 → 128 and the unknown 14 A7 3F 1 inserted; Floor Lamp unchanged.
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}
	if nodeStatus(b, "14 A7 3C 1") != 128 {
		t.Errorf("Porch status = %d, want 128", nodeStatus(b, "14 A7 3C 1"))
	}
	if nodeStatus(b, "14 A7 3F 1") != 7 {
		t.Errorf("inserted node status = %d, want 7", nodeStatus(b, "14 A7 3F 1"))
	}

	if len(telemetry.points) != 2 || telemetry.polls != 1 {
		t.Errorf("telemetry points=%d polls=%d, want 2/1", len(telemetry.points), telemetry.polls)
	}
	if len(history.entries) != 2 || history.entries[0].source != nodes.SourceSnapshot {
		t.Errorf("history = %+v", history.entries)
	}
	if len(hub.messages) != 2 || hub.messages[0].NodeID != "14 A7 3C 1" {
		t.Errorf("hub messages = %+v", hub.messages)
	}
	if got := len(client.publishedTo(mqtt.Topics{}.NodeState("isy", "14 A7 3F 1"))); got != 1 {
		t.Errorf("inserted node published %d times, want 1", got)
	}

	stats := b.Stats()
	if stats.Polls != 1 || stats.StatusChanges != 2 || stats.NodesInserted != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if b.health.nodeCount != 5 {
		t.Errorf("health node count = %d, want 5", b.health.nodeCount)
	}

	// A second identical snapshot changes nothing.
	changes, err = b.Poll(context.Background())
	if err != nil || len(changes) != 0 {
		t.Errorf("second Poll() = %d changes, %v", len(changes), err)
	}
}

func TestPoll_Failure(t *testing.T) {
	ctrl := newFakeController()
	b, err := loadedBridge(Options{Controller: ctrl})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ctrl.mu.Lock()
	ctrl.err = errors.New("timeout")
	ctrl.mu.Unlock()

	if _, err := b.Poll(context.Background()); !errors.Is(err, nodes.ErrTransportUnavailable) {
		t.Errorf("Poll() error = %v, want ErrTransportUnavailable", err)
	}
	if s := b.Stats(); s.PollFailures != 1 {
		t.Errorf("PollFailures = %d, want 1", s.PollFailures)
	}
}

func TestPoll_HistoryFailureDoesNotStopDispatch(t *testing.T) {
	client := NewMockMQTTClient()
	history := &fakeHistory{err: errors.New("disk full")}
	b, err := loadedBridge(Options{MQTT: client, History: history})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := b.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(history.entries) != 2 {
		t.Errorf("history attempts = %d, want 2", len(history.entries))
	}
	if got := len(client.publishedTo(mqtt.Topics{}.NodeState("isy", "14 A7 3C 1"))); got != 2 {
		t.Errorf("Porch published %d times, want 2 (load + poll)", got)
	}
}

func TestHandleEvent(t *testing.T) {
	hub := &fakeHub{}
	b, err := loadedBridge(Options{Hub: hub})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	applied, err := b.HandleEvent(context.Background(), []byte(testEventXML))
	if err != nil || !applied {
		t.Fatalf("HandleEvent() = %v, %v", applied, err)
	}
	if nodeStatus(b, "14 A7 3C 1") != 64 {
		t.Errorf("Porch status = %d, want 64", nodeStatus(b, "14 A7 3C 1"))
	}
	if len(hub.messages) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(hub.messages))
	}
	if msg := hub.messages[0]; msg.Source != nodes.SourceEvent || msg.Previous != 0 || msg.Status != 64 {
		t.Errorf("broadcast = %#v", msg)
	}

	applied, err = b.HandleEvent(context.Background(), []byte(testHeartbeatXML))
	if err != nil || applied {
		t.Errorf("heartbeat HandleEvent() = %v, %v, want false, nil", applied, err)
	}

	unknown := `<Event><control>ST</control><action>1</action><node>99 99 99 1</node></Event>`
	if _, err := b.HandleEvent(context.Background(), []byte(unknown)); !errors.Is(err, nodes.ErrUnknownID) {
		t.Errorf("unknown node error = %v, want ErrUnknownID", err)
	}

	stats := b.Stats()
	if stats.EventsReceived != 3 || stats.EventsApplied != 1 || stats.EventErrors != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestHandleEvent_RepeatedValueNotDispatched(t *testing.T) {
	client := NewMockMQTTClient()
	telemetry := &fakeTelemetry{}
	history := &fakeHistory{}
	hub := &fakeHub{}

	b, err := loadedBridge(Options{MQTT: client, Telemetry: telemetry, History: history, Hub: hub})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	porch := mqtt.Topics{}.NodeState("isy", "14 A7 3C 1")
	afterLoad := len(client.publishedTo(porch))

	for i, wantApplied := range []bool{true, false} {
		applied, err := b.HandleEvent(context.Background(), []byte(testEventXML))
		if err != nil {
			t.Fatalf("HandleEvent() #%d error = %v", i, err)
		}
		if applied != wantApplied {
			t.Errorf("HandleEvent() #%d = %v, want %v", i, applied, wantApplied)
		}
	}

	if got := len(client.publishedTo(porch)) - afterLoad; got != 1 {
		t.Errorf("Porch published %d times after load, want 1", got)
	}
	if len(hub.messages) != 1 || len(telemetry.points) != 1 || len(history.entries) != 1 {
		t.Errorf("sinks hub=%d telemetry=%d history=%d, want 1 each",
			len(hub.messages), len(telemetry.points), len(history.entries))
	}

	stats := b.Stats()
	if stats.EventsApplied != 2 || stats.StatusChanges != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestStartStop(t *testing.T) {
	client := NewMockMQTTClient()
	events := &fakeEvents{frames: [][]byte{[]byte(testEventXML)}, connected: true}
	b, err := loadedBridge(Options{
		MQTT:           client,
		Events:         events,
		EventRelay:     true,
		PollInterval:   time.Hour,
		HealthInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	// The direct event stream applies its frame.
	deadline := time.Now().Add(2 * time.Second)
	for nodeStatus(b, "14 A7 3C 1") != 64 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if nodeStatus(b, "14 A7 3C 1") != 64 {
		t.Fatal("event stream frame was not applied")
	}

	// The relay subscription applies fragments published over MQTT.
	relay := client.handler(mqtt.Topics{}.NodeEvents("isy"))
	if relay == nil {
		t.Fatal("event relay topic not subscribed")
	}
	relay("graylogic/event/isy", []byte(`<Event><control>ST</control><action>5</action><node>14 A7 3B 1</node></Event>`))
	if nodeStatus(b, "14 A7 3B 1") != 5 {
		t.Errorf("relayed event not applied, status = %d", nodeStatus(b, "14 A7 3B 1"))
	}

	b.Stop()
	b.Stop()

	health := client.publishedTo(mqtt.Topics{}.BridgeHealth("isy"))
	if len(health) < 2 {
		t.Fatalf("published %d health messages, want at least 2", len(health))
	}
	var first, last HealthMessage
	_ = json.Unmarshal(health[0].Payload, &first)
	_ = json.Unmarshal(health[len(health)-1].Payload, &last)
	if first.Status != HealthStarting {
		t.Errorf("first health status = %q, want starting", first.Status)
	}
	if last.Status != HealthStopping {
		t.Errorf("last health status = %q, want stopping", last.Status)
	}
	if last.NodesManaged != 4 {
		t.Errorf("NodesManaged = %d, want 4", last.NodesManaged)
	}
}

func TestStop_WithoutStart(t *testing.T) {
	b, err := NewBridge(Options{Controller: newFakeController()})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	b.Stop()
}
