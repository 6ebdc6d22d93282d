package isy

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const testNodesXML = `<?xml version="1.0" encoding="UTF-8"?>
<nodes>
  <folder><address>1001</address><name>Living Room</name></folder>
  <node flag="128"><address>14 A7 3B 1</address><name>Floor Lamp</name><parent type="3">1001</parent><property id="ST" value="255"/></node>
  <node flag="128"><address>14 A7 3C 1</address><name>Porch</name><property id="ST" value="0"/></node>
  <group flag="132"><address>2001</address><name>All Lights</name></group>
</nodes>`

const testStatusXML = `<?xml version="1.0" encoding="UTF-8"?>
<nodes>
  <node id="14 A7 3B 1"><property id="ST" value="255"/></node>
  <node id="14 A7 3C 1"><property id="ST" value="128"/></node>
  <node id="14 A7 3F 1"><property id="ST" value="7"/></node>
</nodes>`

const testEventXML = `<?xml version="1.0"?><Event seqnum="12" sid="uuid:42"><control>ST</control><action>64</action><node>14 A7 3C 1</node><eventInfo></eventInfo><fmtAct>25%</fmtAct></Event>`

const testHeartbeatXML = `<?xml version="1.0"?><Event seqnum="13" sid="uuid:42"><control>_0</control><action>120</action><node></node><eventInfo></eventInfo></Event>`

// fakeController serves canned payloads.
type fakeController struct {
	mu        sync.Mutex
	nodes     []byte
	status    []byte
	err       error
	connected bool
}

func newFakeController() *fakeController {
	return &fakeController{
		nodes:     []byte(testNodesXML),
		status:    []byte(testStatusXML),
		connected: true,
	}
}

func (f *fakeController) FetchNodes(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes, f.err
}

func (f *fakeController) FetchFullState(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.err
}

func (f *fakeController) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]func(topic string, payload []byte)
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockMQTTClient) publishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) handler(topic string) func(topic string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

type telemetryPoint struct {
	nodeID string
	value  int
	source string
}

// fakeTelemetry records telemetry writes.
type fakeTelemetry struct {
	mu     sync.Mutex
	points []telemetryPoint
	polls  int
}

func (f *fakeTelemetry) WriteNodeStatus(nodeID string, value int, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, telemetryPoint{nodeID, value, source})
}

func (f *fakeTelemetry) WritePollStats(_ string, _, _ int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
}

// fakeHistory records history writes.
type fakeHistory struct {
	mu      sync.Mutex
	entries []telemetryPoint
	err     error
}

func (f *fakeHistory) RecordStatusChange(_ context.Context, nodeID string, value int, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, telemetryPoint{nodeID, value, source})
	return f.err
}

// fakeHub records broadcasts.
type fakeHub struct {
	mu       sync.Mutex
	messages []StateMessage
}

func (f *fakeHub) BroadcastStatus(msg StateMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

// fakeEvents replays frames then blocks until cancelled.
type fakeEvents struct {
	frames    [][]byte
	connected bool
}

func (f *fakeEvents) Run(ctx context.Context, handler func(data []byte)) error {
	for _, fr := range f.frames {
		handler(fr)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeEvents) IsConnected() bool { return f.connected }

// loadedBridge returns a bridge over a fake controller with the test tree loaded.
func loadedBridge(opts Options) (*Bridge, error) {
	if opts.Controller == nil {
		opts.Controller = newFakeController()
	}
	b, err := NewBridge(opts)
	if err != nil {
		return nil, err
	}
	return b, b.Load(context.Background())
}

func nodeStatus(b *Bridge, id string) int {
	v, err := b.Registry().Root().ByID(id)
	if err != nil {
		return -1
	}
	st, err := v.Status()
	if err != nil {
		return -1
	}
	return st.Value()
}
