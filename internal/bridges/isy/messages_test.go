package isy

import (
	"encoding/json"
	"testing"

	"github.com/nerrad567/gray-logic-isy/internal/nodes"
)

func TestStatusEvent(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		wantID string
		wantOK bool
	}{
		{"status change", testEventXML, "14 A7 3C 1", true},
		{"heartbeat", testHeartbeatXML, "", false},
		{"other control", `<Event><control>DON</control><action>0</action><node>14 A7 3C 1</node></Event>`, "", false},
		{"status without node", `<Event><control>ST</control><action>0</action><node></node></Event>`, "", false},
		{"padded", `<Event><control> ST </control><action>1</action><node> 1 2 3 1 </node></Event>`, "1 2 3 1", true},
		{"broken xml", `<Event><control>ST`, "", false},
		{"empty", ``, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := StatusEvent([]byte(tt.data))
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("StatusEvent() = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestNewStateMessage(t *testing.T) {
	msg := NewStateMessage("isy", "Porch", nodes.StatusChange{
		ID: "14 A7 3C 1", Old: 0, New: 64, Source: nodes.SourceEvent,
	})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := map[string]any{
		"node_id":    "14 A7 3C 1",
		"name":       "Porch",
		"status":     float64(64),
		"previous":   float64(0),
		"source":     "event",
		"protocol":   "isy",
		"controller": "isy",
	}
	for k, v := range want {
		if decoded[k] != v {
			t.Errorf("%s = %v, want %v", k, decoded[k], v)
		}
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestNewLWTMessage(t *testing.T) {
	msg := NewLWTMessage("isy")
	if msg.Status != HealthOffline || msg.Reason != "unexpected_disconnect" || msg.Bridge != "isy" {
		t.Errorf("NewLWTMessage() = %+v", msg)
	}
}
