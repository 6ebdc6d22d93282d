package nodes

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// configXML is a small controller configuration. Entries are deliberately
// interleaved to exercise the per-type pass order.
const configXML = `<?xml version="1.0" encoding="UTF-8"?>
<nodes>
  <root><id>00:21:b9:02:00:00</id><name>Home</name></root>
  <node flag="128"><address>14 A7 3B 1</address><name>Floor Lamp</name><parent type="3">1001</parent><property id="ST" value="255" formatted="On" uom="100"/></node>
  <folder><address>1001</address><name>Living Room</name></folder>
  <group flag="132"><address>2001</address><name>All Lights</name></group>
  <folder><address>1002</address><name>Kitchen</name><parent type="3">1001</parent></folder>
  <node flag="128"><address>14 A7 3C 1</address><name>Porch</name><property id="ST" value=" 12 3"/></node>
  <node flag="128"><address>14 A7 3D 1</address><name>Counter</name><parent type="3">1002</parent><property id="ST" value="0"/></node>
  <node flag="128"><address>14 A7 3D 2</address><name>Counter Button</name><parent type="1">14 A7 3D 1</parent><property id="ST" value="0"/></node>
  <group flag="132"><address>2002</address><name>Kitchen Scene</name><parent type="3">1002</parent></group>
</nodes>`

// fakeFetcher returns a canned snapshot.
type fakeFetcher struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) FetchFullState(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.data, f.err
}

// recordingLogger keeps formatted log lines per level.
type recordingLogger struct {
	mu     sync.Mutex
	debugs []string
	infos  []string
	warns  []string
	errors []string
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add(&l.debugs, msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add(&l.infos, msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add(&l.warns, msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add(&l.errors, msg, args) }

func (l *recordingLogger) add(dst *[]string, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*dst = append(*dst, fmt.Sprint(append([]any{msg}, args...)...))
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch level {
	case "debug":
		return len(l.debugs)
	case "info":
		return len(l.infos)
	case "warn":
		return len(l.warns)
	default:
		return len(l.errors)
	}
}

// loadedRegistry returns a registry parsed from configXML.
func loadedRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry(nil, nil)
	if err := reg.Parse([]byte(configXML)); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return reg
}

// mustGet resolves key from v or fails the test.
func mustGet(t *testing.T, v View, key string) View {
	t.Helper()

	got, err := v.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", key, err)
	}
	return got
}
