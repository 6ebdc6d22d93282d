package nodes

import (
	"sync"
	"testing"
)

func TestStatusUpdate(t *testing.T) {
	tests := []struct {
		name        string
		pending     *int
		value       int
		force       bool
		wantChanged bool
		wantValue   int
		wantPending bool
	}{
		{name: "plain update", value: 5, wantChanged: true, wantValue: 5},
		{name: "same value", value: 10, wantChanged: false, wantValue: 10},
		{name: "pending blocks other value", pending: intPtr(7), value: 5, wantChanged: false, wantValue: 10, wantPending: true},
		{name: "pending confirmed", pending: intPtr(7), value: 7, wantChanged: true, wantValue: 7},
		{name: "force over pending", pending: intPtr(7), value: 5, force: true, wantChanged: true, wantValue: 5},
		{name: "force same value clears pending", pending: intPtr(7), value: 10, force: true, wantChanged: false, wantValue: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStatus(10)
			if tt.pending != nil {
				s.Set(*tt.pending)
			}

			changed := s.Update(tt.value, tt.force, true)
			if changed != tt.wantChanged {
				t.Errorf("Update() = %v, want %v", changed, tt.wantChanged)
			}
			if got := s.Value(); got != tt.wantValue {
				t.Errorf("Value() = %d, want %d", got, tt.wantValue)
			}
			if _, ok := s.Pending(); ok != tt.wantPending {
				t.Errorf("Pending() ok = %v, want %v", ok, tt.wantPending)
			}
		})
	}
}

func TestStatusHandlers(t *testing.T) {
	s := NewStatus(0)

	var calls [][2]int
	s.Subscribe(func(old, new int) {
		calls = append(calls, [2]int{old, new})
		// Handlers may read the status without deadlocking.
		_ = s.Value()
	})
	s.Subscribe(nil)

	s.Update(1, false, false)
	s.Update(1, false, false)
	s.Update(2, false, true)
	s.Update(3, true, false)

	want := [][2]int{{0, 1}, {2, 3}}
	if len(calls) != len(want) {
		t.Fatalf("handler called %d times, want %d: %v", len(calls), len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call[%d] = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestStatusConcurrentAccess(t *testing.T) {
	s := NewStatus(0)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Update(i, true, true)
		}()
		go func() {
			defer wg.Done()
			_ = s.Value()
			_, _ = s.Pending()
		}()
	}
	wg.Wait()
}

func intPtr(v int) *int { return &v }
