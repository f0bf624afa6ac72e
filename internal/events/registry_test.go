package events

import (
	"slices"
	"testing"
)

func TestRegistryEmitOrder(t *testing.T) {
	var r Registry[string, int]
	var got []string

	r.On("a", func(v int) { got = append(got, "first") })
	r.On("a", func(v int) { got = append(got, "second") })
	r.On("b", func(v int) { got = append(got, "other") })

	r.Emit("a", 1)

	want := []string{"first", "second"}
	if !slices.Equal(got, want) {
		t.Errorf("emit order = %v, want %v", got, want)
	}
}

func TestRegistryOff(t *testing.T) {
	var r Registry[string, int]
	calls := 0

	off := r.On("a", func(int) { calls++ })
	r.Emit("a", 0)
	off()
	off() // second call is a no-op
	r.Emit("a", 0)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := r.Len("a"); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestRegistryOffDuringEmit(t *testing.T) {
	var r Registry[string, int]
	var calls []string

	var offSecond func()
	r.On("a", func(int) {
		calls = append(calls, "first")
		offSecond()
	})
	offSecond = r.On("a", func(int) { calls = append(calls, "second") })

	// the snapshot taken by Emit still includes the second handler
	r.Emit("a", 0)
	r.Emit("a", 0)

	want := []string{"first", "second", "first"}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestScopeClose(t *testing.T) {
	var r Registry[string, struct{}]
	var s Scope

	for _, key := range []string{"connected", "disconnected", "message"} {
		Bind(&s, &r, key, func(struct{}) {})
	}
	if r.Len("connected") != 1 || r.Len("message") != 1 {
		t.Fatal("handlers not registered")
	}

	s.Close()
	s.Close()

	for _, key := range []string{"connected", "disconnected", "message"} {
		if n := r.Len(key); n != 0 {
			t.Errorf("Len(%q) = %d after Close, want 0", key, n)
		}
	}

	released := false
	s.Add(func() { released = true })
	if !released {
		t.Error("Add after Close should release immediately")
	}
}

func TestScopeReleaseOrder(t *testing.T) {
	var s Scope
	var order []int
	for i := range 3 {
		s.Add(func() { order = append(order, i) })
	}
	s.Close()

	want := []int{2, 1, 0}
	if !slices.Equal(order, want) {
		t.Errorf("release order = %v, want %v", order, want)
	}
}
