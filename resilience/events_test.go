package resilience

import (
	"testing"
)

func TestListenerRegistry_Register(t *testing.T) {
	reg := NewListenerRegistry()
	reg.Register(func(component any) Listener {
		return failFastListenerFuncs{onTrip: func(error) {}, onClear: func() {}}
	})

	built := reg.build(nil)
	if len(built) != 1 {
		t.Fatalf("build() returned %d listeners, want 1", len(built))
	}
}

func TestListenerRegistry_NilFactoryIgnored(t *testing.T) {
	reg := NewListenerRegistry()
	reg.Register(nil)

	built := reg.build(nil)
	if len(built) != 0 {
		t.Errorf("build() returned %d listeners, want 0", len(built))
	}
}

func TestListenerRegistry_FactoryReturningNilIsSkipped(t *testing.T) {
	reg := NewListenerRegistry()
	reg.Register(func(component any) Listener { return nil })

	built := reg.build(nil)
	if len(built) != 0 {
		t.Errorf("build() returned %d listeners, want 0", len(built))
	}
}

func TestDispatcher_EachCallsLocalThenGlobal(t *testing.T) {
	var order []string

	local := []FailFastListener{failFastListenerFuncs{
		onTrip:  func(error) { order = append(order, "local") },
		onClear: func() {},
	}}
	d := newDispatcher(local)

	reg := NewListenerRegistry()
	reg.Register(func(component any) Listener {
		return failFastListenerFuncs{
			onTrip:  func(error) { order = append(order, "global") },
			onClear: func() {},
		}
	})
	attach(d, reg, nil)

	d.each(func(l FailFastListener) { l.OnTrip(nil) })

	if len(order) != 2 || order[0] != "local" || order[1] != "global" {
		t.Errorf("order = %v, want [local global]", order)
	}
}

func TestDispatcher_AttachNilRegistryIsNoop(t *testing.T) {
	d := newDispatcher[FailFastListener](nil)
	attach(d, nil, nil)

	called := false
	d.each(func(l FailFastListener) { called = true })

	if called {
		t.Error("each() should not invoke any listener when none are registered")
	}
}

func TestDispatcher_PanicInListenerIsRecovered(t *testing.T) {
	panicking := failFastListenerFuncs{
		onTrip:  func(error) { panic("boom") },
		onClear: func() {},
	}
	calledNormal := false
	normal := failFastListenerFuncs{
		onTrip:  func(error) { calledNormal = true },
		onClear: func() {},
	}

	d := newDispatcher([]FailFastListener{panicking, normal})

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("each() should recover listener panics, got %v", r)
		}
		if !calledNormal {
			t.Error("a panicking listener should not prevent later listeners from running")
		}
	}()

	d.each(func(l FailFastListener) { l.OnTrip(nil) })
}
