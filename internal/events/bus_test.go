package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	var zero T
	return zero
}

func expectNone[T any](t *testing.T, ch chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %+v", what, v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := New()
	states := make(chan StateChangedEvent, 1)
	output := make(chan OutputReceivedEvent, 1)
	defer bus.Subscribe(func(e StateChangedEvent) { states <- e })()
	defer bus.Subscribe(func(e OutputReceivedEvent) { output <- e })()

	bus.Publish(StateChangedEvent{State: StateRunning, Instance: "Sample", Port: 6229, Reason: ReasonStarted})
	if got := receive(t, states); got.Instance != "Sample" || got.Port != 6229 {
		t.Errorf("state event = %+v", got)
	}
	expectNone(t, output, "output event")

	bus.Publish(OutputReceivedEvent{Instance: "Sample", Text: "IIS Express is running."})
	if got := receive(t, output); got.Text != "IIS Express is running." {
		t.Errorf("output event = %+v", got)
	}
	expectNone(t, states, "state event")
}

func TestBusEveryEventType(t *testing.T) {
	bus := New()
	got := make(chan Event, 5)

	unsubs := []func(){
		bus.Subscribe(func(e StateChangedEvent) { got <- e }),
		bus.Subscribe(func(e OutputReceivedEvent) { got <- e }),
		bus.Subscribe(func(e SessionReadyEvent) { got <- e }),
		bus.Subscribe(func(e InstancesLoadedEvent) { got <- e }),
		bus.Subscribe(func(e EngineStateChangedEvent) { got <- e }),
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	published := []Event{
		StateChangedEvent{State: StateIdle},
		OutputReceivedEvent{Text: "x"},
		SessionReadyEvent{Instance: "Sample"},
		InstancesLoadedEvent{Instances: []string{"a", "b"}},
		EngineStateChangedEvent{Engine: "RockDevBooster", State: "running"},
	}
	seen := map[uint32]bool{}
	for _, ev := range published {
		bus.Publish(ev)
		seen[receive(t, got).Type()] = true
	}
	for _, ev := range published {
		if !seen[ev.Type()] {
			t.Errorf("event type %d not delivered", ev.Type())
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	ready := make(chan SessionReadyEvent, 1)
	unsub := bus.Subscribe(func(e SessionReadyEvent) { ready <- e })

	bus.Publish(SessionReadyEvent{Instance: "first"})
	receive(t, ready)

	unsub()
	bus.Publish(SessionReadyEvent{Instance: "second"})
	expectNone(t, ready, "event after unsubscribe")
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := New()
	const publishers, perPublisher = 10, 100
	got := make(chan struct{}, publishers*perPublisher)
	defer bus.Subscribe(func(OutputReceivedEvent) { got <- struct{}{} })()

	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perPublisher {
				bus.Publish(OutputReceivedEvent{Text: "chunk"})
			}
		}()
	}
	wg.Wait()

	for range publishers * perPublisher {
		receive(t, got)
	}
}

func TestNilBusIsNoop(_ *testing.T) {
	var bus *Bus
	bus.Publish(StateChangedEvent{State: StateIdle})
	bus.Subscribe(func(StateChangedEvent) {})()
	SubscribeToChannel[StateChangedEvent](bus, make(chan StateChangedEvent))()
}

func TestBusUnknownHandlerIsNoop(_ *testing.T) {
	New().Subscribe(func(string) {})()
}

func TestStateChangedEventJSON(t *testing.T) {
	data, err := json.Marshal(StateChangedEvent{State: StateIdle, Reason: ReasonStopped})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := fields["instance"]; ok {
		t.Error("empty instance should be omitted")
	}
	if fields["state"] != StateIdle || fields["reason"] != ReasonStopped {
		t.Errorf("fields = %v", fields)
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan StateChangedEvent, 10)
	defer SubscribeToChannel[StateChangedEvent](bus, ch)()

	bus.Publish(StateChangedEvent{State: StateRunning, Instance: "Sample"})
	if got := receive(t, ch); got.Instance != "Sample" {
		t.Errorf("instance = %s, want Sample", got.Instance)
	}
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan OutputReceivedEvent)
	defer SubscribeToChannel[OutputReceivedEvent](bus, ch)()

	done := make(chan struct{})
	go func() {
		bus.Publish(OutputReceivedEvent{Text: "x"})
		close(done)
	}()
	receive(t, done)
}
