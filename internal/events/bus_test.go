package events

import (
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	event := TaskStatusChangedEvent{
		ID:        "task-1",
		Status:    "running",
		Timestamp: time.Now(),
	}

	bus.Publish(TopicTask, event)

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeTaskStatusChanged {
			t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStatusChanged, received.EventType())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// TestTopicIsolation verifies subscribers only receive their topic's events.
func TestTopicIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	sessionCh := bus.Subscribe(TopicSession, 10)

	bus.Publish(TopicSession, SessionStateChangedEvent{
		SessionID: "s-1",
		From:      "idle",
		To:        "preparing",
		Timestamp: time.Now(),
	})

	select {
	case e := <-sessionCh:
		if e.EventType() != EventTypeSessionStateChanged {
			t.Errorf("unexpected event type %s", e.EventType())
		}
	case <-time.After(time.Second):
		t.Fatal("session subscriber got nothing")
	}

	select {
	case e := <-taskCh:
		t.Errorf("task subscriber received foreign event: %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSubscribeAll verifies the firehose channel sees every topic.
func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)

	bus.Publish(TopicTask, TaskStatusChangedEvent{ID: "t1", Status: "running"})
	bus.Publish(TopicVerify, VerificationPassedEvent{ID: "t1", Attempts: 1})

	types := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			types[e.EventType()] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for firehose events")
		}
	}
	if !types[EventTypeTaskStatusChanged] || !types[EventTypeVerifyPassed] {
		t.Errorf("firehose missed topics: %v", types)
	}
}

// TestPublishNeverBlocks verifies a full subscriber drops events instead of
// stalling the publisher.
func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Publish(TopicTask, TaskStatusChangedEvent{ID: "t1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	// Exactly the buffered event survives.
	if len(ch) != 1 {
		t.Errorf("buffered %d events, want 1", len(ch))
	}
}

// TestCloseIdempotent verifies Close can be called repeatedly and closes
// subscriber channels.
func TestCloseIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 1)

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("subscriber channel should be closed")
	}

	// Publishing and subscribing after close are inert.
	bus.Publish(TopicTask, TaskStatusChangedEvent{ID: "t1"})
	late := bus.Subscribe(TopicTask, 1)
	if _, open := <-late; open {
		t.Error("post-close subscription should return a closed channel")
	}
}
