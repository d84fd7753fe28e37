package events

import (
	"testing"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub()

	sub := &Subscriber{
		ID:     "test-sub-1",
		Events: make(chan Event, 10),
	}
	hub.Subscribe(sub)

	event := Event{
		Kind:           KindDelivery,
		NotificationID: "notif-1",
		UserID:         "user-1",
		Channel:        domain.ChannelEmail,
		State:          domain.StateDelivered,
		Timestamp:      time.Now(),
	}
	hub.Publish(event)

	select {
	case received := <-sub.Events:
		if received.NotificationID != event.NotificationID {
			t.Errorf("expected notification ID %s, got %s", event.NotificationID, received.NotificationID)
		}
		if received.State != event.State {
			t.Errorf("expected state %s, got %s", event.State, received.State)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestHubFiltersByKind(t *testing.T) {
	hub := NewHub()

	alerts := &Subscriber{ID: "alerts-only", Kind: KindAlert, Events: make(chan Event, 10)}
	hub.Subscribe(alerts)

	hub.Publish(Event{Kind: KindDelivery, NotificationID: "n1"})
	hub.Publish(Event{Kind: KindAlert, AlertID: "a1"})

	select {
	case got := <-alerts.Events:
		if got.Kind != KindAlert {
			t.Errorf("expected alert event, got %s", got.Kind)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for alert event")
	}

	select {
	case got := <-alerts.Events:
		t.Errorf("unexpected second event: %+v", got)
	default:
	}
}

func TestHubFiltersByUser(t *testing.T) {
	hub := NewHub()

	sub := &Subscriber{ID: "u1-only", UserID: "u1", Events: make(chan Event, 10)}
	hub.Subscribe(sub)

	hub.Publish(Event{Kind: KindDelivery, UserID: "u2"})
	hub.Publish(Event{Kind: KindDelivery, UserID: "u1"})

	select {
	case got := <-sub.Events:
		if got.UserID != "u1" {
			t.Errorf("expected u1 event, got %s", got.UserID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()

	sub := &Subscriber{ID: "gone", Events: make(chan Event, 1)}
	hub.Subscribe(sub)
	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	hub.Unsubscribe("gone")
	if hub.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.SubscriberCount())
	}
	if _, open := <-sub.Events; open {
		t.Error("expected channel closed after unsubscribe")
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()

	// Unbuffered channel nobody reads.
	slow := &Subscriber{ID: "slow", Events: make(chan Event)}
	hub.Subscribe(slow)

	done := make(chan struct{})
	go func() {
		hub.Publish(Event{Kind: KindDelivery, NotificationID: "n1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Error("publish blocked on a slow subscriber")
	}
}
