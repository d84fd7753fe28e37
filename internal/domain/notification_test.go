package domain

import "testing"

func TestPriorityRankOrdering(t *testing.T) {
	order := []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical, PriorityEmergency}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should rank above %s", order[i], order[i-1])
		}
	}
	if Priority("bogus").Rank() != 0 {
		t.Error("unknown priority should rank below low")
	}
}

func TestGuaranteedDelivery(t *testing.T) {
	if PriorityHigh.GuaranteedDelivery() {
		t.Error("high should not be guaranteed")
	}
	if !PriorityCritical.GuaranteedDelivery() || !PriorityEmergency.GuaranteedDelivery() {
		t.Error("critical and emergency should be guaranteed")
	}
}

func TestDeliveryStateTerminal(t *testing.T) {
	terminal := []DeliveryState{StateDelivered, StatePermanentlyFailed, StateSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []DeliveryState{StatePending, StateSending, StateFailed} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNotificationSettled(t *testing.T) {
	n := &Notification{
		Recipients: []Recipient{
			{
				UserID: "u1",
				Delivery: map[Channel]*ChannelDelivery{
					ChannelEmail:     {State: StateDelivered},
					ChannelWebSocket: {State: StateFailed},
				},
			},
		},
	}
	if n.Settled() {
		t.Error("notification with a failed channel is not settled")
	}
	n.Recipients[0].Delivery[ChannelWebSocket].State = StateSkipped
	if !n.Settled() {
		t.Error("all-terminal notification should be settled")
	}
}

func TestRecipientLookup(t *testing.T) {
	n := &Notification{Recipients: []Recipient{{UserID: "u1"}, {UserID: "u2"}}}
	if r := n.Recipient("u2"); r == nil || r.UserID != "u2" {
		t.Error("expected to find u2")
	}
	if n.Recipient("missing") != nil {
		t.Error("expected nil for unknown user")
	}
}
