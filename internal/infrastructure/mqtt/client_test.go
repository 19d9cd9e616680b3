package mqtt

import (
	"bytes"
	"errors"
	"testing"
)

func TestTopics_Builders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"main", topics.VehicleMain(), "crossing/vehicles"},
		{"sub", topics.VehicleSub(SubTopicTruck), "crossing/vehicles/truck"},
		{"wildcard", topics.AllVehicleSubs(), "crossing/vehicles/+"},
		{"status", topics.SystemStatus(), "crossing/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_CustomBase(t *testing.T) {
	topics := Topics{VehicleBase: "site42/traffic"}

	if got := topics.VehicleSub(SubTopicSpeeds); got != "site42/traffic/speeds" {
		t.Errorf("VehicleSub = %q, want site42/traffic/speeds", got)
	}
	if got := topics.AllVehicleSubs(); got != "site42/traffic/+" {
		t.Errorf("AllVehicleSubs = %q, want site42/traffic/+", got)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: err = %v, want ErrInvalidQoS", err)
	}

	big := bytes.Repeat([]byte("a"), maxPayloadSize+1)
	if err := c.Publish("t", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload: err = %v, want ErrPublishFailed", err)
	}

	// Disconnected client with valid arguments
	if err := c.Publish("t", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: err = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: err = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: err = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("t", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: err = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount = %d after failed subscribes, want 0", c.SubscriptionCount())
	}
}
