package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/vitalone/vitalsync/internal/infrastructure/config"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "vitalsync/system/status"},
		{"sync event", topics.SyncEvent("factory_a"), "vitalsync/sync/event/factory_a"},
		{"sync request", topics.SyncRequest("factory_b"), "vitalsync/sync/request/factory_b"},
		{"all sync requests", topics.AllSyncRequests(), "vitalsync/sync/request/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseSyncRequest(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		want    string
		wantErr bool
	}{
		{"valid", "vitalsync/sync/request/factory_a", "factory_a", false},
		{"wrong prefix", "vitalsync/sync/event/factory_a", "", true},
		{"empty store", "vitalsync/sync/request/", "", true},
		{"nested levels", "vitalsync/sync/request/factory_a/extra", "", true},
		{"unrelated topic", "labhub/state/fleet/device", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSyncRequest(tt.topic)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("expected ErrInvalidTopic, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "vitalsync-test",
		},
		Auth: config.MQTTAuthConfig{
			Username: "sync",
			Password: "secret",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q, want tcp://broker.local:1883", got)
	}
	if opts.ClientID != "vitalsync-test" {
		t.Errorf("ClientID = %q, want vitalsync-test", opts.ClientID)
	}
	if opts.Username != "sync" {
		t.Errorf("Username = %q, want sync", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("expected auto-reconnect enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			ClientID: "vitalsync-test",
			TLS:      true,
		},
	}

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config")
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("vitalsync-core")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, "vitalsync-core") {
		t.Errorf("unexpected online payload: %s", online)
	}

	offline := buildOfflinePayload("vitalsync-core")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("unexpected offline payload: %s", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: expected ErrInvalidTopic, got %v", err)
	}
	if err := c.Publish("vitalsync/sync/event/factory_a", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: expected ErrInvalidQoS, got %v", err)
	}
	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish("vitalsync/sync/event/factory_a", big, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload: expected ErrPublishFailed, got %v", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Subscribe("", 0, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: expected ErrInvalidTopic, got %v", err)
	}
	if err := c.Subscribe("vitalsync/sync/request/+", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: expected ErrSubscribeFailed, got %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("failed subscribes should not be tracked, count = %d", c.SubscriptionCount())
	}
}
