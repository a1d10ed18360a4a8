package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitalone/vitalsync/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestDisconnectedClientIsInert(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("zero-value client should not report connected")
	}

	// Writes on a disconnected client are dropped, not panics.
	c.WriteSyncAttempt("Factory A", "factory_a", "success", 3, time.Second)
	c.WriteAbnormalMetric("FA-001", "TR-1", "hgb", 25.0, 12.0, 17.5)
	c.WritePoint("system_stats", nil, map[string]interface{}{"goroutines": 1})
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close on unconnected client: %v", err)
	}
}
