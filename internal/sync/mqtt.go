package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vitalone/vitalsync/internal/infrastructure/database"
	"github.com/vitalone/vitalsync/internal/infrastructure/logging"
	"github.com/vitalone/vitalsync/internal/infrastructure/mqtt"
	"github.com/vitalone/vitalsync/internal/routing"
)

// MQTTNotifier publishes finished sync attempts as retained events on
// vitalsync/sync/event/{store_id}, so dashboards and downstream systems
// always see the last outcome per store.
type MQTTNotifier struct {
	client *mqtt.Client
	log    *logging.Logger
}

// NewMQTTNotifier creates a notifier publishing through the given client.
func NewMQTTNotifier(client *mqtt.Client, logger *logging.Logger) *MQTTNotifier {
	return &MQTTNotifier{client: client, log: logger}
}

// SyncCompleted implements Notifier. Publish failures are logged, never
// propagated: the sync outcome is already durable in the audit log.
func (n *MQTTNotifier) SyncCompleted(e Event) {
	payload, err := json.Marshal(map[string]any{
		"source":            e.SourceName,
		"store_id":          e.StoreID,
		"status":            e.Status,
		"records_processed": e.RecordsProcessed,
		"new_devices":       e.NewDevices,
		"new_runs":          e.NewRuns,
		"error":             e.Error,
		"duration_ms":       e.Duration.Milliseconds(),
		"timestamp":         e.Timestamp,
	})
	if err != nil {
		n.log.Error("failed to encode sync event", "error", err)
		return
	}

	topic := mqtt.Topics{}.SyncEvent(e.StoreID)
	if err := n.client.PublishRetained(topic, payload); err != nil {
		n.log.Warn("failed to publish sync event", "topic", topic, "error", err)
	}
}

// Listener triggers syncs from MQTT requests on vitalsync/sync/request/+.
// External systems publish an empty payload to the store's request topic
// to start an immediate sync without going through the HTTP API.
type Listener struct {
	client  *mqtt.Client
	service *Service
	stores  *database.Manager
	log     *logging.Logger
	qos     byte
}

// NewListener creates a listener around the given service.
func NewListener(client *mqtt.Client, service *Service, stores *database.Manager, logger *logging.Logger, qos byte) *Listener {
	return &Listener{
		client:  client,
		service: service,
		stores:  stores,
		log:     logger,
		qos:     qos,
	}
}

// Start subscribes to the sync request pattern. Triggered syncs run in
// their own goroutines under ctx and report through the usual audit and
// event surfaces.
func (l *Listener) Start(ctx context.Context) error {
	return l.client.Subscribe(mqtt.Topics{}.AllSyncRequests(), l.qos, func(topic string, _ []byte) error {
		storeID, err := mqtt.ParseSyncRequest(topic)
		if err != nil {
			return err
		}

		name, ok := l.stores.SourceName(routing.StoreID(storeID))
		if !ok {
			return fmt.Errorf("sync request for unknown store %q", storeID)
		}

		l.log.Info("sync requested via mqtt", "source", name, "store", storeID)
		go func() {
			if _, err := l.service.SyncSource(ctx, name); err != nil {
				l.log.Warn("requested sync failed", "source", name, "error", err)
			}
		}()
		return nil
	})
}
