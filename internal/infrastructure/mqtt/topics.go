package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the VitalSync MQTT hierarchy.
//
// All topics use the scheme: vitalsync/{category}/...
const (
	// TopicPrefix is the base for all VitalSync topics.
	TopicPrefix = "vitalsync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "vitalsync/system"

	// TopicPrefixSync is the base for sync lifecycle topics.
	TopicPrefixSync = "vitalsync/sync"
)

// Topics provides builders for VitalSync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.SyncEvent("factory_a")
//	// Returns: "vitalsync/sync/event/factory_a"
type Topics struct{}

// SystemStatus returns the topic carrying the service's online/offline
// status, including the Last Will message.
//
// Example: vitalsync/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// SyncEvent returns the topic for finished sync attempts against one
// store. Published retained so late subscribers see the last outcome.
//
// Example: vitalsync/sync/event/factory_a
func (Topics) SyncEvent(storeID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixSync, storeID)
}

// SyncRequest returns the topic an external system publishes to in
// order to trigger an immediate sync of one store.
//
// Example: vitalsync/sync/request/factory_a
func (Topics) SyncRequest(storeID string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefixSync, storeID)
}

// AllSyncRequests returns the wildcard pattern matching every sync
// request topic.
//
// Example: vitalsync/sync/request/+
func (Topics) AllSyncRequests() string {
	return TopicPrefixSync + "/request/+"
}

// ParseSyncRequest extracts the store id from a sync request topic.
func ParseSyncRequest(topic string) (string, error) {
	prefix := TopicPrefixSync + "/request/"
	storeID := strings.TrimPrefix(topic, prefix)
	if storeID == topic || storeID == "" || strings.Contains(storeID, "/") {
		return "", fmt.Errorf("%w: %q is not a sync request topic", ErrInvalidTopic, topic)
	}
	return storeID, nil
}
