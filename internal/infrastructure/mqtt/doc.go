// Package mqtt provides the MQTT client for VitalSync's event surface.
//
// The reconciler publishes two kinds of messages: a retained service
// status on vitalsync/system/status (with a Last Will for crash
// detection), and retained per-store sync outcomes on
// vitalsync/sync/event/{store_id}. It also listens on
// vitalsync/sync/request/+ so external systems can trigger an immediate
// sync of one store without going through the HTTP API.
//
// The client wraps paho.mqtt.golang with automatic reconnection,
// re-subscription after reconnect, and panic recovery around message
// handlers. All methods are safe for concurrent use.
package mqtt
