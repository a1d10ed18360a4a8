// Package api provides the HTTP REST API for VitalSync.
//
// It exposes the canonical device registry, registered sources with
// their sync audit trail, and endpoints to trigger syncs on demand.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
