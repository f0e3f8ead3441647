// Package service exposes a message slot registry over the network.
//
// # SlotService
//
// SlotService serves one slot.Registry to remote clients. It handles:
//   - Incoming TCP (optionally TLS 1.3) connections
//   - A handle table per connection, one slot.Session per handle
//   - Request dispatch (Open, Select, Write, Read, Close)
//   - Protocol event logging and Prometheus metrics
//   - Optional mDNS advertisement
//
// Example usage:
//
//	registry, _ := slot.NewRegistry(slot.Config{})
//	defer registry.Close()
//
//	config := service.DefaultServiceConfig()
//	svc, err := service.NewSlotService(registry, config)
//	svc.Start(ctx)
//	defer svc.Stop()
//
// # Connection Lifecycle
//
// Handles belong to the connection that opened them. When a connection
// closes, every session it still holds is closed. Channels and their
// messages stay in the registry; only the registry's own Close removes
// them.
//
// Requests on one connection are handled in arrival order. Different
// connections are served concurrently.
package service
