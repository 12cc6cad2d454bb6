// Package orders defines the order record, its event projection and the
// Store consumed by change detection, plus a Pebble-backed Store.
//
// Pebble layout per tenant:
//
//	t/{tenant}/o/{id:8 bytes big-endian} -> Order JSON
//	t/{tenant}/m                         -> last assigned id (8 bytes big-endian)
package orders
