// Package ordersvc is the order-write entry point: it persists an order,
// publishes its summary to the tenant broadcast channel and starts a
// best-effort push dispatch. Notification failures never fail the write.
package ordersvc
