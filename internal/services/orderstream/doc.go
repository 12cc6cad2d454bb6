// Package orderstream manages long-lived order event sessions.
//
// A session moves Connecting → Open → Closing → Closed. Open initializes the
// cursor from the highest non-terminal order id and subscribes the change
// detector; Run emits a connected frame, then multiplexes heartbeat and
// detector ticks onto the transport sink until the client disconnects, a
// write fails or the service shuts down. Frames for one session are written
// by one goroutine at a time and never after the session is Closed.
package orderstream
