// Package streamclient consumes the order stream and reconnects on failure.
//
// After a transport error the client waits before reopening: the delay
// doubles from Base up to Cap with every consecutive failure and resets once
// a connection opens. Cancelling the Run context stops the loop, including a
// pending wait.
package streamclient
