// Package heartbeat detects silent, half-dead connections. Each Monitor
// watches one connection: inbound traffic resets its last-activity instant,
// and a background ticker declares the connection expired once the
// configured timeout elapses with no activity. Expiry is a one-shot signal;
// the owning connection reacts by closing itself.
package heartbeat
