// Package registry owns the set of live connections. It is the only
// component that constructs or fully destroys a Connection: transport
// adapters report physical connects and disconnects here, heartbeat expiry
// routes back here, and closure observers are notified exactly once per
// destroyed connection. The registry lock and the per-connection locks are
// separate domains; the registry is always taken first.
package registry
