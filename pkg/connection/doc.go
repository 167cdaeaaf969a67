// Package connection implements the per-link session/service state of the
// head-unit middleware. A Connection represents exactly one physical
// transport link and owns its session table: sessions are created with
// their control service, services are added and removed under invariant
// checks, and security bindings are attached per service. All mutation is
// serialized by a single per-connection lock; liveness is delegated to a
// heartbeat monitor that closes the connection on inactivity.
package connection
