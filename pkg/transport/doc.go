// Package transport contains the physical-transport boundary of the
// head-unit middleware: the event contract adapters report into, the
// length-prefixed framing shared by stream transports, TLS configuration
// helpers, and a TCP/TLS adapter for Wi-Fi links. Adapters deliver raw
// connect/disconnect/frame events upward; session and service state is
// owned entirely by the connection core.
package transport
