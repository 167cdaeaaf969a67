// Package service implements the head-unit session-control layer. The
// HeadUnit sits between the transport adapters and the connection core: it
// turns physical link events into registry operations, dispatches inbound
// control frames onto session and service operations, and answers with
// ack/nack frames.
package service
