// Package wire defines the session-control message vocabulary exchanged
// between a mobile device and the head unit: start/end session, start/end
// service, heartbeat ping/pong and close, plus the status codes used to
// acknowledge or reject them.
//
// Messages are encoded as CBOR maps with integer keys for compactness.
// Encoding is deterministic (canonical key order); decoding is lenient for
// forward compatibility. RPC payload schemas are not defined here — only
// the control frames the connection core consumes.
package wire
