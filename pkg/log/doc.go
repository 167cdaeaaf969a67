// Package log provides the structured diagnostics sink for the connection
// core. Components receive a Logger at construction; there is no global
// logger state. Events carry CBOR integer-key tags so captures can be
// written compactly to disk and replayed by analysis tooling.
package log
