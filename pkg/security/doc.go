// Package security implements the security collaborator for protected
// services. The handshake produces an opaque Context capable of sealing and
// opening a service's payload; the Manager binds contexts to services on a
// connection and owns their lifetime. The connection core only stores
// references and hands them back on replace or removal — it never disposes
// a context itself.
package security
