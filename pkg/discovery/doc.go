// Package discovery advertises the head unit on the local network over mDNS
// and lets client tooling browse for reachable head units. Advertising
// carries the vehicle identity and protocol capabilities in TXT records so
// devices can pick a head unit before opening a transport link.
package discovery
