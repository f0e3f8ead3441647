// Package discovery advertises and finds message slot daemons over mDNS.
//
// A daemon registers a "_msgslot._tcp" service in the "local." domain.
// Its TXT record describes the device it serves:
//
//	v=1          protocol version
//	minors=256   number of device instances
//	buflen=128   maximum message length
//	tls=1        present when the daemon requires TLS
//
// Clients browse for the service type and connect to the first daemon
// whose TXT record they understand.
package discovery
