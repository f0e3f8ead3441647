package discovery

import (
	"errors"
	"net"
	"strconv"
)

const (
	// ServiceType is the DNS-SD service type of a daemon.
	ServiceType = "_msgslot._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// ProtocolVersion is advertised under TXTKeyVersion.
	ProtocolVersion = 1

	// DefaultInstanceName is used when no instance name is configured.
	DefaultInstanceName = "msgslot"
)

// TXT record keys.
const (
	TXTKeyVersion   = "v"
	TXTKeyMinors    = "minors"
	TXTKeyBufferLen = "buflen"
	TXTKeyTLS       = "tls"
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("no daemon found")
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrUnsupportedVersion  = errors.New("unsupported protocol version")
	ErrInvalidInstanceName = errors.New("invalid instance name")
)

// ServiceInfo is what a daemon advertises about itself.
type ServiceInfo struct {
	// InstanceName is the DNS-SD instance label.
	InstanceName string

	// Port is the TCP port the daemon listens on.
	Port uint16

	// Minors is the number of device instances served.
	Minors int

	// BufferLen is the maximum message length.
	BufferLen int

	// TLS reports whether connections must use TLS.
	TLS bool
}

// DaemonService is a daemon found on the network.
type DaemonService struct {
	ServiceInfo

	// Host is the advertised host name.
	Host string

	// Addresses are the IP addresses the daemon was seen on.
	Addresses []string
}

// Addr returns a dialable host:port for the service, preferring the
// first advertised address over the host name.
func (s *DaemonService) Addr() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
