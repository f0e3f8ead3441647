package discovery

import (
	"context"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser finds daemons on the local network.
type Browser interface {
	// Browse streams daemons as they are found. The channel is closed
	// when ctx is done.
	Browse(ctx context.Context) (<-chan *DaemonService, error)

	// Find returns the first daemon found before ctx is done or the
	// browse timeout passes.
	Find(ctx context.Context) (*DaemonService, error)
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx has no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: 5 * time.Second,
	}
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = DefaultBrowserConfig().BrowseTimeout
	}
	return &MDNSBrowser{config: config}
}

// Browse searches for daemons. Each instance is reported once; addresses
// seen later on other interfaces are not re-announced.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *DaemonService, error) {
	out := make(chan *DaemonService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		seen := make(map[string]bool)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := daemonFromEntry(entry.Instance, entry.HostName, entry.Port, entry.Text,
					append(append([]net.IP(nil), entry.AddrIPv4...), entry.AddrIPv6...))
				if svc == nil || seen[svc.InstanceName] {
					continue
				}
				seen[svc.InstanceName] = true
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if ok {
					delete(seen, entry.Instance)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// Find returns the first daemon found.
func (b *MDNSBrowser) Find(ctx context.Context) (*DaemonService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	return first(ctx, results)
}

// first returns the first service on results.
func first(ctx context.Context, results <-chan *DaemonService) (*DaemonService, error) {
	select {
	case svc, ok := <-results:
		if !ok {
			return nil, ErrNotFound
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

// daemonFromEntry converts a resolved service entry. It returns nil for
// entries whose TXT record is not understood.
func daemonFromEntry(instance, host string, port int, text []string, ips []net.IP) *DaemonService {
	info, err := DecodeTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil
	}
	info.InstanceName = instance
	info.Port = uint16(port)

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, ip.String())
	}

	return &DaemonService{
		ServiceInfo: *info,
		Host:        host,
		Addresses:   addrs,
	}
}

var _ Browser = (*MDNSBrowser)(nil)
